// Package database provides connection pool management for the optional
// PostgreSQL mirror of the collected time series.
package database
