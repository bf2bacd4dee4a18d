// Package store persists dataset tables as named blobs.
//
// Two backends implement the Store interface: Local writes flat CSV files
// under a root directory (the externally durable artifact downstream
// consumers read), Remote mirrors tables into Postgres. Dual composes the
// two, always preferring the backend whose copy is more recent.
package store
