// Package api implements the provider REST clients: Binance (futures and
// spot klines, funding rates, premium index, exchange info), Glassnode
// (on-chain metrics) and Unravel (portfolio factors).
//
// All clients share the same transport discipline: JSON GET requests with
// jittered exponential-backoff retries on 5xx and 429, and typed APIError
// values for everything else.
package api
