// Package reconcile implements incremental time-series collection: it
// brings a persisted table up to date with respect to a target timestamp,
// fetching only the missing suffix from the provider.
//
// A Dataset describes the collection behavior of one series kind (bar
// size, provider epoch, dedup policy, freshness rule); the Reconciler
// executes the load -> decide -> fetch -> merge -> truncate -> persist
// sequence against any Fetcher and Store.
package reconcile
