// Package model defines the canonical time-series table, dataset keys,
// and the merge/dedup/sort primitives shared by every collector.
//
// A Table is an ordered sequence of rows, each keyed by a unique timestamp.
// The timestamp is a first-class field of the row, never a display column;
// serialization layers decide how to render it.
package model
