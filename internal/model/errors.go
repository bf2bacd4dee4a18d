package model

import "errors"

var (
	// ErrNoData means neither existing nor freshly fetched data exists for
	// a key. Terminal for that symbol's task.
	ErrNoData = errors.New("no data available")

	// ErrNotFound means a blob-store backend has no entry for a key.
	ErrNotFound = errors.New("dataset not found")
)
