package store

import (
	"context"

	"github.com/dfilabs/pulse-data/internal/model"
)

// Store is the blob-store capability the reconciler consumes.
type Store interface {
	// Load returns the persisted table for key, or model.ErrNotFound.
	Load(ctx context.Context, key model.Key) (*model.Table, error)

	// Save persists the table under key, replacing any previous content.
	Save(ctx context.Context, key model.Key, table *model.Table) error
}
