package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dfilabs/pulse-data/internal/model"
)

// Dual composes a local and an optional remote backend. Loads return the
// copy with the later last-timestamp, back-filling the local file when the
// remote copy wins. Saves always go local; the remote is written only when
// one was supplied.
type Dual struct {
	local  Store
	remote Store // may be nil
	logger *slog.Logger
}

// NewDual creates the dual-source selector. remote may be nil.
func NewDual(local Store, remote Store, logger *slog.Logger) *Dual {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dual{local: local, remote: remote, logger: logger}
}

// Load returns the freshest available copy. A missing entry in both
// backends yields an empty table, not an error: callers treat emptiness as
// "first collection".
func (d *Dual) Load(ctx context.Context, key model.Key) (*model.Table, error) {
	local, err := d.local.Load(ctx, key)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	var remote *model.Table
	if d.remote != nil {
		remote, err = d.remote.Load(ctx, key)
		if err != nil {
			if !errors.Is(err, model.ErrNotFound) {
				// A broken mirror must not block collection.
				d.logger.Warn("remote load failed, using local only",
					"key", key.String(), "error", err)
			}
			remote = nil
		}
	}

	switch {
	case local == nil && remote == nil:
		return &model.Table{}, nil
	case local == nil:
		if err := d.local.Save(ctx, key, remote); err != nil {
			return nil, err
		}
		return remote, nil
	case remote == nil:
		return local, nil
	}

	localLast, _ := local.Last()
	remoteLast, _ := remote.Last()
	if remoteLast.After(localLast) {
		d.logger.Info("remote copy is more recent, back-filling local",
			"key", key.String(), "local_last", localLast, "remote_last", remoteLast)
		if err := d.local.Save(ctx, key, remote); err != nil {
			return nil, err
		}
		return remote, nil
	}
	return local, nil
}

// Save persists to the local backend, then mirrors to the remote when
// configured.
func (d *Dual) Save(ctx context.Context, key model.Key, table *model.Table) error {
	if err := d.local.Save(ctx, key, table); err != nil {
		return err
	}
	if d.remote != nil {
		if err := d.remote.Save(ctx, key, table); err != nil {
			return err
		}
	}
	return nil
}
