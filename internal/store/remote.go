package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dfilabs/pulse-data/internal/model"
)

// Remote mirrors dataset tables into Postgres in long format. Points live
// in series_points keyed by (provider, symbol, kind, resolution, ts, field);
// series_columns records each dataset's column order so a load reproduces
// the table exactly.
type Remote struct {
	db     *pgxpool.Pool
	logger *slog.Logger
	runID  uuid.UUID
}

// NewRemote creates a Postgres-backed store. runID stamps every upserted
// point with the collection run that produced it.
func NewRemote(db *pgxpool.Pool, runID uuid.UUID, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{db: db, logger: logger, runID: runID}
}

// Schema is the DDL the remote backend expects.
const Schema = `
CREATE TABLE IF NOT EXISTS series_columns (
	provider        text NOT NULL,
	symbol          text NOT NULL,
	kind            text NOT NULL,
	resolution_secs bigint NOT NULL,
	columns         text NOT NULL,
	PRIMARY KEY (provider, symbol, kind, resolution_secs)
);

CREATE TABLE IF NOT EXISTS series_points (
	provider        text NOT NULL,
	symbol          text NOT NULL,
	kind            text NOT NULL,
	resolution_secs bigint NOT NULL,
	ts              timestamptz NOT NULL,
	field           text NOT NULL,
	value           real NOT NULL,
	updated_run     uuid,
	PRIMARY KEY (provider, symbol, kind, resolution_secs, ts, field)
);
`

// Migrate creates the backing tables.
func (r *Remote) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate series schema: %w", err)
	}
	return nil
}

// Load reconstructs the table for key, or model.ErrNotFound.
func (r *Remote) Load(ctx context.Context, key model.Key) (*model.Table, error) {
	var columnList string
	err := r.db.QueryRow(ctx, `
		SELECT columns FROM series_columns
		WHERE provider = $1 AND symbol = $2 AND kind = $3 AND resolution_secs = $4
	`, key.Provider, key.Symbol, string(key.Kind), int64(key.Resolution/time.Second)).Scan(&columnList)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("load columns %s: %w", key, err)
	}

	columns := strings.Split(columnList, ",")
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}

	rows, err := r.db.Query(ctx, `
		SELECT ts, field, value FROM series_points
		WHERE provider = $1 AND symbol = $2 AND kind = $3 AND resolution_secs = $4
		ORDER BY ts
	`, key.Provider, key.Symbol, string(key.Kind), int64(key.Resolution/time.Second))
	if err != nil {
		return nil, fmt.Errorf("load points %s: %w", key, err)
	}
	defer rows.Close()

	table := model.NewTable(columns...)
	var current *model.Row
	for rows.Next() {
		var ts time.Time
		var field string
		var value float32
		if err := rows.Scan(&ts, &field, &value); err != nil {
			return nil, fmt.Errorf("scan point %s: %w", key, err)
		}
		ts = ts.UTC().Truncate(time.Second)
		if current == nil || !current.TS.Equal(ts) {
			table.Rows = append(table.Rows, model.Row{TS: ts, Values: make([]float32, len(columns))})
			current = &table.Rows[len(table.Rows)-1]
		}
		if i, ok := index[field]; ok {
			current.Values[i] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load points %s: %w", key, err)
	}
	return table, nil
}

// Save upserts the table's points and prunes anything past its final
// timestamp, so a truncated table truncates the mirror too.
func (r *Remote) Save(ctx context.Context, key model.Key, table *model.Table) error {
	resolution := int64(key.Resolution / time.Second)

	if _, err := r.db.Exec(ctx, `
		INSERT INTO series_columns (provider, symbol, kind, resolution_secs, columns)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, symbol, kind, resolution_secs) DO UPDATE SET columns = EXCLUDED.columns
	`, key.Provider, key.Symbol, string(key.Kind), resolution, strings.Join(table.Columns, ",")); err != nil {
		return fmt.Errorf("save columns %s: %w", key, err)
	}

	start := time.Now()
	batch := &pgx.Batch{}
	for _, row := range table.Rows {
		for i, col := range table.Columns {
			batch.Queue(`
				INSERT INTO series_points (provider, symbol, kind, resolution_secs, ts, field, value, updated_run)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (provider, symbol, kind, resolution_secs, ts, field)
				DO UPDATE SET value = EXCLUDED.value, updated_run = EXCLUDED.updated_run
			`, key.Provider, key.Symbol, string(key.Kind), resolution, row.TS, col, row.Values[i], r.runID)
		}
	}

	results := r.db.SendBatch(ctx, batch)
	for range batch.Len() {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upsert points %s: %w", key, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch %s: %w", key, err)
	}

	if last, ok := table.Last(); ok {
		if _, err := r.db.Exec(ctx, `
			DELETE FROM series_points
			WHERE provider = $1 AND symbol = $2 AND kind = $3 AND resolution_secs = $4 AND ts > $5
		`, key.Provider, key.Symbol, string(key.Kind), resolution, last); err != nil {
			return fmt.Errorf("prune points %s: %w", key, err)
		}
	}

	r.logger.Debug("mirrored table",
		"key", key.String(),
		"rows", table.Len(),
		"duration", time.Since(start),
	)
	return nil
}
