package store

import (
	"context"
	"testing"
	"time"

	"github.com/dfilabs/pulse-data/internal/model"
)

// memStore is an in-memory Store for selector tests.
type memStore struct {
	tables map[string]*model.Table
	saves  int
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string]*model.Table)}
}

func (m *memStore) Load(_ context.Context, key model.Key) (*model.Table, error) {
	t, ok := m.tables[key.String()]
	if !ok {
		return nil, model.ErrNotFound
	}
	return t.Clone(), nil
}

func (m *memStore) Save(_ context.Context, key model.Key, table *model.Table) error {
	m.tables[key.String()] = table.Clone()
	m.saves++
	return nil
}

func tableEnding(last time.Time, n int) *model.Table {
	t := model.NewTable("close")
	for i := n - 1; i >= 0; i-- {
		t.Append(last.Add(-time.Duration(i)*time.Minute), float32(i))
	}
	return t
}

func TestDual_RemoteNewerBackfillsLocal(t *testing.T) {
	ctx := context.Background()
	key := priceKey("BTCUSDT")
	local, remote := newMemStore(), newMemStore()

	localLast := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	remoteLast := time.Date(2024, 1, 1, 0, 9, 0, 0, time.UTC)
	local.tables[key.String()] = tableEnding(localLast, 3)
	remote.tables[key.String()] = tableEnding(remoteLast, 3)

	d := NewDual(local, remote, nil)
	got, err := d.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	last, _ := got.Last()
	if !last.Equal(remoteLast) {
		t.Errorf("last = %v, want remote %v", last, remoteLast)
	}
	backfilled, _ := local.Load(ctx, key)
	if bl, _ := backfilled.Last(); !bl.Equal(remoteLast) {
		t.Errorf("local not back-filled, last = %v", bl)
	}
}

func TestDual_LocalNewerWins(t *testing.T) {
	ctx := context.Background()
	key := priceKey("BTCUSDT")
	local, remote := newMemStore(), newMemStore()

	localLast := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	remoteLast := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	local.tables[key.String()] = tableEnding(localLast, 2)
	remote.tables[key.String()] = tableEnding(remoteLast, 2)

	d := NewDual(local, remote, nil)
	got, err := d.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if last, _ := got.Last(); !last.Equal(localLast) {
		t.Errorf("last = %v, want local %v", last, localLast)
	}
	if remote.saves != 0 {
		t.Errorf("remote written on load, saves = %d", remote.saves)
	}
}

func TestDual_OnlyOnePresent(t *testing.T) {
	ctx := context.Background()
	key := priceKey("SOLUSDT")
	local, remote := newMemStore(), newMemStore()
	remoteLast := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	remote.tables[key.String()] = tableEnding(remoteLast, 2)

	d := NewDual(local, remote, nil)
	got, err := d.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if last, _ := got.Last(); !last.Equal(remoteLast) {
		t.Errorf("last = %v, want %v", last, remoteLast)
	}
}

func TestDual_NeitherPresentIsEmptyNotError(t *testing.T) {
	d := NewDual(newMemStore(), nil, nil)
	got, err := d.Load(context.Background(), priceKey("NEWUSDT"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Empty() {
		t.Errorf("expected empty table for first collection")
	}
}

func TestDual_SaveWritesBoth(t *testing.T) {
	ctx := context.Background()
	key := priceKey("BTCUSDT")
	local, remote := newMemStore(), newMemStore()
	d := NewDual(local, remote, nil)

	if err := d.Save(ctx, key, tableEnding(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 2)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if local.saves != 1 || remote.saves != 1 {
		t.Errorf("saves local=%d remote=%d, want 1/1", local.saves, remote.saves)
	}
}

func TestDual_SaveWithoutRemote(t *testing.T) {
	local := newMemStore()
	d := NewDual(local, nil, nil)
	if err := d.Save(context.Background(), priceKey("BTCUSDT"), tableEnding(time.Now().UTC().Truncate(time.Minute), 1)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if local.saves != 1 {
		t.Errorf("local saves = %d, want 1", local.saves)
	}
}
