package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dfilabs/pulse-data/internal/delist"
	"github.com/dfilabs/pulse-data/internal/model"
)

// fakeStore is an in-memory Store keyed by Key.String().
type fakeStore struct {
	tables map[string]*model.Table
	saves  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string]*model.Table)}
}

func (s *fakeStore) Load(_ context.Context, key model.Key) (*model.Table, error) {
	t, ok := s.tables[key.String()]
	if !ok {
		return nil, model.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *fakeStore) Save(_ context.Context, key model.Key, table *model.Table) error {
	s.saves++
	s.tables[key.String()] = table.Clone()
	return nil
}

// fakeFetch records calls and serves a canned table or error.
type fakeFetch struct {
	calls []struct{ start, end time.Time }
	table *model.Table
	err   error
}

func (f *fakeFetch) FetchRange(_ context.Context, _ string, start, end time.Time) (*model.Table, error) {
	f.calls = append(f.calls, struct{ start, end time.Time }{start, end})
	if f.err != nil {
		return nil, f.err
	}
	return f.table, nil
}

func minuteBars(from time.Time, n int) *model.Table {
	t := model.NewTable("open", "high", "low", "close", "volume")
	for i := range n {
		v := float32(i)
		t.Append(from.Add(time.Duration(i)*time.Minute), v, v, v, v, v)
	}
	return t
}

func TestReconcileAppendsMissingSuffix(t *testing.T) {
	day1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	target := time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC)

	s := newFakeStore()
	ds := FuturePrices()
	key := ds.Key("BTCUSDT")
	if err := s.Save(context.Background(), key, minuteBars(day1, 1440)); err != nil {
		t.Fatal(err)
	}
	s.saves = 0

	fetch := &fakeFetch{table: minuteBars(day2, 1440)}
	r := New(s)
	got, err := r.Reconcile(context.Background(), ds, "BTCUSDT", fetch, target)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if got.Len() != 2880 {
		t.Errorf("rows = %d, want 2880", got.Len())
	}
	last, _ := got.Last()
	if !last.Equal(target) {
		t.Errorf("last = %v, want %v", last, target)
	}
	if len(fetch.calls) != 1 {
		t.Fatalf("fetch calls = %d, want 1", len(fetch.calls))
	}
	wantStart := day1.Add(1439*time.Minute - time.Minute)
	if !fetch.calls[0].start.Equal(wantStart) {
		t.Errorf("fetch start = %v, want last - 1 bar = %v", fetch.calls[0].start, wantStart)
	}
	if !fetch.calls[0].end.Equal(target) {
		t.Errorf("fetch end = %v, want %v", fetch.calls[0].end, target)
	}
	if s.saves != 1 {
		t.Errorf("saves = %d, want 1", s.saves)
	}

	seen := make(map[int64]bool, got.Len())
	for _, row := range got.Rows {
		if seen[row.TS.Unix()] {
			t.Fatalf("duplicate timestamp %v", row.TS)
		}
		seen[row.TS.Unix()] = true
	}
}

func TestReconcileFreshSkipsFetch(t *testing.T) {
	target := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s := newFakeStore()
	ds := FuturePrices()
	if err := s.Save(context.Background(), ds.Key("BTCUSDT"), minuteBars(day, 1440)); err != nil {
		t.Fatal(err)
	}
	s.saves = 0

	fetch := &fakeFetch{err: errors.New("must not be called")}
	got, err := New(s).Reconcile(context.Background(), ds, "BTCUSDT", fetch, target)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(fetch.calls) != 0 {
		t.Errorf("fetch calls = %d, want 0 (fresh short-circuit)", len(fetch.calls))
	}
	if got.Len() != 1440 {
		t.Errorf("rows = %d", got.Len())
	}
	if s.saves != 0 {
		t.Errorf("saves = %d, want 0", s.saves)
	}
}

func TestReconcileFundingFreshAtResolution(t *testing.T) {
	// Funding settles on the hour; a 23:00 row satisfies a 23:59 target.
	target := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)

	existing := model.NewTable("funding")
	for h := 0; h < 24; h += 8 {
		existing.Append(time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC), 0.0001)
	}
	existing.Append(time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC), 0.0001)

	s := newFakeStore()
	ds := FundingRates()
	if err := s.Save(context.Background(), ds.Key("BTCUSDT"), existing); err != nil {
		t.Fatal(err)
	}

	fetch := &fakeFetch{err: errors.New("must not be called")}
	if _, err := New(s).Reconcile(context.Background(), ds, "BTCUSDT", fetch, target); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(fetch.calls) != 0 {
		t.Errorf("fetch calls = %d, want 0", len(fetch.calls))
	}
}

func TestReconcileIdempotent(t *testing.T) {
	day1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	target := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)

	s := newFakeStore()
	ds := FuturePrices()
	fetch := &fakeFetch{table: minuteBars(day1, 1440)}
	r := New(s)

	first, err := r.Reconcile(context.Background(), ds, "BTCUSDT", fetch, target)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := r.Reconcile(context.Background(), ds, "BTCUSDT", fetch, target)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !first.Equal(second) {
		t.Error("repeated reconcile with no new data changed the table")
	}
	if len(fetch.calls) != 1 {
		t.Errorf("fetch calls = %d, want 1 (second run is fresh)", len(fetch.calls))
	}
}

func TestReconcileEmptyAndFailingFetch(t *testing.T) {
	s := newFakeStore()
	fetch := &fakeFetch{err: errors.New("connection refused")}
	target := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)

	_, err := New(s).Reconcile(context.Background(), FuturePrices(), "BTCUSDT", fetch, target)
	if !errors.Is(err, model.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	if s.saves != 0 {
		t.Errorf("saves = %d, nothing must be persisted", s.saves)
	}
	if len(fetch.calls) != 1 || !fetch.calls[0].start.Equal(epochFutures) {
		t.Errorf("fetch window = %+v, want start at provider epoch", fetch.calls)
	}
}

func TestReconcileDegradesToExistingOnFetchError(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	target := time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC)

	s := newFakeStore()
	ds := FuturePrices()
	if err := s.Save(context.Background(), ds.Key("BTCUSDT"), minuteBars(day, 1440)); err != nil {
		t.Fatal(err)
	}

	fetch := &fakeFetch{err: errors.New("connection refused")}
	got, err := New(s).Reconcile(context.Background(), ds, "BTCUSDT", fetch, target)
	if err != nil {
		t.Fatalf("Reconcile: %v (existing data must win over fetch failure)", err)
	}
	if got.Len() != 1440 {
		t.Errorf("rows = %d, want the 1440 existing", got.Len())
	}
}

func TestReconcileClipsDelistedTarget(t *testing.T) {
	day := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	target := time.Date(2024, 4, 1, 23, 59, 0, 0, time.UTC)
	clipped := time.Date(2024, 3, 14, 23, 59, 0, 0, time.UTC)

	policy := delist.NewPolicy([]delist.Record{
		{Symbol: "LUNAUSDT", Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	})

	s := newFakeStore()
	ds := FuturePrices()
	if err := s.Save(context.Background(), ds.Key("LUNAUSDT"), minuteBars(day, 1440)); err != nil {
		t.Fatal(err)
	}

	// Fetcher returns bars past the delisting; they must not survive.
	fetch := &fakeFetch{table: minuteBars(day.AddDate(0, 0, 1), 4*1440)}
	r := New(s, WithDelistings(policy))
	got, err := r.Reconcile(context.Background(), ds, "LUNAUSDT", fetch, target)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if !fetch.calls[0].end.Equal(clipped) {
		t.Errorf("fetch end = %v, want clipped %v", fetch.calls[0].end, clipped)
	}
	last, _ := got.Last()
	if !last.Equal(clipped) {
		t.Errorf("last = %v, want %v", last, clipped)
	}
	for _, row := range got.Rows {
		if row.TS.After(clipped) {
			t.Fatalf("row %v past clipped target", row.TS)
		}
	}
}

func TestReconcileDelistedWithOvershootingExisting(t *testing.T) {
	// Existing data reaches past the clipped target: sufficient, no fetch.
	target := time.Date(2024, 4, 1, 23, 59, 0, 0, time.UTC)
	clipped := time.Date(2024, 3, 14, 23, 59, 0, 0, time.UTC)

	policy := delist.NewPolicy([]delist.Record{
		{Symbol: "LUNAUSDT", Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	})

	s := newFakeStore()
	ds := FuturePrices()
	if err := s.Save(context.Background(), ds.Key("LUNAUSDT"),
		minuteBars(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), 2*1440)); err != nil {
		t.Fatal(err)
	}

	fetch := &fakeFetch{err: errors.New("must not be called")}
	got, err := New(s, WithDelistings(policy)).Reconcile(context.Background(), ds, "LUNAUSDT", fetch, target)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(fetch.calls) != 0 {
		t.Errorf("fetch calls = %d, want 0", len(fetch.calls))
	}
	last, _ := got.Last()
	if !last.Equal(clipped) {
		t.Errorf("last = %v, want truncated to %v", last, clipped)
	}
}

func TestReconcileFactorKeepsIncomingRows(t *testing.T) {
	day := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	target := day.AddDate(0, 0, 1)

	existing := model.NewTable("BTCUSDT")
	existing.Append(day, 0.10)

	incoming := model.NewTable("BTCUSDT")
	incoming.Append(day, 0.12) // vendor correction
	incoming.Append(target, 0.15)

	s := newFakeStore()
	ds := Factors()
	if err := s.Save(context.Background(), ds.Key("altair"), existing); err != nil {
		t.Fatal(err)
	}

	got, err := New(s).Reconcile(context.Background(), ds, "altair", &fakeFetch{table: incoming}, target)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("rows = %d, want 2", got.Len())
	}
	if got.Rows[0].Values[0] != 0.12 {
		t.Errorf("corrected value = %v, want incoming 0.12", got.Rows[0].Values[0])
	}
}

func TestReconcilePriceKeepsExistingRows(t *testing.T) {
	ts := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	target := ts.AddDate(0, 0, 1)

	existing := minuteBars(ts, 1)
	incoming := model.NewTable("open", "high", "low", "close", "volume")
	incoming.Append(ts, 9, 9, 9, 9, 9)
	incoming.Append(target, 1, 1, 1, 1, 1)

	s := newFakeStore()
	ds := FuturePrices()
	if err := s.Save(context.Background(), ds.Key("BTCUSDT"), existing); err != nil {
		t.Fatal(err)
	}

	got, err := New(s).Reconcile(context.Background(), ds, "BTCUSDT", &fakeFetch{table: incoming}, target)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Rows[0].Values[0] != 0 {
		t.Errorf("overlap value = %v, want existing row preserved", got.Rows[0].Values[0])
	}
}

func TestAvailableReadsWithoutNetwork(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	target := time.Date(2024, 1, 1, 11, 59, 0, 0, time.UTC)

	s := newFakeStore()
	ds := FuturePrices()
	if err := s.Save(context.Background(), ds.Key("BTCUSDT"), minuteBars(day, 1440)); err != nil {
		t.Fatal(err)
	}

	got, err := New(s).Available(context.Background(), ds, "BTCUSDT", target)
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if got.Len() != 720 {
		t.Errorf("rows = %d, want 720 (truncated to target)", got.Len())
	}

	if _, err := New(s).Available(context.Background(), ds, "ETHUSDT", target); !errors.Is(err, model.ErrNoData) {
		t.Errorf("err = %v, want ErrNoData for absent key", err)
	}
}

func TestReconcileMonotonicFreshness(t *testing.T) {
	day1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newFakeStore()
	ds := FuturePrices()
	r := New(s)

	t1 := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	first, err := r.Reconcile(context.Background(), ds, "BTCUSDT", &fakeFetch{table: minuteBars(day1, 1440)}, t1)
	if err != nil {
		t.Fatal(err)
	}

	t2 := t1.AddDate(0, 0, 1)
	second, err := r.Reconcile(context.Background(), ds, "BTCUSDT",
		&fakeFetch{table: minuteBars(day1.AddDate(0, 0, 1), 1440)}, t2)
	if err != nil {
		t.Fatal(err)
	}

	l1, _ := first.Last()
	l2, _ := second.Last()
	if l2.Before(l1) {
		t.Errorf("freshness went backward: %v then %v", l1, l2)
	}
}

func TestDefaultTarget(t *testing.T) {
	now := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)
	want := time.Date(2024, 6, 14, 23, 59, 0, 0, time.UTC)
	if got := DefaultTarget(now); !got.Equal(want) {
		t.Errorf("DefaultTarget = %v, want %v", got, want)
	}
}

func TestDatasetKeys(t *testing.T) {
	cases := []struct {
		ds   Dataset
		want string
	}{
		{FuturePrices(), "BINANCE/BTCUSDT/future_price/1m"},
		{SpotPrices(), "BINANCE/BTCUSDT/spot_price/1m"},
		{EnhancedPrices(), "BINANCE/BTCUSDT/enhanced_price/1m"},
		{FundingRates(), "BINANCE/BTCUSDT/funding/1h"},
		{PremiumIndex(), "BINANCE/BTCUSDT/premium_index/1m"},
		{Factors(), "UNRAVEL/BTCUSDT/factor/24h"},
		{Metrics(), "GLASSNODE/BTCUSDT/metric/24h"},
	}
	for _, c := range cases {
		if got := c.ds.Key("BTCUSDT").String(); got != c.want {
			t.Errorf("key = %q, want %q", got, c.want)
		}
	}
}

func TestFreshnessRules(t *testing.T) {
	target := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	cases := []struct {
		name string
		ds   Dataset
		last time.Time
		want bool
	}{
		{"exact at target", FuturePrices(), target, true},
		{"exact one bar short", FuturePrices(), target.Add(-time.Minute), false},
		{"exact past target", FuturePrices(), target.Add(time.Minute), true},
		{"funding at hour floor", FundingRates(), target.Truncate(time.Hour), true},
		{"funding one hour short", FundingRates(), target.Add(-time.Hour), false},
		{"daily same day", Factors(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"daily previous day", Factors(), time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC), false},
	}
	for _, c := range cases {
		if got := c.ds.fresh(c.last, target); got != c.want {
			t.Errorf("%s: fresh = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestReconcileTruncationProperty(t *testing.T) {
	// Fetcher over-delivers past the target; nothing past it may survive.
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	target := time.Date(2024, 1, 1, 11, 59, 0, 0, time.UTC)

	s := newFakeStore()
	got, err := New(s).Reconcile(context.Background(), FuturePrices(), "BTCUSDT",
		&fakeFetch{table: minuteBars(day, 1440)}, target)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range got.Rows {
		if row.TS.After(target) {
			t.Fatalf("row %v past target %v", row.TS, target)
		}
	}
	if got.Len() != 720 {
		t.Errorf("rows = %d, want 720", got.Len())
	}
}

func ExampleReconciler_Reconcile() {
	s := newFakeStore()
	fetch := FetcherFunc(func(_ context.Context, _ string, start, end time.Time) (*model.Table, error) {
		t := model.NewTable("open", "high", "low", "close", "volume")
		t.Append(end, 1, 2, 0.5, 1.5, 100)
		return t, nil
	})

	r := New(s)
	target := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	table, _ := r.Reconcile(context.Background(), FuturePrices(), "BTCUSDT", fetch, target)
	last, _ := table.Last()
	fmt.Println(table.Len(), last.Format("2006-01-02 15:04:05"))
	// Output: 1 2024-01-01 23:59:00
}
