package model

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the category of a time series.
type Kind string

const (
	KindFuturePrice   Kind = "future_price"
	KindSpotPrice     Kind = "spot_price"
	KindEnhancedPrice Kind = "enhanced_price"
	KindBasis         Kind = "basis"
	KindFunding       Kind = "funding"
	KindPremiumIndex  Kind = "premium_index"
	KindFactor        Kind = "factor"
	KindMetric        Kind = "metric"
)

// Key identifies one persisted dataset: (provider, symbol, kind, resolution)
// maps deterministically to a single blob-store entry.
type Key struct {
	Provider   string        // e.g. "BINANCE", "GLASSNODE", "UNRAVEL"
	Symbol     string        // e.g. "BTCUSDT"
	Kind       Kind          // dataset category
	Resolution time.Duration // bar size (1m, 1h, 24h, ...)
}

// String renders the key in folder/file form, e.g.
// "BINANCE/BTCUSDT/future_price/1m".
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Provider, k.Symbol, k.Kind, FormatResolution(k.Resolution))
}

// FormatResolution renders a bar size the way provider APIs spell it
// ("1m", "1h", "24h", "8h").
func FormatResolution(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return fmt.Sprintf("%dm", int(d/time.Minute))
}

// ParseResolution is the inverse of FormatResolution.
func ParseResolution(s string) (time.Duration, error) {
	var n int
	switch {
	case strings.HasSuffix(s, "h"):
		if _, err := fmt.Sscanf(s, "%dh", &n); err != nil {
			return 0, fmt.Errorf("parse resolution %q: %w", s, err)
		}
		return time.Duration(n) * time.Hour, nil
	case strings.HasSuffix(s, "m"):
		if _, err := fmt.Sscanf(s, "%dm", &n); err != nil {
			return 0, fmt.Errorf("parse resolution %q: %w", s, err)
		}
		return time.Duration(n) * time.Minute, nil
	}
	return 0, fmt.Errorf("parse resolution %q: unknown unit", s)
}

// Row is one observation: a timestamp plus the numeric values for each
// column of the owning table, in column order.
type Row struct {
	TS     time.Time
	Values []float32
}

// Table is an ordered time-indexed table. Invariants after any merge:
// timestamps are unique and strictly increasing.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable creates an empty table with the given value columns.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }

// Last returns the timestamp of the final row, and false when empty.
func (t *Table) Last() (time.Time, bool) {
	if t.Empty() {
		return time.Time{}, false
	}
	return t.Rows[len(t.Rows)-1].TS, true
}

// ColumnIndex returns the position of a named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Append adds a row at the end. The caller is responsible for ordering;
// merges restore the invariants.
func (t *Table) Append(ts time.Time, values ...float32) {
	t.Rows = append(t.Rows, Row{TS: ts, Values: values})
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = Row{TS: r.TS, Values: append([]float32(nil), r.Values...)}
	}
	return out
}
