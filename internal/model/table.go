package model

import (
	"math"
	"sort"
	"time"
)

// DedupPolicy selects which row survives when a merge sees the same
// timestamp twice.
type DedupPolicy int

const (
	// KeepFirst keeps the row already present (existing data wins).
	// Used by price, funding and premium-index datasets.
	KeepFirst DedupPolicy = iota

	// KeepLast keeps the newly merged row (incoming data wins). Used by
	// factor datasets, where the vendor corrects values retroactively.
	KeepLast
)

// Merge concatenates the receiver with incoming, deduplicates by timestamp
// under the given policy, and returns a new table sorted ascending.
// The receiver's rows count as "first seen". Columns are matched by name:
// the merged table carries the receiver's columns followed by any columns
// only incoming has, and every row is realigned to that order with NaN
// filling cells its source table lacks. A nil receiver merges as empty.
func (t *Table) Merge(incoming *Table, policy DedupPolicy) *Table {
	var columns []string
	pos := make(map[string]int)
	collect := func(src *Table) {
		if src == nil {
			return
		}
		for _, c := range src.Columns {
			if _, ok := pos[c]; !ok {
				pos[c] = len(columns)
				columns = append(columns, c)
			}
		}
	}
	collect(t)
	collect(incoming)

	realign := func(r Row, from []string) Row {
		if len(from) == len(columns) {
			same := true
			for i := range from {
				if from[i] != columns[i] {
					same = false
					break
				}
			}
			if same {
				return r
			}
		}
		values := make([]float32, len(columns))
		for i := range values {
			values[i] = float32(math.NaN())
		}
		for i, c := range from {
			if i < len(r.Values) {
				values[pos[c]] = r.Values[i]
			}
		}
		return Row{TS: r.TS, Values: values}
	}

	out := &Table{Columns: columns}
	seen := make(map[int64]int, t.Len()+incoming.Len())

	add := func(r Row, from []string) {
		r = realign(r, from)
		key := r.TS.Unix()
		if i, ok := seen[key]; ok {
			if policy == KeepLast {
				out.Rows[i] = r
			}
			return
		}
		seen[key] = len(out.Rows)
		out.Rows = append(out.Rows, r)
	}

	if t != nil {
		for _, r := range t.Rows {
			add(r, t.Columns)
		}
	}
	if incoming != nil {
		for _, r := range incoming.Rows {
			add(r, incoming.Columns)
		}
	}

	sort.SliceStable(out.Rows, func(i, j int) bool {
		return out.Rows[i].TS.Before(out.Rows[j].TS)
	})
	return out
}

// TruncateAfter returns a copy containing only rows with timestamp <= cutoff.
func (t *Table) TruncateAfter(cutoff time.Time) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for _, r := range t.Rows {
		if !r.TS.After(cutoff) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// TopOfHour returns a copy keeping only rows whose timestamp falls exactly
// on a minute-zero boundary, timestamps normalized to the hour. Raw funding
// feeds occasionally deliver sub-hour entries; only the top-of-hour record
// is meaningful.
func (t *Table) TopOfHour() *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for _, r := range t.Rows {
		if r.TS.Minute() != 0 {
			continue
		}
		r.TS = r.TS.Truncate(time.Hour)
		out.Rows = append(out.Rows, r)
	}
	return out
}

// Equal reports deep equality of columns, timestamps and values.
func (t *Table) Equal(other *Table) bool {
	if t.Len() != other.Len() || len(t.Columns) != len(other.Columns) {
		return false
	}
	for i, c := range t.Columns {
		if other.Columns[i] != c {
			return false
		}
	}
	for i, r := range t.Rows {
		o := other.Rows[i]
		if !r.TS.Equal(o.TS) || len(r.Values) != len(o.Values) {
			return false
		}
		for j, v := range r.Values {
			if o.Values[j] != v {
				return false
			}
		}
	}
	return true
}
