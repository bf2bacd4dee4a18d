// Package delist clips collection targets for instruments that have
// stopped trading, so no data is fetched past a delisting.
package delist

import (
	"fmt"
	"time"
)

// Record maps a symbol to its delisting date (midnight, day granularity).
type Record struct {
	Symbol string
	Date   time.Time
}

// Policy answers "how far may collection run for this symbol".
type Policy struct {
	dates map[string]time.Time
}

// NewPolicy builds a policy from explicit records.
func NewPolicy(records []Record) *Policy {
	dates := make(map[string]time.Time, len(records))
	for _, r := range records {
		dates[r.Symbol] = r.Date
	}
	return &Policy{dates: dates}
}

// ParseRecords converts symbol→"YYYY-MM-DD" pairs into records.
func ParseRecords(raw map[string]string) ([]Record, error) {
	records := make([]Record, 0, len(raw))
	for symbol, date := range raw {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("delisting date for %s: %w", symbol, err)
		}
		records = append(records, Record{Symbol: symbol, Date: d})
	}
	return records, nil
}

// Lookup returns the delisting date for a symbol, if known.
func (p *Policy) Lookup(symbol string) (time.Time, bool) {
	d, ok := p.dates[symbol]
	return d, ok
}

// Clip returns the effective collection target. For a symbol delisted on or
// before the requested target, the effective target is the end of the last
// full trading day: delisting date minus one day, at 23:59:00.
func (p *Policy) Clip(symbol string, target time.Time) (time.Time, bool) {
	if p == nil {
		return target, false
	}
	date, ok := p.dates[symbol]
	if !ok || date.After(target) {
		return target, false
	}
	effective := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 0, 0, date.Location()).AddDate(0, 0, -1)
	return effective, true
}
