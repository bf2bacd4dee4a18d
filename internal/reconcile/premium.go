package reconcile

import (
	"strings"

	"github.com/dfilabs/pulse-data/internal/model"
)

// Trailing windows, in 1-minute bars, for the derived funding estimates.
var fundingWindows = []struct {
	column string
	bars   int
}{
	{"funding_1h", 60},
	{"funding_2h", 120},
	{"funding_4h", 240},
	{"funding_8h", 480},
}

// WithRollingFunding recomputes the derived funding-estimate columns of a
// premium-index table: for each trailing window, the index-weighted moving
// average of the close column with weights 0..n-1 (newest bar weighted
// highest). Existing derived columns are stripped and rebuilt, so the
// result is the same whether rows arrive in one batch or incrementally.
func WithRollingFunding(t *model.Table) *model.Table {
	closeIdx := t.ColumnIndex("close")
	if closeIdx < 0 {
		return t
	}

	// Base columns are everything before the first derived column.
	nbase := len(t.Columns)
	for i, c := range t.Columns {
		if strings.HasPrefix(c, "funding_") {
			nbase = i
			break
		}
	}

	columns := make([]string, 0, nbase+len(fundingWindows))
	columns = append(columns, t.Columns[:nbase]...)
	for _, w := range fundingWindows {
		columns = append(columns, w.column)
	}

	out := &model.Table{
		Columns: columns,
		Rows:    make([]model.Row, 0, t.Len()),
	}
	averagers := make([]*weightedAverager, len(fundingWindows))
	for i, w := range fundingWindows {
		averagers[i] = newWeightedAverager(w.bars)
	}

	for _, r := range t.Rows {
		x := float64(r.Values[closeIdx])
		values := make([]float32, 0, len(columns))
		values = append(values, r.Values[:nbase]...)
		for _, a := range averagers {
			values = append(values, float32(a.push(x)))
		}
		out.Rows = append(out.Rows, model.Row{TS: r.TS, Values: values})
	}
	return out
}

// weightedAverager maintains an index-weighted moving average over a fixed
// trailing window in O(1) per update: with values v_0..v_{m-1} (oldest
// first) and weights 0..m-1, it tracks the plain sum S and weighted sum W.
// Evicting v_0 shifts every remaining weight down by one, so
// W' = W - (S - v_0); appending x adds weight m-1.
type weightedAverager struct {
	window int
	buf    []float64
	head   int
	sum    float64
	wsum   float64
}

func newWeightedAverager(window int) *weightedAverager {
	return &weightedAverager{window: window, buf: make([]float64, 0, window)}
}

// push adds a value and returns the current weighted average. A window
// holding a single value returns that value; shorter-than-window prefixes
// average over what is present.
func (a *weightedAverager) push(x float64) float64 {
	if len(a.buf) == a.window {
		oldest := a.buf[a.head]
		a.wsum -= a.sum - oldest
		a.sum -= oldest
		a.buf[a.head] = x
		a.head = (a.head + 1) % a.window
		a.sum += x
		a.wsum += float64(a.window-1) * x
	} else {
		a.wsum += float64(len(a.buf)) * x
		a.buf = append(a.buf, x)
		a.sum += x
	}

	m := len(a.buf)
	denom := float64(m*(m-1)) / 2
	if denom == 0 {
		return x
	}
	return a.wsum / denom
}
