package reconcile

import (
	"math"
	"testing"
	"time"

	"github.com/dfilabs/pulse-data/internal/model"
)

func TestWeightedAveragerMatchesDirectComputation(t *testing.T) {
	const window = 7
	a := newWeightedAverager(window)

	var values []float64
	for i := range 40 {
		x := math.Sin(float64(i)/3) * 0.001
		values = append(values, x)
		got := a.push(x)

		lo := 0
		if len(values) > window {
			lo = len(values) - window
		}
		var wsum, denom float64
		for j, v := range values[lo:] {
			wsum += float64(j) * v
			denom += float64(j)
		}
		want := x
		if denom > 0 {
			want = wsum / denom
		}
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("step %d: got %v, want %v", i, got, want)
		}
	}
}

func TestWithRollingFundingConstantSeries(t *testing.T) {
	// A constant close must produce the constant in every derived column.
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := model.NewTable("open", "high", "low", "close")
	for i := range 600 {
		in.Append(from.Add(time.Duration(i)*time.Minute), 0.0003, 0.0003, 0.0003, 0.0003)
	}

	out := WithRollingFunding(in)
	wantCols := []string{"open", "high", "low", "close", "funding_1h", "funding_2h", "funding_4h", "funding_8h"}
	if len(out.Columns) != len(wantCols) {
		t.Fatalf("columns = %v", out.Columns)
	}
	for i, c := range wantCols {
		if out.Columns[i] != c {
			t.Fatalf("columns = %v", out.Columns)
		}
	}
	for _, row := range out.Rows {
		for i := 4; i < 8; i++ {
			if math.Abs(float64(row.Values[i])-0.0003) > 1e-9 {
				t.Fatalf("%v %s = %v, want 0.0003", row.TS, out.Columns[i], row.Values[i])
			}
		}
	}
}

func TestWithRollingFundingIncrementalMatchesBatch(t *testing.T) {
	// Deriving over the full series must equal deriving a prefix,
	// merging raw new rows, and deriving again.
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := make([]float32, 700)
	for i := range closes {
		closes[i] = float32(math.Sin(float64(i)/17) * 0.002)
	}

	full := model.NewTable("open", "high", "low", "close")
	for i, c := range closes {
		full.Append(from.Add(time.Duration(i)*time.Minute), c, c, c, c)
	}
	batch := WithRollingFunding(full)

	prefix := model.NewTable("open", "high", "low", "close")
	suffix := model.NewTable("open", "high", "low", "close")
	for i, c := range closes {
		ts := from.Add(time.Duration(i) * time.Minute)
		if i < 500 {
			prefix.Append(ts, c, c, c, c)
		} else {
			suffix.Append(ts, c, c, c, c)
		}
	}
	persisted := WithRollingFunding(prefix)
	incremental := WithRollingFunding(persisted.Merge(suffix, model.KeepFirst))

	if !batch.Equal(incremental) {
		t.Fatal("incremental derivation diverged from batch derivation")
	}
}

func TestWithRollingFundingNoCloseColumn(t *testing.T) {
	in := model.NewTable("value")
	in.Append(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	if out := WithRollingFunding(in); !out.Equal(in) {
		t.Error("table without close column must pass through unchanged")
	}
}
