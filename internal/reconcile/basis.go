package reconcile

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dfilabs/pulse-data/internal/model"
)

// Basis is the spot-vs-future 1-minute dataset: the close and volume of
// both legs side by side, the raw material for basis-spread signals.
func Basis() Dataset {
	return Dataset{
		Provider:   "BINANCE",
		Kind:       model.KindBasis,
		Resolution: time.Minute,
		Epoch:      epochFutures,
		Dedup:      model.KeepFirst,
		Freshness:  FreshExact,
	}
}

// BasisFetcher fetches both price legs and joins them on timestamp into
// close_spot/volume_spot/close_future/volume_future columns. Unlike the
// enhanced blend, both legs are required: a failed leg fails the fetch and
// the reconciler falls back to existing data.
func BasisFetcher(future, spot Fetcher) Fetcher {
	return FetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) (*model.Table, error) {
		sp, err := spot.FetchRange(ctx, symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("basis spot leg %s: %w", symbol, err)
		}
		fut, err := future.FetchRange(ctx, symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("basis future leg %s: %w", symbol, err)
		}
		return joinBasis(sp, fut)
	})
}

// joinBasis outer-joins the two legs on timestamp. Minutes present on only
// one leg carry NaN on the other side, matching how the legs trade at
// different hours around listings and halts.
func joinBasis(spot, future *model.Table) (*model.Table, error) {
	out := model.NewTable("close_spot", "volume_spot", "close_future", "volume_future")
	index := make(map[int64]int, spot.Len()+future.Len())
	nan := float32(math.NaN())

	place := func(t *model.Table, leg string, closeDst, volumeDst int) error {
		if t.Empty() {
			return nil
		}
		closeSrc := t.ColumnIndex("close")
		volumeSrc := t.ColumnIndex("volume")
		if closeSrc < 0 || volumeSrc < 0 {
			return fmt.Errorf("basis %s leg: missing close or volume column", leg)
		}
		for _, r := range t.Rows {
			key := r.TS.Unix()
			i, ok := index[key]
			if !ok {
				i = len(out.Rows)
				index[key] = i
				out.Rows = append(out.Rows, model.Row{TS: r.TS, Values: []float32{nan, nan, nan, nan}})
			}
			out.Rows[i].Values[closeDst] = r.Values[closeSrc]
			out.Rows[i].Values[volumeDst] = r.Values[volumeSrc]
		}
		return nil
	}

	if err := place(spot, "spot", 0, 1); err != nil {
		return nil, err
	}
	if err := place(future, "future", 2, 3); err != nil {
		return nil, err
	}

	sort.SliceStable(out.Rows, func(i, j int) bool {
		return out.Rows[i].TS.Before(out.Rows[j].TS)
	})
	return out, nil
}
