package reconcile

import (
	"context"
	"time"

	"github.com/dfilabs/pulse-data/internal/model"
)

// EnhancedFetcher blends futures and spot price fetches into one series:
// futures bars take precedence, spot bars fill the history from before the
// futures listing. One side failing degrades to the other; the error
// surfaces only when both fail.
func EnhancedFetcher(future, spot Fetcher) Fetcher {
	return FetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) (*model.Table, error) {
		fut, futErr := future.FetchRange(ctx, symbol, start, end)
		sp, spErr := spot.FetchRange(ctx, symbol, start, end)

		switch {
		case futErr != nil && spErr != nil:
			return nil, futErr
		case futErr != nil:
			return sp, nil
		case spErr != nil:
			return fut, nil
		}
		return fut.Merge(sp, model.KeepFirst), nil
	})
}
