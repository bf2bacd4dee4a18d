package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dfilabs/pulse-data/internal/model"
)

func TestEnhancedFetcherFuturesWin(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	future := model.NewTable("open", "high", "low", "close", "volume")
	future.Append(ts.Add(time.Minute), 2, 2, 2, 2, 2)

	spot := model.NewTable("open", "high", "low", "close", "volume")
	spot.Append(ts, 1, 1, 1, 1, 1)                // before futures listing
	spot.Append(ts.Add(time.Minute), 9, 9, 9, 9, 9) // overlap, must lose

	f := EnhancedFetcher(&fakeFetch{table: future}, &fakeFetch{table: spot})
	got, err := f.FetchRange(context.Background(), "BTCUSDT", ts, ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}

	if got.Len() != 2 {
		t.Fatalf("rows = %d, want 2", got.Len())
	}
	if got.Rows[0].Values[0] != 1 {
		t.Errorf("first row = %v, want spot history fill", got.Rows[0].Values[0])
	}
	if got.Rows[1].Values[0] != 2 {
		t.Errorf("overlap row = %v, want futures bar", got.Rows[1].Values[0])
	}
}

func TestEnhancedFetcherDegradesToOneSide(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	spot := model.NewTable("open", "high", "low", "close", "volume")
	spot.Append(ts, 1, 1, 1, 1, 1)

	f := EnhancedFetcher(&fakeFetch{err: errors.New("futures down")}, &fakeFetch{table: spot})
	got, err := f.FetchRange(context.Background(), "BTCUSDT", ts, ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if got.Len() != 1 {
		t.Errorf("rows = %d, want the spot side", got.Len())
	}
}

func TestEnhancedFetcherBothSidesFail(t *testing.T) {
	f := EnhancedFetcher(&fakeFetch{err: errors.New("futures down")}, &fakeFetch{err: errors.New("spot down")})
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := f.FetchRange(context.Background(), "BTCUSDT", ts, ts.Add(time.Hour)); err == nil {
		t.Fatal("want error when both sides fail")
	}
}
