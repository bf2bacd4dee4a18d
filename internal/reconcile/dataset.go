package reconcile

import (
	"time"

	"github.com/dfilabs/pulse-data/internal/model"
)

// Freshness selects how a table's last timestamp is compared against the
// target when deciding whether a network fetch is needed.
type Freshness int

const (
	// FreshExact requires the last row to sit exactly on the target bar.
	// Minute-bar datasets end on a bar boundary, so anything earlier
	// means missing data.
	FreshExact Freshness = iota

	// FreshAtLeast requires the last row to reach the target rounded
	// down to the dataset resolution. Funding settles on the hour, so a
	// 23:59 target is satisfied by a 23:00 row.
	FreshAtLeast

	// FreshSameDay requires the last row to fall on the target's UTC
	// calendar day. Daily vendor series stamp rows at varying times of
	// day.
	FreshSameDay
)

// Provider epochs: the earliest date each series is requested from when no
// data exists yet.
var (
	epochFutures = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	epochSpot    = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	epochDaily   = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Dataset describes the collection behavior of one series kind.
type Dataset struct {
	Provider   string
	Kind       model.Kind
	Resolution time.Duration

	// Epoch is where collection starts when nothing is persisted yet.
	Epoch time.Time

	// StepBack is subtracted from the last persisted timestamp to form
	// the fetch window start, re-covering the boundary bar. Defaults to
	// one resolution unit.
	StepBack time.Duration

	Dedup     model.DedupPolicy
	Freshness Freshness

	// Derive, when set, recomputes analytic columns over the merged
	// table before truncation. It must be a pure function of the base
	// columns so repeated runs converge.
	Derive func(*model.Table) *model.Table
}

// Key returns the dataset key for one symbol.
func (d Dataset) Key(symbol string) model.Key {
	return model.Key{Provider: d.Provider, Symbol: symbol, Kind: d.Kind, Resolution: d.Resolution}
}

// stepBack returns the configured step-back, defaulting to one resolution
// unit.
func (d Dataset) stepBack() time.Duration {
	if d.StepBack > 0 {
		return d.StepBack
	}
	return d.Resolution
}

// fresh reports whether a table ending at last needs no fetch for target.
// Data reaching past the target is always sufficient; a delisting clip can
// move the target under an existing table's end.
func (d Dataset) fresh(last, target time.Time) bool {
	switch d.Freshness {
	case FreshAtLeast:
		return !last.Before(target.Truncate(d.Resolution))
	case FreshSameDay:
		if !last.Before(target) {
			return true
		}
		ly, lm, ld := last.UTC().Date()
		ty, tm, td := target.UTC().Date()
		return ly == ty && lm == tm && ld == td
	default:
		return !last.Before(target)
	}
}

// FuturePrices is the Binance USDⓈ-M futures 1-minute OHLCV dataset.
func FuturePrices() Dataset {
	return Dataset{
		Provider:   "BINANCE",
		Kind:       model.KindFuturePrice,
		Resolution: time.Minute,
		Epoch:      epochFutures,
		Dedup:      model.KeepFirst,
		Freshness:  FreshExact,
	}
}

// SpotPrices is the Binance spot 1-minute OHLCV dataset. Spot history
// reaches further back than futures.
func SpotPrices() Dataset {
	return Dataset{
		Provider:   "BINANCE",
		Kind:       model.KindSpotPrice,
		Resolution: time.Minute,
		Epoch:      epochSpot,
		Dedup:      model.KeepFirst,
		Freshness:  FreshExact,
	}
}

// EnhancedPrices is the blended future+spot 1-minute dataset: futures bars
// where available, spot bars filling the earlier history.
func EnhancedPrices() Dataset {
	return Dataset{
		Provider:   "BINANCE",
		Kind:       model.KindEnhancedPrice,
		Resolution: time.Minute,
		Epoch:      epochSpot,
		Dedup:      model.KeepFirst,
		Freshness:  FreshExact,
	}
}

// FundingRates is the Binance funding-rate dataset: hourly rows, settled
// every 8 hours, stepped back a full day so a settlement straddling the
// boundary is re-covered.
func FundingRates() Dataset {
	return Dataset{
		Provider:   "BINANCE",
		Kind:       model.KindFunding,
		Resolution: time.Hour,
		Epoch:      epochFutures,
		StepBack:   24 * time.Hour,
		Dedup:      model.KeepFirst,
		Freshness:  FreshAtLeast,
	}
}

// PremiumIndex is the Binance premium-index 1-minute dataset with derived
// trailing funding-estimate columns.
func PremiumIndex() Dataset {
	return Dataset{
		Provider:   "BINANCE",
		Kind:       model.KindPremiumIndex,
		Resolution: time.Minute,
		Epoch:      epochFutures,
		Dedup:      model.KeepFirst,
		Freshness:  FreshExact,
		Derive:     WithRollingFunding,
	}
}

// Factors is the Unravel daily portfolio-factor dataset. The vendor
// corrects values retroactively, so incoming rows win over existing ones.
func Factors() Dataset {
	return Dataset{
		Provider:   "UNRAVEL",
		Kind:       model.KindFactor,
		Resolution: 24 * time.Hour,
		Epoch:      epochDaily,
		Dedup:      model.KeepLast,
		Freshness:  FreshSameDay,
	}
}

// Metrics is the Glassnode daily on-chain metric dataset.
func Metrics() Dataset {
	return Dataset{
		Provider:   "GLASSNODE",
		Kind:       model.KindMetric,
		Resolution: 24 * time.Hour,
		Epoch:      epochDaily,
		Dedup:      model.KeepFirst,
		Freshness:  FreshSameDay,
	}
}

// DefaultTarget returns the standard batch-collection target: yesterday at
// 23:59:00 UTC relative to now.
func DefaultTarget(now time.Time) time.Time {
	y := now.UTC().AddDate(0, 0, -1)
	return time.Date(y.Year(), y.Month(), y.Day(), 23, 59, 0, 0, time.UTC)
}
