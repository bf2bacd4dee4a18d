package live

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dfilabs/pulse-data/internal/model"
	"github.com/dfilabs/pulse-data/internal/store"
)

// Recorder drains closed candles into per-symbol price tables, flushing
// to the local store at a fixed interval so a crash loses at most one
// interval of bars.
type Recorder struct {
	store  store.Store
	kind   model.Kind
	logger *slog.Logger

	flushEvery time.Duration
	pending    map[string]*model.Table
}

// NewRecorder creates a Recorder persisting candles under the given
// dataset kind.
func NewRecorder(s store.Store, kind model.Kind, flushEvery time.Duration, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if flushEvery <= 0 {
		flushEvery = time.Minute
	}
	return &Recorder{
		store:      s,
		kind:       kind,
		logger:     logger,
		flushEvery: flushEvery,
		pending:    make(map[string]*model.Table),
	}
}

// Run consumes candles until the channel closes or the context ends,
// then flushes whatever is buffered.
func (r *Recorder) Run(ctx context.Context, candles <-chan Candle) {
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			r.flush(ctx)
		case c, ok := <-candles:
			if !ok {
				r.flush(context.WithoutCancel(ctx))
				return
			}
			r.buffer(c)
		}
	}
}

func (r *Recorder) buffer(c Candle) {
	t, ok := r.pending[c.Symbol]
	if !ok {
		t = model.NewTable("open", "high", "low", "close", "buy_volume", "sell_volume", "volume")
		r.pending[c.Symbol] = t
	}
	t.Append(c.OpenTime, c.Open, c.High, c.Low, c.Close, c.BuyVolume, c.SellVolume, c.Volume)
}

// flush merges each symbol's buffered bars into its persisted table.
// Existing rows win, so replayed bars after a reconnect are harmless.
func (r *Recorder) flush(ctx context.Context) {
	for symbol, fresh := range r.pending {
		key := model.Key{Provider: "BINANCE", Symbol: symbol, Kind: r.kind, Resolution: time.Minute}

		existing, err := r.store.Load(ctx, key)
		if errors.Is(err, model.ErrNotFound) {
			existing = &model.Table{}
		} else if err != nil {
			// A failed load is not an empty table. Saving the buffer alone
			// would replace the symbol's whole persisted history.
			r.logger.Warn("candle flush skipped, load failed", "symbol", symbol, "error", err)
			continue // keep the buffer, retry next flush
		}
		merged := existing.Merge(fresh, model.KeepFirst)

		if err := r.store.Save(ctx, key, merged); err != nil {
			r.logger.Warn("candle flush failed", "symbol", symbol, "error", err)
			continue // keep the buffer, retry next flush
		}
		delete(r.pending, symbol)
	}
}
