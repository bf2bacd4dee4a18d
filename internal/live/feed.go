package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dfilabs/pulse-data/internal/metrics"
)

// Feed owns the connection to the combined kline stream, decodes events
// and reconnects with exponential backoff when the connection drops.
type Feed struct {
	cfg     FeedConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	candles chan Candle

	mu     sync.Mutex
	client Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeed creates a Feed. Metrics may be nil.
func NewFeed(cfg FeedConfig, logger *slog.Logger, m *metrics.Metrics) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = time.Second
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = time.Minute
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	return &Feed{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		candles: make(chan Candle, cfg.BufferSize),
	}
}

// Candles returns the channel of closed bars. Closed when the feed stops.
func (f *Feed) Candles() <-chan Candle {
	return f.candles
}

// Start connects and begins streaming. The initial connection must
// succeed; later drops are handled by reconnection.
func (f *Feed) Start(ctx context.Context) error {
	if len(f.cfg.Symbols) == 0 {
		return fmt.Errorf("no symbols to subscribe")
	}
	f.ctx, f.cancel = context.WithCancel(ctx)

	client, err := f.connect()
	if err != nil {
		return fmt.Errorf("connect feed: %w", err)
	}
	f.setClient(client)

	f.wg.Add(1)
	go f.run(client)

	f.logger.Info("live feed started", "symbols", len(f.cfg.Symbols))
	return nil
}

// Stop shuts the feed down and closes the candle channel.
func (f *Feed) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}

	f.mu.Lock()
	if f.client != nil {
		f.client.Close()
	}
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		f.logger.Warn("feed shutdown timeout")
	}

	close(f.candles)
	f.logger.Info("live feed stopped")
	return nil
}

func (f *Feed) connect() (Client, error) {
	cfg := DefaultClientConfig()
	cfg.URL = f.cfg.streamURL()
	client := NewClient(cfg, f.logger)
	if err := client.Connect(f.ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (f *Feed) setClient(c Client) {
	f.mu.Lock()
	f.client = c
	f.mu.Unlock()
}

// run drains one client until it fails, then hands off to reconnect.
func (f *Feed) run(client Client) {
	defer f.wg.Done()

	for {
		select {
		case <-f.ctx.Done():
			return

		case err := <-client.Errors():
			f.logger.Warn("feed connection error", "error", err)
			client.Close()
			f.wg.Add(1)
			go f.reconnect()
			return

		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			candle, closed, err := parseCandle(msg.Data)
			if err != nil {
				f.logger.Debug("undecodable feed message", "error", err)
				continue
			}
			if !closed {
				continue
			}

			f.metrics.ObserveLiveCandle()
			select {
			case f.candles <- candle:
			case <-f.ctx.Done():
				return
			default:
				f.logger.Warn("candle buffer full, dropping", "symbol", candle.Symbol)
			}
		}
	}
}

// reconnect retries with exponential backoff until connected or stopped.
func (f *Feed) reconnect() {
	defer f.wg.Done()

	wait := f.cfg.ReconnectBaseWait
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-time.After(wait):
		}

		f.metrics.ObserveLiveReconnect()
		f.logger.Info("reconnecting live feed", "wait", wait)

		client, err := f.connect()
		if err != nil {
			f.logger.Warn("reconnection failed", "error", err)
			wait *= 2
			if wait > f.cfg.ReconnectMaxWait {
				wait = f.cfg.ReconnectMaxWait
			}
			continue
		}

		f.setClient(client)
		f.wg.Add(1)
		go f.run(client)
		return
	}
}
