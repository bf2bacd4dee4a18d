package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// DefaultFeedURL is the Binance USDⓈ-M futures stream host.
const DefaultFeedURL = "wss://fstream.binance.com"

// TimestampedMessage wraps raw message data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a websocket client.
type ClientConfig struct {
	URL          string        // full stream URL including subscriptions
	PingTimeout  time.Duration // max silence before the connection is considered stale
	WriteTimeout time.Duration // write deadline for sends
	BufferSize   int           // message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  10 * time.Minute,
		WriteTimeout: 5 * time.Second,
		BufferSize:   4096,
	}
}

// FeedConfig configures the kline feed.
type FeedConfig struct {
	URL               string        // stream host, DefaultFeedURL when empty
	Symbols           []string      // symbols to subscribe, e.g. BTCUSDT
	ReconnectBaseWait time.Duration // base wait between reconnect attempts
	ReconnectMaxWait  time.Duration // cap for the reconnect backoff
	BufferSize        int           // candle channel buffer size
}

// DefaultFeedConfig returns sensible defaults for the given symbols.
func DefaultFeedConfig(symbols []string) FeedConfig {
	return FeedConfig{
		URL:               DefaultFeedURL,
		Symbols:           symbols,
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  time.Minute,
		BufferSize:        1024,
	}
}

// streamURL builds the combined-stream URL subscribing every symbol's
// 1-minute kline channel.
func (c FeedConfig) streamURL() string {
	streams := make([]string, len(c.Symbols))
	for i, s := range c.Symbols {
		streams[i] = strings.ToLower(s) + "@kline_1m"
	}
	base := c.URL
	if base == "" {
		base = DefaultFeedURL
	}
	return base + "/stream?streams=" + strings.Join(streams, "/")
}

// Candle is one closed 1-minute bar from the feed, in the same shape as
// the persisted price tables: quote-denominated volumes, sell volume
// derived from total minus taker buy.
type Candle struct {
	Symbol     string
	OpenTime   time.Time
	Open       float32
	High       float32
	Low        float32
	Close      float32
	BuyVolume  float32
	SellVolume float32
	Volume     float32
}

// streamEvent is the combined-stream envelope.
type streamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// klineEvent is a kline data event.
type klineEvent struct {
	Type   string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		OpenTime      int64  `json:"t"`
		Open          string `json:"o"`
		High          string `json:"h"`
		Low           string `json:"l"`
		Close         string `json:"c"`
		QuoteVolume   string `json:"q"`
		TakerBuyQuote string `json:"Q"`
		Closed        bool   `json:"x"`
	} `json:"k"`
}

// parseCandle decodes a raw feed message. The second return is false for
// non-kline events and for bars still in progress.
func parseCandle(data []byte) (Candle, bool, error) {
	var env streamEvent
	if err := json.Unmarshal(data, &env); err != nil {
		return Candle{}, false, fmt.Errorf("decode stream envelope: %w", err)
	}
	payload := env.Data
	if payload == nil {
		payload = data // raw (non-combined) stream
	}

	var ev klineEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Candle{}, false, fmt.Errorf("decode kline event: %w", err)
	}
	if ev.Type != "kline" || !ev.Kline.Closed {
		return Candle{}, false, nil
	}

	fields := [6]float64{}
	for i, s := range [6]string{ev.Kline.Open, ev.Kline.High, ev.Kline.Low, ev.Kline.Close, ev.Kline.QuoteVolume, ev.Kline.TakerBuyQuote} {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Candle{}, false, fmt.Errorf("kline field %d: %w", i, err)
		}
		fields[i] = f
	}

	return Candle{
		Symbol:     ev.Symbol,
		OpenTime:   time.UnixMilli(ev.Kline.OpenTime).UTC().Truncate(time.Minute),
		Open:       float32(fields[0]),
		High:       float32(fields[1]),
		Low:        float32(fields[2]),
		Close:      float32(fields[3]),
		BuyVolume:  float32(fields[5]),
		SellVolume: float32(fields[4] - fields[5]),
		Volume:     float32(fields[4]),
	}, true, nil
}
