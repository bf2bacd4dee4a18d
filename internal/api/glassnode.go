package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dfilabs/pulse-data/internal/model"
)

// DefaultGlassnodeURL is the production Glassnode host.
const DefaultGlassnodeURL = "https://api.glassnode.com"

// GlassnodeClient provides access to the Glassnode on-chain metrics API.
type GlassnodeClient struct {
	rest
	baseURL string
	apiKey  string
}

// NewGlassnodeClient creates a Glassnode client. An empty URL selects the
// production host.
func NewGlassnodeClient(baseURL, apiKey string, opts ...Option) *GlassnodeClient {
	if baseURL == "" {
		baseURL = DefaultGlassnodeURL
	}
	c := &GlassnodeClient{
		rest:    newRest("glassnode"),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(&c.rest)
	}
	return c
}

// metricPoint is one record from a Glassnode metric endpoint.
type metricPoint struct {
	T int64   `json:"t"`
	V float64 `json:"v"`
}

// frequency maps a bar size to Glassnode's interval spelling.
func frequency(resolution time.Duration) string {
	switch {
	case resolution >= 24*time.Hour:
		return "24h"
	case resolution >= time.Hour:
		return "1h"
	default:
		return "10m"
	}
}

// MetricRange fetches one on-chain metric for an asset over [start, end].
// The asset is derived from the trading symbol by stripping the quote
// suffix ("BTCUSDT" queries asset "BTC"). The result has a single "value"
// column.
func (c *GlassnodeClient) MetricRange(ctx context.Context, section, metric, symbol string, resolution time.Duration, start, end time.Time) (*model.Table, error) {
	asset := strings.TrimSuffix(symbol, "USDT")

	query := url.Values{}
	query.Set("a", asset)
	query.Set("api_key", c.apiKey)
	query.Set("i", frequency(resolution))
	query.Set("s", strconv.FormatInt(start.Unix(), 10))
	query.Set("u", strconv.FormatInt(end.Unix(), 10))

	fullURL := fmt.Sprintf("%s/v1/metrics/%s/%s", c.baseURL, section, metric)

	var points []metricPoint
	if err := c.getJSON(ctx, fullURL, query, &points); err != nil {
		return nil, fmt.Errorf("fetch metric %s/%s %s: %w", section, metric, asset, err)
	}

	table := model.NewTable("value")
	for _, p := range points {
		ts := time.Unix(p.T, 0).UTC()
		if ts.Before(start) || ts.After(end) {
			continue
		}
		table.Append(ts, float32(p.V))
	}
	return table, nil
}
