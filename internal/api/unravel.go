package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dfilabs/pulse-data/internal/model"
)

// DefaultUnravelURL is the production Unravel host.
const DefaultUnravelURL = "https://api.unravel.finance"

// UnravelClient provides access to the Unravel portfolio-factor API.
type UnravelClient struct {
	rest
	baseURL string
}

// NewUnravelClient creates an Unravel client. An empty URL selects the
// production host. The key rides the X-API-KEY header on every request.
func NewUnravelClient(baseURL, apiKey string, opts ...Option) *UnravelClient {
	if baseURL == "" {
		baseURL = DefaultUnravelURL
	}
	c := &UnravelClient{
		rest:    newRest("unravel"),
		baseURL: baseURL,
	}
	c.headers = map[string]string{"X-API-KEY": apiKey}
	for _, opt := range opts {
		opt(&c.rest)
	}
	return c
}

// factorsResponse is the split-frame payload the factor endpoint returns:
// row-major values, one index entry per row, one column name per value.
type factorsResponse struct {
	Data    [][]float64 `json:"data"`
	Index   []int64     `json:"index"`
	Columns []string    `json:"columns"`
}

// FactorRange fetches one factor model's values for a set of tickers over
// [start, end]. The "altair" model is served unsmoothed; the vendor's
// default smoothing lags the raw signal.
func (c *UnravelClient) FactorRange(ctx context.Context, factorID string, tickers []string, start, end time.Time) (*model.Table, error) {
	query := url.Values{}
	query.Set("id", factorID)
	if len(tickers) > 0 {
		query.Set("tickers", strings.Join(tickers, ","))
	}
	query.Set("start", start.UTC().Format("2006-01-02"))
	query.Set("end", end.UTC().Format("2006-01-02"))
	if factorID == "altair" {
		query.Set("smoothing", "0")
	}

	var resp factorsResponse
	if err := c.getJSON(ctx, c.baseURL+"/api/v1/portfolio/factors", query, &resp); err != nil {
		return nil, fmt.Errorf("fetch factors %s: %w", factorID, err)
	}
	if len(resp.Data) != len(resp.Index) {
		return nil, fmt.Errorf("factors %s: %d rows for %d index entries", factorID, len(resp.Data), len(resp.Index))
	}

	table := model.NewTable(resp.Columns...)
	for i, values := range resp.Data {
		if len(values) != len(resp.Columns) {
			return nil, fmt.Errorf("factors %s row %d: %d values for %d columns", factorID, i, len(values), len(resp.Columns))
		}
		ts := time.UnixMilli(resp.Index[i]).UTC()
		if ts.Before(start) || ts.After(end) {
			continue
		}
		row := make([]float32, len(values))
		for j, v := range values {
			row[j] = float32(v)
		}
		table.Append(ts, row...)
	}
	return table, nil
}
