package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dfilabs/pulse-data/internal/model"
)

// Default Binance hosts.
const (
	DefaultBinanceFuturesURL = "https://fapi.binance.com"
	DefaultBinanceSpotURL    = "https://api.binance.com"
)

// binancePageLimit is the maximum records per request the API allows.
const binancePageLimit = 1000

// Market selects the Binance host a request goes to.
type Market string

const (
	MarketFutures Market = "future"
	MarketSpot    Market = "spot"
)

// BinanceClient provides access to the Binance futures and spot REST APIs.
type BinanceClient struct {
	rest
	futuresURL string
	spotURL    string
}

// NewBinanceClient creates a Binance client. Empty URLs select the
// production hosts.
func NewBinanceClient(futuresURL, spotURL string, opts ...Option) *BinanceClient {
	if futuresURL == "" {
		futuresURL = DefaultBinanceFuturesURL
	}
	if spotURL == "" {
		spotURL = DefaultBinanceSpotURL
	}
	c := &BinanceClient{
		rest:       newRest("binance"),
		futuresURL: futuresURL,
		spotURL:    spotURL,
	}
	for _, opt := range opts {
		opt(&c.rest)
	}
	return c
}

// PriceColumns is the column set of price tables. Buy volume is the taker
// buy quote volume; sell volume is derived as quote_volume minus taker buy
// quote volume, it is not fetched.
var PriceColumns = []string{"open", "high", "low", "close", "buy_volume", "sell_volume", "volume"}

// PremiumColumns is the column set of premium-index tables.
var PremiumColumns = []string{"open", "high", "low", "close"}

// KlineRange fetches OHLCV bars covering [start, end], paging backward from
// end in provider-capped pages until the window is covered or the provider
// signals end of history with a short page.
//
// A page failure after at least one successful page stops paging and
// returns what was accumulated; a failure on the first page returns the
// error.
func (c *BinanceClient) KlineRange(ctx context.Context, market Market, symbol string, resolution time.Duration, start, end time.Time) (*model.Table, error) {
	base, path := c.futuresURL, "/fapi/v1/klines"
	if market == MarketSpot {
		base, path = c.spotURL, "/api/v3/klines"
	}

	raw, err := c.klinesBackward(ctx, base+path, symbol, resolution, start, end)
	if err != nil {
		return nil, err
	}

	table := model.NewTable(PriceColumns...)
	for _, k := range raw {
		ts, err := k.timeAt(0)
		if err != nil {
			return nil, fmt.Errorf("kline open time: %w", err)
		}
		ts = ts.Truncate(time.Minute)
		if ts.Before(start) || ts.After(end) {
			continue
		}
		open, err1 := k.floatAt(1)
		high, err2 := k.floatAt(2)
		low, err3 := k.floatAt(3)
		closeP, err4 := k.floatAt(4)
		quoteVolume, err5 := k.floatAt(7)
		takerBuyQuote, err6 := k.floatAt(10)
		for _, err := range []error{err1, err2, err3, err4, err5, err6} {
			if err != nil {
				return nil, fmt.Errorf("kline %s %v: %w", symbol, ts, err)
			}
		}
		table.Append(ts,
			float32(open), float32(high), float32(low), float32(closeP),
			float32(takerBuyQuote), float32(quoteVolume-takerBuyQuote), float32(quoteVolume))
	}
	return table, nil
}

// PremiumIndexRange fetches premium-index bars covering [start, end]. Rows
// are stamped with the bar close time, matching the persisted artifact.
func (c *BinanceClient) PremiumIndexRange(ctx context.Context, symbol string, resolution time.Duration, start, end time.Time) (*model.Table, error) {
	raw, err := c.klinesBackward(ctx, c.futuresURL+"/fapi/v1/premiumIndexKlines", symbol, resolution, start, end)
	if err != nil {
		return nil, err
	}

	table := model.NewTable(PremiumColumns...)
	for _, k := range raw {
		openTime, err := k.timeAt(0)
		if err != nil {
			return nil, fmt.Errorf("premium kline open time: %w", err)
		}
		ts := openTime.Truncate(time.Minute).Add(resolution)
		if ts.Before(start) || ts.After(end) {
			continue
		}
		open, err1 := k.floatAt(1)
		high, err2 := k.floatAt(2)
		low, err3 := k.floatAt(3)
		closeP, err4 := k.floatAt(4)
		for _, err := range []error{err1, err2, err3, err4} {
			if err != nil {
				return nil, fmt.Errorf("premium kline %s %v: %w", symbol, ts, err)
			}
		}
		table.Append(ts, float32(open), float32(high), float32(low), float32(closeP))
	}
	return table, nil
}

// klinesBackward pages a kline endpoint backward from end until start is
// covered or the history is exhausted. Accumulated pages survive a
// mid-paging failure.
func (c *BinanceClient) klinesBackward(ctx context.Context, fullURL, symbol string, resolution time.Duration, start, end time.Time) ([]rawKline, error) {
	var pages [][]rawKline
	endTime := end.UnixMilli()

	for {
		query := url.Values{}
		query.Set("symbol", symbol)
		query.Set("interval", model.FormatResolution(resolution))
		query.Set("limit", strconv.Itoa(binancePageLimit))
		query.Set("endTime", strconv.FormatInt(endTime, 10))

		var page []rawKline
		if err := c.getJSON(ctx, fullURL, query, &page); err != nil {
			if len(pages) == 0 {
				return nil, fmt.Errorf("fetch klines %s: %w", symbol, err)
			}
			c.logger.Warn("kline page fetch failed, keeping accumulated pages",
				"symbol", symbol, "error", err)
			break
		}
		if len(page) == 0 {
			break
		}

		pages = append(pages, page)

		earliest, err := page[0].timeAt(0)
		if err != nil {
			return nil, fmt.Errorf("kline open time: %w", err)
		}
		if len(page) < binancePageLimit || !earliest.After(start) {
			break
		}
		endTime = earliest.UnixMilli() - 1
	}

	// Pages were fetched newest-first; flatten oldest-first.
	var out []rawKline
	for i := len(pages) - 1; i >= 0; i-- {
		out = append(out, pages[i]...)
	}
	return out, nil
}

// fundingRateEntry is one record from /fapi/v1/fundingRate.
type fundingRateEntry struct {
	Symbol      string `json:"symbol"`
	FundingTime int64  `json:"fundingTime"`
	FundingRate string `json:"fundingRate"`
}

// FundingRange fetches funding rates covering [start, end], paging forward
// by fundingTime+1 until the provider returns a short page. Sub-hour
// records are dropped; timestamps are normalized to the hour.
func (c *BinanceClient) FundingRange(ctx context.Context, symbol string, start, end time.Time) (*model.Table, error) {
	fullURL := c.futuresURL + "/fapi/v1/fundingRate"
	endTime := end.UnixMilli()
	cursor := start.UnixMilli()

	var entries []fundingRateEntry
	for cursor < endTime {
		query := url.Values{}
		query.Set("symbol", symbol)
		query.Set("startTime", strconv.FormatInt(cursor, 10))
		query.Set("endTime", strconv.FormatInt(endTime, 10))
		query.Set("limit", strconv.Itoa(binancePageLimit))

		var page []fundingRateEntry
		if err := c.getJSON(ctx, fullURL, query, &page); err != nil {
			if len(entries) == 0 {
				return nil, fmt.Errorf("fetch funding %s: %w", symbol, err)
			}
			c.logger.Warn("funding page fetch failed, keeping accumulated pages",
				"symbol", symbol, "error", err)
			break
		}
		if len(page) == 0 {
			break
		}

		entries = append(entries, page...)
		cursor = page[len(page)-1].FundingTime + 1
		if len(page) < binancePageLimit {
			break
		}
	}

	table := model.NewTable("funding")
	for _, e := range entries {
		rate, err := strconv.ParseFloat(e.FundingRate, 32)
		if err != nil {
			return nil, fmt.Errorf("funding rate %s: %w", symbol, err)
		}
		table.Append(time.UnixMilli(e.FundingTime).UTC().Truncate(time.Second), float32(rate))
	}
	return table.TopOfHour(), nil
}

// exchangeInfoResponse is the subset of /fapi/v1/exchangeInfo we read.
type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		QuoteAsset string `json:"quoteAsset"`
		Status     string `json:"status"`
	} `json:"symbols"`
}

// FutureSymbols lists futures symbols quoted in the given asset.
func (c *BinanceClient) FutureSymbols(ctx context.Context, quote string) ([]string, error) {
	var resp exchangeInfoResponse
	if err := c.getJSON(ctx, c.futuresURL+"/fapi/v1/exchangeInfo", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch exchange info: %w", err)
	}
	var symbols []string
	for _, s := range resp.Symbols {
		if s.QuoteAsset == quote {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

// rawKline is the positional array Binance kline endpoints return:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume,
// trades, takerBuyBase, takerBuyQuote, ignore].
type rawKline []any

func (k rawKline) timeAt(i int) (time.Time, error) {
	if i >= len(k) {
		return time.Time{}, fmt.Errorf("kline field %d missing", i)
	}
	ms, ok := k[i].(float64)
	if !ok {
		return time.Time{}, fmt.Errorf("kline field %d is %T, want number", i, k[i])
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

func (k rawKline) floatAt(i int) (float64, error) {
	if i >= len(k) {
		return 0, fmt.Errorf("kline field %d missing", i)
	}
	switch v := k[i].(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("kline field %d: %w", i, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("kline field %d is %T, want number or string", i, k[i])
}
