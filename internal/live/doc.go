// Package live streams 1-minute klines from the Binance combined
// websocket feed and records closed candles to the local store.
//
// The Client owns a single websocket connection (read loop, ping/pong,
// buffered output channel); the Feed owns the Client's lifecycle,
// reconnecting with exponential backoff and decoding kline events into
// Candle values. The Recorder drains closed candles into price tables.
package live
