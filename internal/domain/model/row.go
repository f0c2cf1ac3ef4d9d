// Package model holds the row types stored in lake partition files.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Row is implemented by any record keyed by a millisecond epoch timestamp.
// Partition files are merged, deduplicated and sorted on this key.
type Row interface {
	EpochMS() int64
}

// Candle is one OHLCV bucket. The timestamp column is named "ts" for
// candle and tick files.
type Candle struct {
	Ts     int64   `parquet:"ts"`
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume float64 `parquet:"volume"`
}

// EpochMS returns the candle open time in ms since epoch.
func (c Candle) EpochMS() int64 { return c.Ts }

// Tick is a single trade record.
type Tick struct {
	Ts     int64   `parquet:"ts"`
	Price  float64 `parquet:"price"`
	Amount float64 `parquet:"amount"`
}

// EpochMS returns the trade time in ms since epoch.
func (t Tick) EpochMS() int64 { return t.Ts }

// FundingRate is one periodic perpetual-futures settlement record.
// Funding files use "timestamp" as their timestamp column.
type FundingRate struct {
	Timestamp   int64   `parquet:"timestamp"`
	FundingRate float64 `parquet:"fundingRate"`
	Symbol      string  `parquet:"symbol,optional"`
}

// EpochMS returns the settlement time in ms since epoch.
func (f FundingRate) EpochMS() int64 { return f.Timestamp }

// SanitizeSymbol normalizes an instrument id for use as a filesystem path
// component and manifest key: uppercase, with '/', ':' and spaces replaced
// by underscores (BTC/USDT:USDT -> BTC_USDT_USDT).
func SanitizeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// TimeframeMS converts a timeframe string like "1m", "15m", "1h" or "1d"
// to its bucket length in milliseconds.
func TimeframeMS(timeframe string) (int64, error) {
	if timeframe == "" {
		return 0, fmt.Errorf("empty timeframe")
	}
	unit := timeframe[len(timeframe)-1]
	n, err := strconv.ParseInt(timeframe[:len(timeframe)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", timeframe)
	}
	var scale int64
	switch unit {
	case 's':
		scale = 1000
	case 'm':
		scale = 60 * 1000
	case 'h':
		scale = 60 * 60 * 1000
	case 'd':
		scale = 24 * 60 * 60 * 1000
	case 'w':
		scale = 7 * 24 * 60 * 60 * 1000
	default:
		return 0, fmt.Errorf("invalid timeframe unit in %q", timeframe)
	}
	return n * scale, nil
}
