// Package ingest downloads candle and funding-rate history from exchanges
// into the lake.
package ingest

import (
	"errors"
	"fmt"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/model"
)

// Market describes one tradable instrument as reported by a venue.
type Market struct {
	ID     string
	Type   string
	Active bool
}

// MarketClient abstracts the exchange protocol client. Implementations
// wrap a venue's REST API; they must be safe for concurrent use because
// the orchestrator shares one client per (exchange, market) across workers.
//
// Throttling (HTTP 429 or equivalent) must be signalled with a
// RateLimitError so the ingestor can apply its bounded 30 s backoff; all
// other failures are generic errors.
type MarketClient interface {
	// LoadMarkets returns the venue's instruments keyed by unified symbol.
	LoadMarkets() (map[string]Market, error)

	// FetchOHLCV returns up to limit candles at or after since (ms).
	FetchOHLCV(symbol, timeframe string, since int64, limit int) ([]model.Candle, error)

	// FetchFundingRateHistory returns funding settlements at or after since (ms).
	FetchFundingRateHistory(symbol string, since int64) ([]model.FundingRate, error)

	// Milliseconds returns the venue's clock in ms since epoch.
	Milliseconds() int64

	// ParseTimeframe converts a timeframe string to seconds.
	ParseTimeframe(timeframe string) (int64, error)
}

// RateLimitError reports venue throttling. Recovered locally by a bounded
// 30 s sleep-and-retry loop.
type RateLimitError struct {
	Venue string
	Err   error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited by %s: %v", e.Venue, e.Err)
	}
	return fmt.Sprintf("rate limited by %s", e.Venue)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
