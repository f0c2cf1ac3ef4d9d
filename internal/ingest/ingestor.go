package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/YoshitsuguKoike/candlelake/internal/app"
	"github.com/YoshitsuguKoike/candlelake/internal/domain/model"
	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/storage/partition"
)

const (
	fetchLimit        = 1000
	flushThreshold    = 5000
	nowRefreshEvery   = 10000
	maxEmptyJumps     = 10
	maxFailedRequests = 5
	maxProbeAttempts  = 3
	rateLimitBackoff  = 30 * time.Second
	transientBackoff  = 1 * time.Second
	probeFallbackBack = 5 * 365 * 24 * time.Hour
)

// derivativeMarkers identify market types that settle funding.
var derivativeMarkers = []string{"future", "swap", "linear", "inverse", "derivative"}

// IsDerivativeMarket reports whether market is funding-settling.
func IsDerivativeMarket(market string) bool {
	m := strings.ToLower(market)
	for _, marker := range derivativeMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

// DownloadOptions tunes one OHLCV download.
type DownloadOptions struct {
	Timeframe string // candle period, default "1m"
	StartDate string // ISO-8601 start when no resume point exists; empty triggers the probe
	Progress  func(totalSaved int)
}

// Ingestor produces a complete, gap-minimized candle series for one
// (exchange, market) pair, resuming from the manifest on re-run.
type Ingestor struct {
	client   MarketClient
	exchange string
	market   string
	writer   *partition.Writer
	manifest repository.ManifestRepository
	log      app.Logger

	// sleep is swapped out in tests to observe backoff behavior.
	sleep func(time.Duration)
}

// NewIngestor creates an Ingestor bound to a client and the shared
// writer/manifest.
func NewIngestor(client MarketClient, exchange, market string, w *partition.Writer, m repository.ManifestRepository, log app.Logger) *Ingestor {
	if log == nil {
		log = app.NewDefaultLogger()
	}
	return &Ingestor{
		client:   client,
		exchange: strings.ToLower(exchange),
		market:   strings.ToLower(market),
		writer:   w,
		manifest: m,
		log:      log,
		sleep:    time.Sleep,
	}
}

// ActiveSymbols returns all active symbols on the venue.
func (ing *Ingestor) ActiveSymbols() ([]string, error) {
	markets, err := ing.client.LoadMarkets()
	if err != nil {
		return nil, fmt.Errorf("load markets failed: %w", err)
	}
	var symbols []string
	for symbol, m := range markets {
		if m.Active {
			symbols = append(symbols, symbol)
		}
	}
	return symbols, nil
}

// DownloadOHLCV downloads candles for symbol into the lake and returns the
// number of candles saved. Unknown symbols log an error and return zero.
func (ing *Ingestor) DownloadOHLCV(ctx context.Context, symbol string, opts DownloadOptions) (int, error) {
	if opts.Timeframe == "" {
		opts.Timeframe = "1m"
	}

	symbol, ok := ing.resolveSymbol(symbol)
	if !ok {
		return 0, nil
	}

	tfSeconds, err := ing.client.ParseTimeframe(opts.Timeframe)
	if err != nil {
		return 0, fmt.Errorf("parse timeframe %q failed: %w", opts.Timeframe, err)
	}
	timeframeMS := tfSeconds * 1000

	since, ok, err := ing.resolveSince(ctx, symbol, opts)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	var (
		buffer           []model.Candle
		totalSaved       int
		totalFetched     int
		nextNowRefresh   = nowRefreshEvery
		consecutiveEmpty int
		failedRequests   int
		prevLastTS       int64 = -1
	)
	now := ing.client.Milliseconds()

	for since < now {
		if err := ctx.Err(); err != nil {
			return totalSaved, err
		}

		ing.log.Debug("fetching ohlcv exchange=%s symbol=%s since=%d limit=%d", ing.exchange, symbol, since, fetchLimit)
		chunk, err := ing.client.FetchOHLCV(symbol, opts.Timeframe, since, fetchLimit)
		if err != nil {
			failedRequests++
			if IsRateLimit(err) {
				ing.log.Warn("rate limit hit exchange=%s symbol=%s, waiting 30s before retry (attempt %d/%d)",
					ing.exchange, symbol, failedRequests, maxFailedRequests)
				if failedRequests > maxFailedRequests {
					ing.log.Error("too many rate limit hits exchange=%s symbol=%s, aborting", ing.exchange, symbol)
					break
				}
				ing.sleep(rateLimitBackoff)
				continue
			}
			ing.log.Error("fetch ohlcv failed exchange=%s symbol=%s (attempt %d/%d): %v",
				ing.exchange, symbol, failedRequests, maxFailedRequests, err)
			if failedRequests > maxFailedRequests {
				ing.log.Error("too many failed requests exchange=%s symbol=%s, aborting", ing.exchange, symbol)
				break
			}
			ing.sleep(transientBackoff)
			continue
		}

		if len(chunk) == 0 {
			consecutiveEmpty++
			if consecutiveEmpty > maxEmptyJumps {
				ing.log.Warn("exceeded %d consecutive empty responses exchange=%s symbol=%s, stopping",
					maxEmptyJumps, ing.exchange, symbol)
				break
			}
			// Gap jump: skip one full request window. The next non-empty
			// chunk trips the continuity check below, so the gap still
			// shows up in the logs.
			jumpMS := int64(fetchLimit) * timeframeMS
			ing.log.Warn("empty response exchange=%s symbol=%s, jumping forward %dms (attempt %d/%d)",
				ing.exchange, symbol, jumpMS, consecutiveEmpty, maxEmptyJumps)
			since += jumpMS
			continue
		}

		consecutiveEmpty = 0
		failedRequests = 0

		if prevLastTS >= 0 {
			expected := prevLastTS + timeframeMS
			actual := chunk[0].Ts
			if actual > expected {
				ing.log.Warn("discontinuity exchange=%s symbol=%s gap=%dms prev_end=%d chunk_start=%d",
					ing.exchange, symbol, actual-expected, prevLastTS, actual)
			} else if actual < expected {
				ing.log.Warn("overlap exchange=%s symbol=%s prev_end=%d chunk_start=%d",
					ing.exchange, symbol, prevLastTS, actual)
			}
		}
		prevLastTS = chunk[len(chunk)-1].Ts

		buffer = append(buffer, chunk...)
		totalFetched += len(chunk)

		lastTS := chunk[len(chunk)-1].Ts
		if lastTS <= since {
			// Some venues return the candle at since itself again.
			since = lastTS + timeframeMS
		} else {
			since = lastTS + 1
		}

		// Long downloads catch up with freshly-closed candles.
		if totalFetched >= nextNowRefresh {
			now = ing.client.Milliseconds()
			nextNowRefresh += nowRefreshEvery
		}

		if len(buffer) >= flushThreshold {
			n, err := ing.flushOHLCV(ctx, buffer, symbol, opts.Timeframe)
			if err != nil {
				return totalSaved, err
			}
			totalSaved += n
			buffer = buffer[:0]
			if opts.Progress != nil {
				opts.Progress(totalSaved)
			}
		}
	}

	if len(buffer) > 0 {
		n, err := ing.flushOHLCV(ctx, buffer, symbol, opts.Timeframe)
		if err != nil {
			return totalSaved, err
		}
		totalSaved += n
		if opts.Progress != nil {
			opts.Progress(totalSaved)
		}
	}
	return totalSaved, nil
}

// resolveSymbol maps symbol onto the venue's unified symbol, trying the
// venue-specific id when the unified form is unknown.
func (ing *Ingestor) resolveSymbol(symbol string) (string, bool) {
	markets, err := ing.client.LoadMarkets()
	if err != nil {
		ing.log.Error("load markets failed exchange=%s: %v", ing.exchange, err)
		return "", false
	}
	if _, ok := markets[symbol]; ok {
		return symbol, true
	}
	for unified, m := range markets {
		if m.ID == symbol {
			return unified, true
		}
	}
	ing.log.Error("symbol %s not found on %s", symbol, ing.exchange)
	return "", false
}

// resolveSince picks the start timestamp: manifest resume point, then the
// caller's start date, then the listing-date probe. The second return is
// false when there is nothing to download.
func (ing *Ingestor) resolveSince(ctx context.Context, symbol string, opts DownloadOptions) (int64, bool, error) {
	entries, err := ing.manifest.ListEntries(ctx, repository.Filter{
		Exchange: ing.exchange,
		Symbol:   model.SanitizeSymbol(symbol),
		DataType: repository.DataTypeRaw,
	})
	if err != nil {
		return 0, false, fmt.Errorf("list manifest entries failed: %w", err)
	}
	if last := maxTimeTo(entries); last > 0 {
		since := last + 1
		ing.log.Info("incremental update exchange=%s symbol=%s resuming from %s",
			ing.exchange, symbol, time.UnixMilli(since).UTC().Format(time.RFC3339))
		return since, true, nil
	}

	if opts.StartDate != "" {
		since, err := partition.ParseISOMillis(opts.StartDate)
		if err != nil {
			ing.log.Error("failed to parse start_date=%q exchange=%s symbol=%s: %v",
				opts.StartDate, ing.exchange, symbol, err)
			return 0, true, nil
		}
		ing.log.Info("manual start date exchange=%s symbol=%s since=%s",
			ing.exchange, symbol, time.UnixMilli(since).UTC().Format(time.RFC3339))
		return since, true, nil
	}

	return ing.probeListingDate(symbol, opts.Timeframe)
}

// probeListingDate asks the venue for its earliest candle: one candle from
// the epoch, falling back to five years back for venues that need a recent
// starting point.
func (ing *Ingestor) probeListingDate(symbol, timeframe string) (int64, bool, error) {
	ing.log.Info("full history download exchange=%s symbol=%s, probing for listing date", ing.exchange, symbol)

	for attempt := 1; attempt <= maxProbeAttempts; attempt++ {
		probe, err := ing.client.FetchOHLCV(symbol, timeframe, 0, 1)
		if err != nil {
			if IsRateLimit(err) {
				ing.log.Warn("rate limit during probe exchange=%s symbol=%s, waiting 30s (attempt %d/%d)",
					ing.exchange, symbol, attempt, maxProbeAttempts)
				if attempt == maxProbeAttempts {
					ing.log.Error("max probe attempts reached exchange=%s symbol=%s", ing.exchange, symbol)
					return 0, false, nil
				}
				ing.sleep(rateLimitBackoff)
				continue
			}
			ing.log.Error("probing listing date failed exchange=%s symbol=%s: %v", ing.exchange, symbol, err)
			return 0, true, nil
		}
		if len(probe) > 0 {
			since := probe[0].Ts
			ing.log.Info("listing date found exchange=%s symbol=%s since=%s",
				ing.exchange, symbol, time.UnixMilli(since).UTC().Format(time.RFC3339))
			return since, true, nil
		}

		// Some venues return nothing for since=0; retry from 5 years back.
		fallback := ing.client.Milliseconds() - probeFallbackBack.Milliseconds()
		probe, err = ing.client.FetchOHLCV(symbol, timeframe, fallback, 1)
		if err != nil {
			if IsRateLimit(err) {
				ing.log.Warn("rate limit during fallback probe exchange=%s symbol=%s, waiting 30s (attempt %d/%d)",
					ing.exchange, symbol, attempt, maxProbeAttempts)
				if attempt == maxProbeAttempts {
					return 0, false, nil
				}
				ing.sleep(rateLimitBackoff)
				continue
			}
			ing.log.Error("fallback probe failed exchange=%s symbol=%s: %v", ing.exchange, symbol, err)
			return 0, true, nil
		}
		if len(probe) > 0 {
			since := probe[0].Ts
			ing.log.Info("listing date found via fallback exchange=%s symbol=%s since=%s",
				ing.exchange, symbol, time.UnixMilli(since).UTC().Format(time.RFC3339))
			return since, true, nil
		}
		ing.log.Warn("no ohlcv data available exchange=%s symbol=%s", ing.exchange, symbol)
		return 0, false, nil
	}
	return 0, false, nil
}

// flushOHLCV writes buffered candles through the partition writer and
// registers every written file in the manifest. A failed integrity check
// aborts before any manifest registration for the failed file.
func (ing *Ingestor) flushOHLCV(ctx context.Context, candles []model.Candle, symbol, timeframe string) (int, error) {
	results, err := ing.writer.WriteOHLC(candles, ing.exchange, ing.market, symbol, timeframe)
	if werr := ing.registerResults(ctx, results, symbol, repository.DataTypeRaw, fmt.Sprintf(`{"timeframe": %q}`, timeframe)); werr != nil {
		return 0, werr
	}
	if err != nil {
		return 0, fmt.Errorf("write ohlcv chunk failed: %w", err)
	}
	return len(candles), nil
}

func (ing *Ingestor) registerResults(ctx context.Context, results []partition.WriteResult, symbol, dataType, metadataJSON string) error {
	for _, res := range results {
		tFrom, tTo := res.TimeFrom, res.TimeTo
		_, err := ing.manifest.AddEntry(ctx, repository.Entry{
			Exchange:     ing.exchange,
			Market:       ing.market,
			Symbol:       model.SanitizeSymbol(symbol),
			Path:         res.Path,
			Type:         dataType,
			TimeFrom:     &tFrom,
			TimeTo:       &tTo,
			MetadataJSON: metadataJSON,
		})
		if err != nil {
			return fmt.Errorf("register manifest entry failed: %w", err)
		}
	}
	return nil
}

// DownloadFundingRates downloads the funding-rate history for symbol.
// Non-derivative markets return zero immediately. Venues return the full
// history in one call; no continuity checks apply because funding is
// sparse and irregular by design.
func (ing *Ingestor) DownloadFundingRates(ctx context.Context, symbol string) (int, error) {
	if !IsDerivativeMarket(ing.market) {
		return 0, nil
	}

	since := int64(0)
	entries, err := ing.manifest.ListEntries(ctx, repository.Filter{
		Exchange: ing.exchange,
		Symbol:   model.SanitizeSymbol(symbol),
		DataType: repository.DataTypeAlt,
	})
	if err != nil {
		return 0, fmt.Errorf("list manifest entries failed: %w", err)
	}
	var fundingEntries []repository.Entry
	for _, e := range entries {
		if strings.Contains(e.MetadataJSON, "funding") {
			fundingEntries = append(fundingEntries, e)
		}
	}
	if last := maxTimeTo(fundingEntries); last > 0 {
		since = last + 1
		ing.log.Info("incremental funding update exchange=%s symbol=%s since=%s",
			ing.exchange, symbol, time.UnixMilli(since).UTC().Format(time.RFC3339))
	} else {
		ing.log.Info("full funding history download exchange=%s symbol=%s", ing.exchange, symbol)
	}

	funding, err := ing.client.FetchFundingRateHistory(symbol, since)
	if err != nil {
		ing.log.Error("fetch funding rates failed exchange=%s symbol=%s: %v", ing.exchange, symbol, err)
		return 0, nil
	}
	if len(funding) == 0 {
		return 0, nil
	}

	meta, _ := json.Marshal(map[string]string{"category": "funding"})
	results, err := ing.writer.WriteFunding(funding, ing.exchange, ing.market, symbol)
	if werr := ing.registerResults(ctx, results, symbol, repository.DataTypeAlt, string(meta)); werr != nil {
		return 0, werr
	}
	if err != nil {
		return 0, fmt.Errorf("write funding rates failed: %w", err)
	}
	return len(funding), nil
}

func maxTimeTo(entries []repository.Entry) int64 {
	var last int64
	for _, e := range entries {
		if e.TimeTo != nil && *e.TimeTo > last {
			last = *e.TimeTo
		}
	}
	return last
}
