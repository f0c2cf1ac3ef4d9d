// Package aggregate resamples raw 1m candles into coarser timeframes and
// publishes them as "agg" partitions.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/model"
	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/storage/partition"
)

// Resample buckets candles into the target timeframe: open of the first
// row, max high, min low, close of the last row, summed volume. Bucket
// timestamps are aligned to the timeframe boundary. Input order is
// preserved within buckets, so callers pass sorted series.
func Resample(candles []model.Candle, timeframe string) ([]model.Candle, error) {
	tfMS, err := model.TimeframeMS(timeframe)
	if err != nil {
		return nil, err
	}

	var (
		out     []model.Candle
		current *model.Candle
		bucket  int64 = -1
	)
	for _, c := range candles {
		b := c.Ts - (c.Ts % tfMS)
		if b != bucket {
			if current != nil {
				out = append(out, *current)
			}
			cc := c
			cc.Ts = b
			current = &cc
			bucket = b
			continue
		}
		if c.High > current.High {
			current.High = c.High
		}
		if c.Low < current.Low {
			current.Low = c.Low
		}
		current.Close = c.Close
		current.Volume += c.Volume
	}
	if current != nil {
		out = append(out, *current)
	}
	return out, nil
}

// Aggregator reads raw partitions, resamples them and registers the
// aggregated output in the manifest.
type Aggregator struct {
	reader   *partition.Reader
	writer   *partition.Writer
	manifest repository.ManifestRepository
}

// New creates an Aggregator over the shared reader, writer and manifest.
func New(r *partition.Reader, w *partition.Writer, m repository.ManifestRepository) *Aggregator {
	return &Aggregator{reader: r, writer: w, manifest: m}
}

// AggregateOHLC resamples the raw series for (exchange, symbol) in
// [start, end] into timeframe and writes the result under market "agg".
// Returns the number of aggregated candles written.
func (a *Aggregator) AggregateOHLC(ctx context.Context, exchange, symbol, timeframe, start, end string) (int, error) {
	exchange = strings.ToLower(exchange)
	raw, err := a.reader.ReadCandleRange(exchange, symbol, repository.DataTypeRaw, start, end)
	if err != nil {
		return 0, fmt.Errorf("read raw candles failed: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}

	resampled, err := Resample(raw, timeframe)
	if err != nil {
		return 0, fmt.Errorf("resample to %s failed: %w", timeframe, err)
	}

	results, err := a.writer.WriteAgg(resampled, exchange, "agg", symbol, timeframe)
	if err != nil {
		return 0, fmt.Errorf("write aggregated candles failed: %w", err)
	}

	meta, _ := json.Marshal(map[string]string{"timeframe": timeframe, "source": "raw:1m"})
	for _, res := range results {
		tFrom, tTo := res.TimeFrom, res.TimeTo
		_, err := a.manifest.AddEntry(ctx, repository.Entry{
			Exchange:     exchange,
			Market:       "agg",
			Symbol:       model.SanitizeSymbol(symbol),
			Path:         res.Path,
			Type:         repository.DataTypeAgg,
			TimeFrom:     &tFrom,
			TimeTo:       &tTo,
			MetadataJSON: string(meta),
		})
		if err != nil {
			return 0, fmt.Errorf("register aggregated entry failed: %w", err)
		}
	}
	return len(resampled), nil
}
