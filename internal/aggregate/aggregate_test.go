package aggregate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/model"
	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/persistence/sqlite"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/storage/partition"
)

func minuteCandles(start time.Time, n int) []model.Candle {
	out := make([]model.Candle, 0, n)
	for i := 0; i < n; i++ {
		v := float64(i + 1)
		out = append(out, model.Candle{
			Ts:     start.Add(time.Duration(i) * time.Minute).UnixMilli(),
			Open:   v,
			High:   v + 0.5,
			Low:    v - 0.5,
			Close:  v + 0.1,
			Volume: 1,
		})
	}
	return out
}

func TestResampleHourly(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	candles := minuteCandles(start, 120)

	out, err := Resample(candles, "1h")
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, start.UnixMilli(), first.Ts)
	assert.Equal(t, 1.0, first.Open)
	assert.Equal(t, 60.5, first.High)   // high of minute 60
	assert.Equal(t, 0.5, first.Low)     // low of minute 1
	assert.Equal(t, 60.1, first.Close)  // close of minute 60
	assert.Equal(t, 60.0, first.Volume) // 60 minutes of volume 1

	second := out[1]
	assert.Equal(t, start.Add(time.Hour).UnixMilli(), second.Ts)
	assert.Equal(t, 61.0, second.Open)
}

func TestResamplePartialBucket(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 30, 0, 0, time.UTC)
	out, err := Resample(minuteCandles(start, 10), "1h")
	require.NoError(t, err)
	require.Len(t, out, 1)
	// Bucket timestamp aligns to the hour boundary, not the first row.
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), out[0].Ts)
	assert.Equal(t, 10.0, out[0].Volume)
}

func TestResampleInvalidTimeframe(t *testing.T) {
	_, err := Resample(nil, "bogus")
	assert.Error(t, err)
}

func TestResampleEmpty(t *testing.T) {
	out, err := Resample(nil, "1h")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAggregateOHLCWritesAggPartitions(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	manifest := sqlite.NewManifestRepository(db)

	base := t.TempDir()
	writer := partition.NewWriter(base)
	reader := partition.NewReader(base)

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err = writer.WriteOHLC(minuteCandles(start, 120), "binance", "spot", "BTC/USDT", "1m")
	require.NoError(t, err)

	agg := New(reader, writer, manifest)
	n, err := agg.AggregateOHLC(context.Background(), "binance", "BTC/USDT", "1h", "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Aggregates land under market AGG with type agg and are readable back.
	entries, err := manifest.ListEntries(context.Background(), repository.Filter{DataType: repository.DataTypeAgg})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "AGG", entries[0].Market)

	back, err := reader.ReadCandleRange("binance", "BTC/USDT", repository.DataTypeAgg, "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.Len(t, back, 2)
}

func TestAggregateOHLCNoSourceData(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	base := t.TempDir()
	agg := New(partition.NewReader(base), partition.NewWriter(base), sqlite.NewManifestRepository(db))

	n, err := agg.AggregateOHLC(context.Background(), "binance", "BTC/USDT", "1h", "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.Zero(t, n)
}
