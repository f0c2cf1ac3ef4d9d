package partition

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/model"
)

func seedCandles(t *testing.T, w *Writer, exchange, market, symbol string, tss ...int64) {
	t.Helper()
	rows := make([]model.Candle, 0, len(tss))
	for _, ts := range tss {
		rows = append(rows, candle(ts, float64(ts)))
	}
	_, err := w.WriteOHLC(rows, exchange, market, symbol, "1m")
	require.NoError(t, err)
}

func TestReadCandleRangeBounds(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base)
	r := NewReader(base)

	t0 := ms(2024, time.January, 1, 0, 0)
	seedCandles(t, w, "binance", "spot", "BTC/USDT", t0, t0+60_000, t0+120_000, t0+180_000)

	got, err := r.ReadCandleRange("binance", "BTC/USDT", "raw",
		"2024-01-01T00:01:00", "2024-01-01T00:02:00")
	require.NoError(t, err)
	// Bounds are inclusive on both ends.
	require.Len(t, got, 2)
	assert.Equal(t, t0+60_000, got[0].Ts)
	assert.Equal(t, t0+120_000, got[1].Ts)
}

func TestReadCandleRangeSpansMarkets(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base)
	r := NewReader(base)

	t0 := ms(2024, time.January, 1, 0, 0)
	seedCandles(t, w, "binance", "spot", "BTC/USDT", t0)
	seedCandles(t, w, "binance", "linear", "BTC/USDT", t0+60_000)

	got, err := r.ReadCandleRange("binance", "BTC/USDT", "raw", "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Less(t, got[0].Ts, got[1].Ts)
}

func TestReadCandleRangeMissingDataIsEmpty(t *testing.T) {
	r := NewReader(t.TempDir())
	got, err := r.ReadCandleRange("binance", "BTC/USDT", "raw", "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadCandleRangeHostileSymbol(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base)
	r := NewReader(base)
	seedCandles(t, w, "binance", "spot", "BTC/USDT", ms(2024, time.January, 1, 0, 0))

	// Path traversal and injection attempts sanitize into directory names
	// that match nothing.
	got, err := r.ReadCandleRange("binance", "TEST'; DROP TABLE manifest;--", "raw",
		"2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadFundingRange(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base)
	r := NewReader(base)

	t0 := ms(2024, time.February, 1, 8, 0)
	_, err := w.WriteFunding([]model.FundingRate{
		{Timestamp: t0, FundingRate: 0.0001},
		{Timestamp: t0 + 8*3_600_000, FundingRate: -0.0002},
	}, "bybit", "linear", "BTC/USDT:USDT")
	require.NoError(t, err)

	got, err := r.ReadFundingRange("bybit", "BTC/USDT:USDT", "2024-02-01", "2024-02-02")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.0001, got[0].FundingRate)
}

func TestListSymbols(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base)
	r := NewReader(base)

	t0 := ms(2024, time.January, 1, 0, 0)
	seedCandles(t, w, "binance", "spot", "ETH/USDT", t0)
	seedCandles(t, w, "binance", "spot", "BTC/USDT", t0)
	seedCandles(t, w, "bybit", "linear", "BTC/USDT", t0)

	symbols, err := r.ListSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, symbols)
}

func TestListSymbolsIgnoresFeatureStore(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base)
	r := NewReader(base)

	seedCandles(t, w, "binance", "spot", "BTC/USDT", ms(2024, time.January, 1, 0, 0))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "features", "momentum", "1.0.0"), 0o755))

	symbols, err := r.ListSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC_USDT"}, symbols)
}

func TestParseISOMillis(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-02", time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02T03:04:05", time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02 03:04:05", time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T03:04:05Z", time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T03:04:05+09:00", time.Date(2024, time.January, 1, 18, 4, 5, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseISOMillis(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want.UnixMilli(), got, "input %q", tt.in)
	}

	_, err := ParseISOMillis("not-a-date")
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	base := t.TempDir()
	assert.Equal(t, "/abs/file.parquet", ResolvePath(base, "/abs/file.parquet"))
	assert.Equal(t, filepath.Join(base, "rel/file.parquet"), ResolvePath(base, "rel/file.parquet"))
}
