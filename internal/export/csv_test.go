package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/model"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/storage/partition"
)

func TestExportCSV(t *testing.T) {
	base := t.TempDir()
	writer := partition.NewWriter(base)

	ts := time.Date(2024, time.March, 5, 12, 30, 0, 0, time.UTC)
	_, err := writer.WriteOHLC([]model.Candle{
		{Ts: ts.UnixMilli(), Open: 100, High: 110.5, Low: 95.25, Close: 105, Volume: 1.5},
		{Ts: ts.Add(time.Minute).UnixMilli(), Open: 105, High: 112, Low: 104, Close: 111, Volume: 2},
	}, "binance", "spot", "BTC/USDT", "1m")
	require.NoError(t, err)

	exportDir := t.TempDir()
	exporter := NewExporter(partition.NewReader(base), exportDir)

	path, n, err := exporter.ExportCSV("binance", "spot", "BTC/USDT", "raw", "1m", "2024-03-05", "2024-03-06")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, filepath.Join(exportDir, "BINANCE", "SPOT", "dl_BTC_USDT_BINANCE_SPOT.csv.txt"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"<TICKER>", "<PER>", "<DATE>", "<TIME>", "<OPEN>", "<HIGH>", "<LOW>", "<CLOSE>", "<VOL>"}, records[0])
	assert.Equal(t, []string{"BTC_USDT", "1", "20240305", "123000", "100", "110.5", "95.25", "105", "1.5"}, records[1])
	assert.Equal(t, "123100", records[2][3])
}

func TestExportCSVEmptyRangeWritesNothing(t *testing.T) {
	base := t.TempDir()
	exportDir := t.TempDir()
	exporter := NewExporter(partition.NewReader(base), exportDir)

	path, n, err := exporter.ExportCSV("binance", "spot", "BTC/USDT", "raw", "1m", "2024-03-05", "2024-03-06")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, path)

	entries, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPeriodCode(t *testing.T) {
	assert.Equal(t, "1", periodCode("1m"))
	assert.Equal(t, "15", periodCode("15m"))
	assert.Equal(t, "1h", periodCode("1h"))
	assert.Equal(t, "tick", periodCode("tick"))
}
