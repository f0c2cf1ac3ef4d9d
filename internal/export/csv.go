// Package export renders lake candles into the charting-tool CSV dialect.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/model"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/storage/partition"
)

var csvHeader = []string{"<TICKER>", "<PER>", "<DATE>", "<TIME>", "<OPEN>", "<HIGH>", "<LOW>", "<CLOSE>", "<VOL>"}

// Exporter writes candle series as CSV under an export root, one file per
// (symbol, exchange, market), named dl_<SYMBOL>_<EXCHANGE>_<MARKET>.csv.txt.
type Exporter struct {
	reader    *partition.Reader
	exportDir string
}

// NewExporter creates an Exporter reading from reader and writing under
// exportDir.
func NewExporter(reader *partition.Reader, exportDir string) *Exporter {
	return &Exporter{reader: reader, exportDir: exportDir}
}

// ExportCSV writes the candles of dataType for (exchange, market, symbol)
// in [start, end] and returns the output path with the number of rows
// written. No candles in range produces no file.
func (e *Exporter) ExportCSV(exchange, market, symbol, dataType, period, start, end string) (string, int, error) {
	candles, err := e.reader.ReadCandleRange(exchange, symbol, dataType, start, end)
	if err != nil {
		return "", 0, fmt.Errorf("read candles failed: %w", err)
	}
	if len(candles) == 0 {
		return "", 0, nil
	}

	dir := filepath.Join(e.exportDir, strings.ToUpper(exchange), strings.ToUpper(market))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create export dir failed: %w", err)
	}
	ticker := model.SanitizeSymbol(symbol)
	path := filepath.Join(dir, fmt.Sprintf("dl_%s_%s_%s.csv.txt",
		ticker, strings.ToUpper(exchange), strings.ToUpper(market)))

	n, err := writeCSV(path, candles, ticker, period)
	if err != nil {
		return "", 0, err
	}
	return path, n, nil
}

func writeCSV(path string, candles []model.Candle, ticker, period string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s failed: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write header failed: %w", err)
	}

	per := periodCode(period)
	for _, c := range candles {
		t := time.UnixMilli(c.Ts).UTC()
		rec := []string{
			ticker,
			per,
			t.Format("20060102"),
			t.Format("150405"),
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			formatFloat(c.Volume),
		}
		if err := w.Write(rec); err != nil {
			return 0, fmt.Errorf("write row failed: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flush %s failed: %w", path, err)
	}
	return len(candles), nil
}

// periodCode maps a timeframe to the charting-tool period column: minute
// timeframes become the minute count, everything else passes through.
func periodCode(period string) string {
	if strings.HasSuffix(period, "m") {
		if n, err := strconv.Atoi(strings.TrimSuffix(period, "m")); err == nil {
			return strconv.Itoa(n)
		}
	}
	return period
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
