// Package partition reads and writes the lake's monthly columnar files.
//
// Layout: <base>/<EXCHANGE>/<MARKET>/<SYMBOL>/<type>/<period>/<YYYY>/<MM>/
// with one parquet file per (exchange, market, symbol, type, period, month)
// tuple, named <SYMBOL>_<period>_<YYYYMM>.parquet.
package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/model"
)

// IntegrityError reports a failed post-write verification. A write that
// fails verification must not be registered in the manifest.
type IntegrityError struct {
	Path   string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: %s", e.Path, e.Reason)
}

// WriteResult reports one published partition file and the inclusive time
// span of its merged content.
type WriteResult struct {
	Path     string
	TimeFrom int64
	TimeTo   int64
}

// Writer publishes monthly partition files under a data root.
type Writer struct {
	base string
}

// NewWriter creates a Writer rooted at base.
func NewWriter(base string) *Writer {
	return &Writer{base: base}
}

// Base returns the data root the writer publishes under.
func (w *Writer) Base() string { return w.base }

func (w *Writer) partitionDir(exchange, market, symbol, dataType, period string, month time.Time) (string, error) {
	dir := filepath.Join(
		w.base,
		strings.ToUpper(exchange),
		strings.ToUpper(market),
		model.SanitizeSymbol(symbol),
		strings.ToLower(dataType),
		strings.ToLower(period),
		month.UTC().Format("2006"),
		month.UTC().Format("01"),
	)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create partition dir failed: %w", err)
	}
	return dir, nil
}

// WriteTable merges rows into the partition file for the given tuple and
// month: existing content is read back, concatenated with rows,
// deduplicated by timestamp keeping the last occurrence, sorted ascending
// and atomically republished (tmp file + rename). The freshly written file
// is re-opened and verified before the result is returned.
func WriteTable[T model.Row](w *Writer, rows []T, exchange, market, symbol, dataType, period string, month time.Time) (WriteResult, error) {
	if len(rows) == 0 {
		return WriteResult{}, fmt.Errorf("write table: no rows for %s %s", symbol, month.UTC().Format("2006-01"))
	}
	dir, err := w.partitionDir(exchange, market, symbol, dataType, period, month)
	if err != nil {
		return WriteResult{}, err
	}
	filename := fmt.Sprintf("%s_%s_%s.parquet",
		model.SanitizeSymbol(symbol), strings.ToLower(period), month.UTC().Format("200601"))
	fullPath := filepath.Join(dir, filename)

	merged := rows
	if _, err := os.Stat(fullPath); err == nil {
		existing, err := parquet.ReadFile[T](fullPath)
		if err != nil {
			return WriteResult{}, fmt.Errorf("read existing partition %s failed: %w", fullPath, err)
		}
		merged = append(existing, rows...)
	}
	merged = dedupeSort(merged)

	tMin := merged[0].EpochMS()
	tMax := merged[len(merged)-1].EpochMS()

	tmpPath := fullPath + ".tmp"
	if err := parquet.WriteFile(tmpPath, merged, parquet.Compression(&parquet.Snappy)); err != nil {
		os.Remove(tmpPath)
		return WriteResult{}, fmt.Errorf("write partition %s failed: %w", fullPath, err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return WriteResult{}, fmt.Errorf("publish partition %s failed: %w", fullPath, err)
	}

	if err := verifyWritten[T](fullPath, len(merged)); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Path: fullPath, TimeFrom: tMin, TimeTo: tMax}, nil
}

// verifyWritten re-opens the published file and asserts row count and
// timestamp ordering.
func verifyWritten[T model.Row](path string, wantRows int) error {
	back, err := parquet.ReadFile[T](path)
	if err != nil {
		return &IntegrityError{Path: path, Reason: fmt.Sprintf("re-read failed: %v", err)}
	}
	if len(back) != wantRows {
		return &IntegrityError{
			Path:   path,
			Reason: fmt.Sprintf("merged frame has %d rows but file has %d", wantRows, len(back)),
		}
	}
	for i := 1; i < len(back); i++ {
		if back[i].EpochMS() <= back[i-1].EpochMS() {
			return &IntegrityError{Path: path, Reason: "timestamps are not strictly increasing"}
		}
	}
	return nil
}

// WriteOHLC writes candles partitioned by calendar month under type "raw".
// Months with no rows produce no files.
func (w *Writer) WriteOHLC(rows []model.Candle, exchange, market, symbol, period string) ([]WriteResult, error) {
	return writeMonthly(w, rows, exchange, market, symbol, "raw", period)
}

// WriteAgg writes resampled candles partitioned by calendar month under
// type "agg".
func (w *Writer) WriteAgg(rows []model.Candle, exchange, market, symbol, period string) ([]WriteResult, error) {
	return writeMonthly(w, rows, exchange, market, symbol, "agg", period)
}

// WriteTicks writes trades partitioned by calendar month under type
// "ticks", period "tick".
func (w *Writer) WriteTicks(rows []model.Tick, exchange, market, symbol string) ([]WriteResult, error) {
	return writeMonthly(w, rows, exchange, market, symbol, "ticks", "tick")
}

// WriteFunding writes funding records partitioned by calendar month under
// type "alt", period "funding".
func (w *Writer) WriteFunding(rows []model.FundingRate, exchange, market, symbol string) ([]WriteResult, error) {
	return writeMonthly(w, rows, exchange, market, symbol, "alt", "funding")
}

func writeMonthly[T model.Row](w *Writer, rows []T, exchange, market, symbol, dataType, period string) ([]WriteResult, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	groups := make(map[time.Time][]T)
	for _, r := range rows {
		t := time.UnixMilli(r.EpochMS()).UTC()
		month := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		groups[month] = append(groups[month], r)
	}
	months := make([]time.Time, 0, len(groups))
	for m := range groups {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	results := make([]WriteResult, 0, len(months))
	for _, m := range months {
		res, err := WriteTable(w, groups[m], exchange, market, symbol, dataType, period, m)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// dedupeSort removes duplicate timestamps keeping the last occurrence, then
// sorts ascending. A re-ingest of the same timestamp overwrites the older row.
func dedupeSort[T model.Row](rows []T) []T {
	last := make(map[int64]T, len(rows))
	for _, r := range rows {
		last[r.EpochMS()] = r
	}
	out := make([]T, 0, len(last))
	for _, r := range last {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EpochMS() < out[j].EpochMS() })
	return out
}
