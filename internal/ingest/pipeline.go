package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/model"
	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/storage/partition"
)

// Verification report statuses.
const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Report is the outcome of an integrity verification. The verifier never
// fails; it always returns a report.
type Report struct {
	Status       string
	Message      string
	RowCount     int
	GapCount     int
	OverlapCount int
	IntervalMS   int64
}

// Pipeline ties the partition writer and the manifest together for file
// ingestion and integrity verification.
type Pipeline struct {
	writer   *partition.Writer
	manifest repository.ManifestRepository
}

// NewPipeline creates a Pipeline over the shared writer and manifest.
func NewPipeline(w *partition.Writer, m repository.ManifestRepository) *Pipeline {
	return &Pipeline{writer: w, manifest: m}
}

// Writer exposes the underlying partition writer.
func (p *Pipeline) Writer() *partition.Writer { return p.writer }

// Manifest exposes the underlying manifest repository.
func (p *Pipeline) Manifest() repository.ManifestRepository { return p.manifest }

// IngestCSV loads an OHLCV CSV into the lake and registers the written
// partitions with sha256 checksums. The header must contain a ts column;
// a headerless six-column file is assumed to be ts,open,high,low,close,volume.
func (p *Pipeline) IngestCSV(ctx context.Context, path, exchange, market, symbol string) error {
	candles, err := readCandleCSV(path)
	if err != nil {
		return err
	}
	results, err := p.writer.WriteOHLC(candles, exchange, market, symbol, "1m")
	if err != nil {
		return fmt.Errorf("write ohlc failed: %w", err)
	}
	meta, _ := json.Marshal(map[string]string{"timeframe": "1m"})
	return p.register(ctx, results, exchange, market, symbol, repository.DataTypeRaw, string(meta))
}

// IngestTicksCSV loads a tick CSV (columns ts,price,amount) into the lake.
func (p *Pipeline) IngestTicksCSV(ctx context.Context, path, exchange, market, symbol string) error {
	ticks, err := readTickCSV(path)
	if err != nil {
		return err
	}
	results, err := p.writer.WriteTicks(ticks, exchange, market, symbol)
	if err != nil {
		return fmt.Errorf("write ticks failed: %w", err)
	}
	meta, _ := json.Marshal(map[string]string{"timeframe": "tick"})
	return p.register(ctx, results, exchange, market, symbol, repository.DataTypeTicks, string(meta))
}

func (p *Pipeline) register(ctx context.Context, results []partition.WriteResult, exchange, market, symbol, dataType, metadataJSON string) error {
	for _, res := range results {
		checksum, err := fileChecksum(res.Path)
		if err != nil {
			return err
		}
		tFrom, tTo := res.TimeFrom, res.TimeTo
		_, err = p.manifest.AddEntry(ctx, repository.Entry{
			Exchange:     exchange,
			Market:       market,
			Symbol:       symbol,
			Path:         res.Path,
			Type:         dataType,
			TimeFrom:     &tFrom,
			TimeTo:       &tTo,
			Checksum:     checksum,
			MetadataJSON: metadataJSON,
		})
		if err != nil {
			return fmt.Errorf("register manifest entry failed: %w", err)
		}
	}
	return nil
}

// VerifyIntegrity replays the manifest-listed raw files for
// (exchange, symbol, market, timeframe) and checks the series for gaps
// and overlaps against its dominant interval.
func (p *Pipeline) VerifyIntegrity(ctx context.Context, exchange, symbol, market, timeframe string) Report {
	entries, err := p.manifest.ListEntries(ctx, repository.Filter{
		Exchange: exchange,
		Symbol:   symbol,
		Market:   market,
		DataType: repository.DataTypeRaw,
	})
	if err != nil {
		return Report{Status: StatusError, Message: fmt.Sprintf("manifest query failed: %v", err)}
	}

	var paths []string
	for _, e := range entries {
		if e.Path == "" {
			continue
		}
		var meta struct {
			Timeframe string `json:"timeframe"`
		}
		if e.MetadataJSON != "" {
			_ = json.Unmarshal([]byte(e.MetadataJSON), &meta)
		}
		if meta.Timeframe != timeframe {
			continue
		}
		resolved := partition.ResolvePath(p.writer.Base(), e.Path)
		if _, err := os.Stat(resolved); err == nil {
			paths = append(paths, resolved)
		}
	}
	if len(paths) == 0 {
		return Report{Status: StatusError, Message: "no files found to verify"}
	}

	candles, err := partition.ReadFiles(paths)
	if err != nil {
		return Report{Status: StatusError, Message: fmt.Sprintf("verification failed: %v", err)}
	}
	rowCount := len(candles)
	if rowCount < 2 {
		return Report{Status: StatusSuccess, RowCount: rowCount, Message: "not enough data for verification"}
	}

	diffs := make([]int64, 0, rowCount-1)
	for i := 1; i < rowCount; i++ {
		diffs = append(diffs, candles[i].Ts-candles[i-1].Ts)
	}
	modeDiff, ok := mode(diffs)
	if !ok {
		return Report{Status: StatusError, Message: "could not determine timeframe"}
	}

	gapCount := 0
	overlapCount := 0
	for _, d := range diffs {
		switch {
		case d > modeDiff:
			gapCount++
		case d <= 0:
			overlapCount++
		}
	}

	report := Report{
		Status:       StatusSuccess,
		RowCount:     rowCount,
		GapCount:     gapCount,
		OverlapCount: overlapCount,
		IntervalMS:   modeDiff,
	}
	switch {
	case gapCount > 0:
		report.Status = StatusWarning
		report.Message = fmt.Sprintf("found %d gaps", gapCount)
	case overlapCount > 0:
		report.Status = StatusWarning
		report.Message = fmt.Sprintf("found %d duplicates/overlaps", overlapCount)
	default:
		report.Message = "data is continuous and valid"
	}
	return report
}

// mode returns the most frequent value; ties resolve to the smallest.
func mode(values []int64) (int64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	counts := make(map[int64]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	keys := make([]int64, 0, len(counts))
	for v := range counts {
		keys = append(keys, v)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	best := keys[0]
	for _, v := range keys[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best, true
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for checksum failed: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum failed: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readCandleCSV(path string) ([]model.Candle, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %s is empty", path)
	}

	header := records[0]
	cols := map[string]int{}
	for i, name := range header {
		cols[name] = i
	}
	rows := records[1:]
	if _, ok := cols["ts"]; !ok {
		// Headerless Binance-style dumps: assume the default column order.
		if len(header) != 6 {
			return nil, fmt.Errorf("csv %s has no ts column and %d columns does not match the default ts,open,high,low,close,volume format", path, len(header))
		}
		cols = map[string]int{"ts": 0, "open": 1, "high": 2, "low": 3, "close": 4, "volume": 5}
		rows = records
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, rec := range rows {
		c := model.Candle{}
		var err error
		if c.Ts, err = strconv.ParseInt(rec[cols["ts"]], 10, 64); err != nil {
			return nil, fmt.Errorf("csv %s: bad ts %q: %w", path, rec[cols["ts"]], err)
		}
		if c.Open, err = strconv.ParseFloat(rec[cols["open"]], 64); err != nil {
			return nil, fmt.Errorf("csv %s: bad open: %w", path, err)
		}
		if c.High, err = strconv.ParseFloat(rec[cols["high"]], 64); err != nil {
			return nil, fmt.Errorf("csv %s: bad high: %w", path, err)
		}
		if c.Low, err = strconv.ParseFloat(rec[cols["low"]], 64); err != nil {
			return nil, fmt.Errorf("csv %s: bad low: %w", path, err)
		}
		if c.Close, err = strconv.ParseFloat(rec[cols["close"]], 64); err != nil {
			return nil, fmt.Errorf("csv %s: bad close: %w", path, err)
		}
		if c.Volume, err = strconv.ParseFloat(rec[cols["volume"]], 64); err != nil {
			return nil, fmt.Errorf("csv %s: bad volume: %w", path, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func readTickCSV(path string) ([]model.Tick, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("csv %s is empty", path)
	}
	cols := map[string]int{}
	for i, name := range records[0] {
		cols[name] = i
	}
	for _, required := range []string{"ts", "price", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv %s missing %s column", path, required)
		}
	}
	ticks := make([]model.Tick, 0, len(records)-1)
	for _, rec := range records[1:] {
		t := model.Tick{}
		var err error
		if t.Ts, err = strconv.ParseInt(rec[cols["ts"]], 10, 64); err != nil {
			return nil, fmt.Errorf("csv %s: bad ts: %w", path, err)
		}
		if t.Price, err = strconv.ParseFloat(rec[cols["price"]], 64); err != nil {
			return nil, fmt.Errorf("csv %s: bad price: %w", path, err)
		}
		if t.Amount, err = strconv.ParseFloat(rec[cols["amount"]], 64); err != nil {
			return nil, fmt.Errorf("csv %s: bad amount: %w", path, err)
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv failed: %w", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s failed: %w", path, err)
	}
	return records, nil
}
