package partition

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/model"
)

// Reader answers range queries straight from the on-disk layout. It does
// not consult the manifest: read availability is decoupled from manifest
// freshness.
type Reader struct {
	base string
}

// NewReader creates a Reader rooted at base.
func NewReader(base string) *Reader {
	return &Reader{base: base}
}

// ReadCandleRange returns candles of dataType for (exchange, symbol) in
// [start, end], across all market types, merged and ordered by ts.
// start and end are ISO-8601; naive values are interpreted as UTC.
func (r *Reader) ReadCandleRange(exchange, symbol, dataType, start, end string) ([]model.Candle, error) {
	return readRange[model.Candle](r, exchange, symbol, dataType, start, end)
}

// ReadFundingRange is ReadCandleRange for funding records (type "alt").
func (r *Reader) ReadFundingRange(exchange, symbol, start, end string) ([]model.FundingRate, error) {
	return readRange[model.FundingRate](r, exchange, symbol, "alt", start, end)
}

func readRange[T model.Row](r *Reader, exchange, symbol, dataType, start, end string) ([]T, error) {
	tsStart, err := ParseISOMillis(start)
	if err != nil {
		return nil, fmt.Errorf("parse start date failed: %w", err)
	}
	tsEnd, err := ParseISOMillis(end)
	if err != nil {
		return nil, fmt.Errorf("parse end date failed: %w", err)
	}

	files, err := r.partitionFiles(exchange, symbol, dataType)
	if err != nil {
		return nil, err
	}

	var out []T
	for _, f := range files {
		rows, err := parquet.ReadFile[T](f)
		if err != nil {
			return nil, fmt.Errorf("read partition %s failed: %w", f, err)
		}
		for _, row := range rows {
			if ts := row.EpochMS(); ts >= tsStart && ts <= tsEnd {
				out = append(out, row)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EpochMS() < out[j].EpochMS() })
	return out, nil
}

// ReadFiles reads and merges candle rows from explicit partition files,
// ordered by ts.
func ReadFiles(paths []string) ([]model.Candle, error) {
	var out []model.Candle
	for _, p := range paths {
		rows, err := parquet.ReadFile[model.Candle](p)
		if err != nil {
			return nil, fmt.Errorf("read partition %s failed: %w", p, err)
		}
		out = append(out, rows...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })
	return out, nil
}

// partitionFiles enumerates <base>/<EXCHANGE>/*/<SYMBOL>/<type>/**/*.parquet.
// The market level is wild-carded so a symbol is found across market types.
// Symbol is sanitized first; hostile input degrades to a directory name
// that matches nothing.
func (r *Reader) partitionFiles(exchange, symbol, dataType string) ([]string, error) {
	markets, err := os.ReadDir(filepath.Join(r.base, strings.ToUpper(exchange)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list markets failed: %w", err)
	}

	var files []string
	for _, m := range markets {
		if !m.IsDir() {
			continue
		}
		root := filepath.Join(r.base, strings.ToUpper(exchange), m.Name(),
			model.SanitizeSymbol(symbol), strings.ToLower(dataType))
		if _, err := os.Stat(root); err != nil {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".parquet") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk partitions failed: %w", err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// ListSymbols returns the distinct symbol directory names across all
// exchanges and markets, sorted.
func (r *Reader) ListSymbols() ([]string, error) {
	seen := make(map[string]struct{})
	exchanges, err := os.ReadDir(r.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list exchanges failed: %w", err)
	}
	for _, ex := range exchanges {
		if !ex.IsDir() {
			continue
		}
		// The feature store lives under <base>/features; it is not an
		// exchange directory.
		if ex.Name() == "features" {
			continue
		}
		markets, err := os.ReadDir(filepath.Join(r.base, ex.Name()))
		if err != nil {
			continue
		}
		for _, mk := range markets {
			if !mk.IsDir() {
				continue
			}
			symbols, err := os.ReadDir(filepath.Join(r.base, ex.Name(), mk.Name()))
			if err != nil {
				continue
			}
			for _, sym := range symbols {
				if sym.IsDir() {
					seen[sym.Name()] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// ParseISOMillis converts an ISO-8601 date or datetime to ms since epoch.
// Values without a zone are interpreted as UTC.
func ParseISOMillis(s string) (int64, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unparseable ISO-8601 value %q", s)
}

// ResolvePath resolves a manifest path against the data root: absolute
// paths pass through; relative paths are tried as-is, then joined to base.
func ResolvePath(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join(base, path)
}
