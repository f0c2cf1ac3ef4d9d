// Package features versions derived feature-set artifacts alongside the
// market data they were computed from.
package features

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
)

// ErrMissingSource is returned when the artifact to upload does not exist.
var ErrMissingSource = errors.New("feature source file does not exist")

// Store copies feature artifacts into the lake under
// <base>/features/<set>/<version>/ and registers them in the manifest with
// the feature-set name as the manifest type.
type Store struct {
	fs       afero.Fs
	base     string
	manifest repository.ManifestRepository
}

// NewStore creates a Store rooted at base on the given filesystem.
func NewStore(fs afero.Fs, base string, manifest repository.ManifestRepository) *Store {
	return &Store{fs: fs, base: base, manifest: manifest}
}

// Upload copies srcPath into the store as the next version of featureSet
// for (exchange, symbol) and returns the assigned version number.
func (s *Store) Upload(ctx context.Context, srcPath, exchange, symbol, featureSet string) (int, error) {
	exists, err := afero.Exists(s.fs, srcPath)
	if err != nil {
		return 0, fmt.Errorf("stat %s failed: %w", srcPath, err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrMissingSource, srcPath)
	}

	exchange = strings.ToLower(exchange)
	latest, err := s.manifest.GetLatestVersion(ctx, exchange, symbol, featureSet)
	if err != nil {
		return 0, fmt.Errorf("resolve latest version failed: %w", err)
	}
	version := latest + 1

	destDir := filepath.Join(s.base, "features", featureSet, strconv.Itoa(version))
	if err := s.fs.MkdirAll(destDir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s failed: %w", destDir, err)
	}
	destPath := filepath.Join(destDir, filepath.Base(srcPath))

	checksum, err := s.copyFile(srcPath, destPath)
	if err != nil {
		return 0, err
	}

	meta, _ := json.Marshal(map[string]string{
		"feature_set": featureSet,
		"uploaded_at": time.Now().UTC().Format(time.RFC3339),
	})
	_, err = s.manifest.AddEntry(ctx, repository.Entry{
		Exchange:     exchange,
		Market:       "features",
		Symbol:       symbol,
		Path:         destPath,
		Type:         featureSet,
		Version:      strconv.Itoa(version),
		Checksum:     checksum,
		MetadataJSON: string(meta),
	})
	if err != nil {
		return 0, fmt.Errorf("register feature entry failed: %w", err)
	}
	return version, nil
}

// LatestVersion returns the newest registered version of featureSet for
// (exchange, symbol), zero when none exists.
func (s *Store) LatestVersion(ctx context.Context, exchange, symbol, featureSet string) (int, error) {
	return s.manifest.GetLatestVersion(ctx, strings.ToLower(exchange), symbol, featureSet)
}

// List returns every feature-set entry for symbol, excluding the standard
// market-data types.
func (s *Store) List(ctx context.Context, symbol string) ([]repository.Entry, error) {
	entries, err := s.manifest.ListEntries(ctx, repository.Filter{Symbol: symbol})
	if err != nil {
		return nil, err
	}
	var out []repository.Entry
	for _, e := range entries {
		if repository.StandardDataType(e.Type) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) copyFile(src, dest string) (string, error) {
	in, err := s.fs.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s failed: %w", src, err)
	}
	defer in.Close()

	out, err := s.fs.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s failed: %w", dest, err)
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		return "", fmt.Errorf("copy to %s failed: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s failed: %w", dest, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
