package features

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/persistence/sqlite"
)

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fs := afero.NewMemMapFs()
	return NewStore(fs, "/lake", sqlite.NewManifestRepository(db)), fs
}

func TestUploadAssignsIncrementingVersions(t *testing.T) {
	store, fs := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, afero.WriteFile(fs, "/tmp/momentum.parquet", []byte("v1 payload"), 0o644))

	v, err := store.Upload(ctx, "/tmp/momentum.parquet", "binance", "BTC/USDT", "momentum")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, afero.WriteFile(fs, "/tmp/momentum.parquet", []byte("v2 payload"), 0o644))
	v, err = store.Upload(ctx, "/tmp/momentum.parquet", "binance", "BTC/USDT", "momentum")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	// Copies land under features/<set>/<version>/.
	data, err := afero.ReadFile(fs, "/lake/features/momentum/2/momentum.parquet")
	require.NoError(t, err)
	assert.Equal(t, "v2 payload", string(data))

	latest, err := store.LatestVersion(ctx, "binance", "BTC/USDT", "momentum")
	require.NoError(t, err)
	assert.Equal(t, 2, latest)
}

func TestUploadMissingSource(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Upload(context.Background(), "/tmp/absent.parquet", "binance", "BTC/USDT", "momentum")
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestUploadRecordsChecksumAndMetadata(t *testing.T) {
	store, fs := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, afero.WriteFile(fs, "/tmp/vol.parquet", []byte("payload"), 0o644))
	_, err := store.Upload(ctx, "/tmp/vol.parquet", "binance", "BTC/USDT", "volatility")
	require.NoError(t, err)

	entries, err := store.List(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "volatility", entries[0].Type)
	assert.Equal(t, "1", entries[0].Version)
	assert.NotEmpty(t, entries[0].Checksum)
	assert.Contains(t, entries[0].MetadataJSON, "volatility")
}

func TestListExcludesStandardTypes(t *testing.T) {
	store, fs := newTestStore(t)
	ctx := context.Background()

	timeTo := int64(1)
	_, err := store.manifest.AddEntry(ctx, repository.Entry{
		Exchange: "binance", Market: "spot", Symbol: "BTC/USDT",
		Path: "/lake/raw.parquet", Type: repository.DataTypeRaw, TimeTo: &timeTo,
	})
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, "/tmp/m.parquet", []byte("x"), 0o644))
	_, err = store.Upload(ctx, "/tmp/m.parquet", "binance", "BTC/USDT", "momentum")
	require.NoError(t, err)

	entries, err := store.List(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "momentum", entries[0].Type)
}
