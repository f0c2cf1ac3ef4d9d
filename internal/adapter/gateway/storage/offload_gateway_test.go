package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/persistence/sqlite"
)

func newTestManifest(t *testing.T) repository.ManifestRepository {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewManifestRepository(db)
}

func addEntry(t *testing.T, manifest repository.ManifestRepository, path string, timeTo int64) {
	t.Helper()
	_, err := manifest.AddEntry(context.Background(), repository.Entry{
		Exchange: "binance", Market: "spot", Symbol: "BTC/USDT",
		Path: path, Type: repository.DataTypeRaw, TimeTo: &timeTo,
	})
	require.NoError(t, err)
}

func TestOffloadBeforeUploadsColdPartitions(t *testing.T) {
	manifest := newTestManifest(t)
	dataRoot := t.TempDir()

	cold := filepath.Join(dataRoot, "BINANCE", "SPOT", "BTC_USDT", "raw", "1m", "2023", "01", "BTC_USDT_1m_202301.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(cold), 0o755))
	require.NoError(t, os.WriteFile(cold, []byte("cold data"), 0o644))

	warm := filepath.Join(dataRoot, "BINANCE", "SPOT", "BTC_USDT", "raw", "1m", "2024", "06", "BTC_USDT_1m_202406.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(warm), 0o755))
	require.NoError(t, os.WriteFile(warm, []byte("warm data"), 0o644))

	cutoff := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	addEntry(t, manifest, cold, cutoff.AddDate(0, -6, 0).UnixMilli())
	addEntry(t, manifest, warm, cutoff.AddDate(0, 6, 0).UnixMilli())

	mock := NewMockS3Client()
	gw := NewOffloadGatewayWithClient(mock, "lake-archive", "candlelake")

	results, err := gw.OffloadBefore(context.Background(), manifest, dataRoot, cutoff, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Uploaded)
	assert.Equal(t, "candlelake/BINANCE/SPOT/BTC_USDT/raw/1m/2023/01/BTC_USDT_1m_202301.parquet", results[0].Key)
	assert.True(t, mock.HasKey(results[0].Key))
	assert.Equal(t, 1, mock.GetObjectCount())

	// The local file is untouched.
	_, err = os.Stat(cold)
	assert.NoError(t, err)
}

func TestOffloadBeforeDryRun(t *testing.T) {
	manifest := newTestManifest(t)
	dataRoot := t.TempDir()

	cold := filepath.Join(dataRoot, "file.parquet")
	require.NoError(t, os.WriteFile(cold, []byte("x"), 0o644))
	addEntry(t, manifest, cold, 1_000)

	mock := NewMockS3Client()
	gw := NewOffloadGatewayWithClient(mock, "lake-archive", "candlelake")

	results, err := gw.OffloadBefore(context.Background(), manifest, dataRoot, time.Now(), true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Uploaded)
	assert.Equal(t, "dry run", results[0].Skipped)
	assert.Zero(t, mock.GetObjectCount())
}

func TestOffloadBeforeSkipsAlreadyOffloaded(t *testing.T) {
	manifest := newTestManifest(t)
	dataRoot := t.TempDir()

	cold := filepath.Join(dataRoot, "file.parquet")
	require.NoError(t, os.WriteFile(cold, []byte("x"), 0o644))
	addEntry(t, manifest, cold, 1_000)

	mock := NewMockS3Client()
	gw := NewOffloadGatewayWithClient(mock, "lake-archive", "candlelake")

	_, err := gw.OffloadBefore(context.Background(), manifest, dataRoot, time.Now(), false)
	require.NoError(t, err)
	require.Equal(t, 1, mock.GetObjectCount())

	results, err := gw.OffloadBefore(context.Background(), manifest, dataRoot, time.Now(), false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Uploaded)
	assert.Equal(t, "already offloaded", results[0].Skipped)
	assert.Equal(t, 1, mock.GetObjectCount())
}

func TestOffloadBeforeSkipsMissingLocalFile(t *testing.T) {
	manifest := newTestManifest(t)
	dataRoot := t.TempDir()
	addEntry(t, manifest, filepath.Join(dataRoot, "gone.parquet"), 1_000)

	mock := NewMockS3Client()
	gw := NewOffloadGatewayWithClient(mock, "lake-archive", "")

	results, err := gw.OffloadBefore(context.Background(), manifest, dataRoot, time.Now(), false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "file missing locally", results[0].Skipped)
	assert.Zero(t, mock.GetObjectCount())
}

func TestOffloadBeforeIgnoresEntriesWithoutTimeSpan(t *testing.T) {
	manifest := newTestManifest(t)
	dataRoot := t.TempDir()

	_, err := manifest.AddEntry(context.Background(), repository.Entry{
		Exchange: "binance", Market: "features", Symbol: "BTC/USDT",
		Path: filepath.Join(dataRoot, "feature.parquet"), Type: "momentum",
	})
	require.NoError(t, err)

	gw := NewOffloadGatewayWithClient(NewMockS3Client(), "lake-archive", "")
	results, err := gw.OffloadBefore(context.Background(), manifest, dataRoot, time.Now(), false)
	require.NoError(t, err)
	assert.Empty(t, results)
}
