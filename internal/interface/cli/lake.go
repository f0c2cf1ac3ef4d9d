package cli

import (
	"database/sql"
	"fmt"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/persistence/sqlite"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/storage/partition"
	"github.com/YoshitsuguKoike/candlelake/internal/ingest"
)

// lake bundles the shared collaborators a command needs. Commands open it,
// defer Close and go.
type lake struct {
	db       *sql.DB
	manifest repository.ManifestRepository
	writer   *partition.Writer
	reader   *partition.Reader
	pipeline *ingest.Pipeline
}

func openLake() (*lake, error) {
	db, err := sqlite.Open(globalConfig.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest at %s: %w", globalConfig.ManifestPath, err)
	}
	manifest := sqlite.NewManifestRepository(db)
	writer := partition.NewWriter(globalConfig.DataRoot)
	return &lake{
		db:       db,
		manifest: manifest,
		writer:   writer,
		reader:   partition.NewReader(globalConfig.DataRoot),
		pipeline: ingest.NewPipeline(writer, manifest),
	}, nil
}

func (l *lake) Close() error {
	return l.db.Close()
}
