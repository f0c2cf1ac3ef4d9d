// Package sqlite implements the manifest catalog on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/model"
	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
)

// busyTimeoutMS tolerates contention spikes from concurrent ingestion workers.
const busyTimeoutMS = 30000

// Open opens (creating if needed) the manifest database at path and applies
// the schema. The connection uses WAL journaling with a generous busy
// timeout so many workers can write through one local store.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d", path, busyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open manifest db failed: %w", err)
	}
	if err := NewMigrator(db).Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// ManifestRepositoryImpl implements repository.ManifestRepository with SQLite
type ManifestRepositoryImpl struct {
	db *sql.DB
}

// NewManifestRepository creates a new SQLite-based manifest repository
func NewManifestRepository(db *sql.DB) repository.ManifestRepository {
	return &ManifestRepositoryImpl{db: db}
}

// AddEntry inserts e, or updates the existing row when e.Path already
// exists. Exchange, market and symbol casing is normalized before write.
func (r *ManifestRepositoryImpl) AddEntry(ctx context.Context, e repository.Entry) (int64, error) {
	if e.Path == "" {
		return 0, fmt.Errorf("manifest entry requires a path")
	}
	e.Exchange = strings.ToUpper(e.Exchange)
	e.Market = strings.ToUpper(e.Market)
	e.Symbol = model.SanitizeSymbol(e.Symbol)
	if e.Version == "" {
		e.Version = "1.0.0"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin manifest tx failed: %w", err)
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM manifest WHERE path = ?", e.Path).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		result, err := tx.ExecContext(ctx, `
			INSERT INTO manifest (exchange, market, symbol, path, type,
			                      time_from, time_to, version, checksum,
			                      created_at, metadata_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.Exchange, e.Market, e.Symbol, e.Path, e.Type,
			nullableInt64(e.TimeFrom), nullableInt64(e.TimeTo), e.Version, e.Checksum,
			e.CreatedAt, e.MetadataJSON,
		)
		if err != nil {
			return 0, fmt.Errorf("insert manifest entry failed: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("get last insert id failed: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit manifest tx failed: %w", err)
		}
		return id, nil

	case err != nil:
		return 0, fmt.Errorf("lookup manifest path failed: %w", err)

	default:
		_, err := tx.ExecContext(ctx, `
			UPDATE manifest
			SET exchange = ?, market = ?, symbol = ?, type = ?,
			    time_from = ?, time_to = ?, version = ?, checksum = ?,
			    metadata_json = ?
			WHERE id = ?
		`,
			e.Exchange, e.Market, e.Symbol, e.Type,
			nullableInt64(e.TimeFrom), nullableInt64(e.TimeTo), e.Version, e.Checksum,
			e.MetadataJSON, existingID,
		)
		if err != nil {
			return 0, fmt.Errorf("update manifest entry failed: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit manifest tx failed: %w", err)
		}
		return existingID, nil
	}
}

// ListEntries returns entries matching f ordered by insertion (ascending id)
func (r *ManifestRepositoryImpl) ListEntries(ctx context.Context, f repository.Filter) ([]repository.Entry, error) {
	query := `
		SELECT id, exchange, market, symbol, path, type,
		       time_from, time_to, version, checksum, created_at, metadata_json
		FROM manifest
	`
	where, args := filterClauses(f)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list manifest entries failed: %w", err)
	}
	defer rows.Close()

	var entries []repository.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifest entries failed: %w", err)
	}
	return entries, nil
}

// DeleteEntries removes entries for symbol, narrowed by f, and returns the
// removed file paths. It never touches the filesystem.
func (r *ManifestRepositoryImpl) DeleteEntries(ctx context.Context, symbol string, f repository.Filter) ([]string, error) {
	f.Symbol = symbol
	where, args := filterClauses(f)
	if len(where) == 0 {
		return nil, fmt.Errorf("delete requires a symbol")
	}
	cond := strings.Join(where, " AND ")

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin manifest tx failed: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT path FROM manifest WHERE "+cond+" ORDER BY id ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("select paths for delete failed: %w", err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan path failed: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate paths failed: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, "DELETE FROM manifest WHERE "+cond, args...); err != nil {
		return nil, fmt.Errorf("delete manifest entries failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit manifest tx failed: %w", err)
	}
	return paths, nil
}

// GetLatestVersion returns the highest numeric version recorded for a
// feature set, or 0 when none exists. Non-numeric versions are ignored;
// they sort to 0 and are display-only.
func (r *ManifestRepositoryImpl) GetLatestVersion(ctx context.Context, exchange, symbol, featureSet string) (int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT version FROM manifest
		WHERE exchange = ? AND symbol = ? AND type = ?
	`, strings.ToUpper(exchange), model.SanitizeSymbol(symbol), featureSet)
	if err != nil {
		return 0, fmt.Errorf("query versions failed: %w", err)
	}
	defer rows.Close()

	latest := 0
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return 0, fmt.Errorf("scan version failed: %w", err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		if n > latest {
			latest = n
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate versions failed: %w", err)
	}
	return latest, nil
}

func filterClauses(f repository.Filter) ([]string, []interface{}) {
	var where []string
	var args []interface{}
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, model.SanitizeSymbol(f.Symbol))
	}
	if f.DataType != "" {
		where = append(where, "type = ?")
		args = append(args, f.DataType)
	}
	if f.Exchange != "" {
		where = append(where, "exchange = ?")
		args = append(args, strings.ToUpper(f.Exchange))
	}
	if f.Market != "" {
		where = append(where, "market = ?")
		args = append(args, strings.ToUpper(f.Market))
	}
	return where, args
}

func scanEntry(rows *sql.Rows) (repository.Entry, error) {
	var e repository.Entry
	var timeFrom, timeTo sql.NullInt64
	var checksum, metadata sql.NullString
	if err := rows.Scan(
		&e.ID, &e.Exchange, &e.Market, &e.Symbol, &e.Path, &e.Type,
		&timeFrom, &timeTo, &e.Version, &checksum, &e.CreatedAt, &metadata,
	); err != nil {
		return e, fmt.Errorf("scan manifest entry failed: %w", err)
	}
	if timeFrom.Valid {
		v := timeFrom.Int64
		e.TimeFrom = &v
	}
	if timeTo.Valid {
		v := timeTo.Int64
		e.TimeTo = &v
	}
	e.Checksum = checksum.String
	e.MetadataJSON = metadata.String
	return e, nil
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
