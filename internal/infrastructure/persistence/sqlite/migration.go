package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// Migrator manages the manifest database schema
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new database migrator
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Migrate applies the schema. All statements are idempotent
// (CREATE ... IF NOT EXISTS), so Migrate is safe to call at every startup.
func (m *Migrator) Migrate() error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := m.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema failed: %w", err)
		}
	}
	return nil
}

// splitStatements splits a schema script on ';'. Comment lines are dropped
// first so a ';' inside a comment cannot produce a broken fragment.
func splitStatements(script string) []string {
	var sb strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	var stmts []string
	for _, stmt := range strings.Split(sb.String(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}
