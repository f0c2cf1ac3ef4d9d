// Package repository defines the persistence interfaces of the lake.
package repository

import (
	"context"
	"time"
)

// Standard lake data types. Any other value of Entry.Type names a feature set.
const (
	DataTypeRaw   = "raw"
	DataTypeTicks = "ticks"
	DataTypeAgg   = "agg"
	DataTypeAlt   = "alt"
)

// StandardDataTypes reports whether t is one of the built-in data types
// (as opposed to a feature-set name).
func StandardDataType(t string) bool {
	switch t {
	case DataTypeRaw, DataTypeTicks, DataTypeAgg, DataTypeAlt:
		return true
	}
	return false
}

// Entry is one manifest row: the catalog record for a single physical file.
// TimeFrom and TimeTo are inclusive ms-since-epoch bounds of the file's
// content; nil means the entry carries no time span (feature files).
type Entry struct {
	ID           int64
	Exchange     string
	Market       string
	Symbol       string
	Path         string
	Type         string
	TimeFrom     *int64
	TimeTo       *int64
	Version      string
	Checksum     string
	CreatedAt    time.Time
	MetadataJSON string
}

// Filter narrows ListEntries. Zero-valued fields are ignored; set fields
// are AND-combined.
type Filter struct {
	Symbol   string
	DataType string
	Exchange string
	Market   string
}

// ManifestRepository is the persistent catalog indexing every file in the
// lake. Implementations must serialize concurrent writers and normalize
// exchange/market/symbol casing on both read and write.
type ManifestRepository interface {
	// AddEntry inserts e, or updates the existing row when e.Path is
	// already registered (path is the natural key). Returns the row id.
	AddEntry(ctx context.Context, e Entry) (int64, error)

	// ListEntries returns entries matching f in insertion order.
	ListEntries(ctx context.Context, f Filter) ([]Entry, error)

	// DeleteEntries removes entries for symbol (further narrowed by f) and
	// returns the file paths of the removed rows. Files on disk are the
	// caller's responsibility.
	DeleteEntries(ctx context.Context, symbol string, f Filter) ([]string, error)

	// GetLatestVersion returns the highest numeric version recorded for a
	// feature set, or 0 when none exists. Non-numeric versions count as 0.
	GetLatestVersion(ctx context.Context, exchange, symbol, featureSet string) (int, error)
}
