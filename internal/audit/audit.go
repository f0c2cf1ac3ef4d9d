// Package audit reconciles the manifest catalog against the files that
// actually exist under the data root.
package audit

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/storage/partition"
)

// Report lists the two failure modes of catalog drift.
type Report struct {
	// Orphans are parquet files on disk with no manifest entry.
	Orphans []string
	// Ghosts are manifest entries whose file is missing on disk.
	Ghosts []repository.Entry
}

// Clean reports whether the catalog and the filesystem agree.
func (r Report) Clean() bool {
	return len(r.Orphans) == 0 && len(r.Ghosts) == 0
}

// Auditor walks the data root and compares it to the manifest.
type Auditor struct {
	fs       afero.Fs
	dataRoot string
	manifest repository.ManifestRepository
}

// New creates an Auditor over the given filesystem and data root.
func New(fs afero.Fs, dataRoot string, manifest repository.ManifestRepository) *Auditor {
	return &Auditor{fs: fs, dataRoot: dataRoot, manifest: manifest}
}

// Run produces the reconciliation report. Feature-set entries are checked
// for ghosts but never counted as orphans since they live outside the
// partition layout.
func (a *Auditor) Run(ctx context.Context) (Report, error) {
	entries, err := a.manifest.ListEntries(ctx, repository.Filter{})
	if err != nil {
		return Report{}, err
	}

	registered := make(map[string]repository.Entry, len(entries))
	var report Report
	for _, e := range entries {
		resolved := partition.ResolvePath(a.dataRoot, e.Path)
		registered[resolved] = e
		exists, err := afero.Exists(a.fs, resolved)
		if err != nil {
			return Report{}, err
		}
		if !exists {
			report.Ghosts = append(report.Ghosts, e)
		}
	}

	err = afero.Walk(a.fs, a.dataRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".parquet") {
			return nil
		}
		if _, ok := registered[path]; !ok {
			report.Orphans = append(report.Orphans, path)
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	sort.Strings(report.Orphans)
	sort.Slice(report.Ghosts, func(i, j int) bool {
		return report.Ghosts[i].Path < report.Ghosts[j].Path
	})
	return report, nil
}

// PruneEmptyDirs removes directories under the data root left empty after
// partition files were deleted.
func (a *Auditor) PruneEmptyDirs() error {
	var dirs []string
	err := afero.Walk(a.fs, a.dataRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() && path != a.dataRoot {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Deepest first so parents emptied by child removal get caught too.
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, dir := range dirs {
		children, err := afero.ReadDir(a.fs, dir)
		if err != nil {
			continue
		}
		if len(children) == 0 {
			_ = a.fs.Remove(dir)
		}
	}
	return nil
}
