package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

// Discover lists the archives in dir whose base name matches pattern, sorted
// by name. That order is the batch's discovery order. An empty result is an
// EmptyInputError.
func Discover(dir, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("archive pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &domain.EmptyInputError{Dir: dir, Pattern: pattern}
	}
	sort.Strings(files)
	return files, nil
}

// Loader decodes a set of archives concurrently and folds them, in discovery
// order, into one registry and one raw series.
type Loader struct {
	layout  domain.ArchiveLayout
	workers int
	logger  *slog.Logger
}

// NewLoader creates a Loader that decodes at most workers archives at once.
func NewLoader(layout domain.ArchiveLayout, workers int, logger *slog.Logger) *Loader {
	if workers < 1 {
		workers = 1
	}
	return &Loader{layout: layout, workers: workers, logger: logger}
}

// Load decodes files and merges them. Every file is attempted; when several
// fail, the earliest one in discovery order is returned, wrapped in a
// domain.ArchiveError naming the file.
func (l *Loader) Load(ctx context.Context, files []string) (domain.Batch, error) {
	if len(files) == 0 {
		return domain.Batch{}, &domain.EmptyInputError{Pattern: "(explicit file list)"}
	}

	archives := make([]Archive, len(files))
	errs := make([]error, len(files))
	var g errgroup.Group
	g.SetLimit(l.workers)
	for i, path := range files {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			a, err := Read(ctx, path, l.layout)
			if err != nil {
				errs[i] = &domain.ArchiveError{File: filepath.Base(path), Err: err}
				return nil
			}
			archives[i] = a
			l.logger.Debug("archive decoded",
				"file", filepath.Base(path),
				"station_id", a.StationID,
				"rows", len(a.Observations),
			)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.Batch{}, err
	}
	for _, err := range errs {
		if err != nil {
			return domain.Batch{}, err
		}
	}

	return l.merge(archives)
}

func (l *Loader) merge(archives []Archive) (domain.Batch, error) {
	builder := domain.NewRegistryBuilder(l.layout)
	total := 0
	for _, a := range archives {
		total += len(a.Observations)
	}

	series := make(domain.RawSeries, 0, total)
	files := make([]string, 0, len(archives))
	for _, a := range archives {
		if _, err := builder.Add(a.Header.Metadata); err != nil {
			return domain.Batch{}, &domain.ArchiveError{File: filepath.Base(a.Path), Err: err}
		}
		series = append(series, a.Observations...)
		files = append(files, a.Path)
	}

	return domain.Batch{
		Registry: builder.Registry(),
		Series:   series,
		Files:    files,
	}, nil
}

// Source discovers archives in a directory and loads them. It implements
// pipeline.Extractor.
type Source struct {
	dir     string
	pattern string
	loader  *Loader
}

// NewSource creates a Source over dir. The directory is re-listed on every Extract.
func NewSource(dir, pattern string, loader *Loader) *Source {
	return &Source{dir: dir, pattern: pattern, loader: loader}
}

// Extract lists and loads the directory's archives.
func (s *Source) Extract(ctx context.Context) (domain.Batch, error) {
	files, err := Discover(s.dir, s.pattern)
	if err != nil {
		return domain.Batch{}, err
	}
	return s.loader.Load(ctx, files)
}
