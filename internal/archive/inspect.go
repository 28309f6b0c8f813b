package archive

import (
	"context"
	"path/filepath"
	"time"

	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

// FileReport summarizes one archive for the validate command.
type FileReport struct {
	File      string
	StationID string
	Name      string
	Columns   []string
	Rows      int
	Sentinels int
	First     time.Time
	Last      time.Time
	Err       error
}

// OK reports whether the archive decoded and agreed with the batch schema.
func (r FileReport) OK() bool { return r.Err == nil }

// Inspect decodes each file independently and checks it against the registry
// schema established by the earlier files. Unlike Loader it does not stop at
// the first bad archive. The returned error is only set when ctx ends early.
func Inspect(ctx context.Context, files []string, layout domain.ArchiveLayout, sentinel float64) ([]FileReport, error) {
	builder := domain.NewRegistryBuilder(layout)
	reports := make([]FileReport, 0, len(files))

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		rep := FileReport{File: filepath.Base(path)}
		a, err := Read(ctx, path, layout)
		if err != nil {
			rep.Err = err
			reports = append(reports, rep)
			continue
		}

		rep.StationID = a.StationID
		rep.Name, _ = a.Header.Metadata.Get(layout.NameKey)
		rep.Columns = a.Header.Columns
		rep.Rows = len(a.Observations)
		for i, obs := range a.Observations {
			if obs.Value == sentinel {
				rep.Sentinels++
			}
			if i == 0 || obs.Time.Before(rep.First) {
				rep.First = obs.Time
			}
			if i == 0 || obs.Time.After(rep.Last) {
				rep.Last = obs.Time
			}
		}

		if _, err := builder.Add(a.Header.Metadata); err != nil {
			rep.Err = err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
