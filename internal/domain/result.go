package domain

import "time"

// Batch is everything extracted from one archive directory: the finished
// registry, the raw series, and the archives it came from in discovery order.
type Batch struct {
	Registry *SensorRegistry
	Series   RawSeries
	Files    []string
}

// Result is a fully validated curation run, ready for the sinks.
type Result struct {
	Registry    *SensorRegistry
	Stations    []StationSeries
	Options     CurateOptions
	GeneratedAt time.Time

	Files           int
	Observations    int
	SentinelDropped int
	Buckets         int
}

// NewResult stamps a curation output with the current clock time.
func NewResult(batch Batch, curated Curated, opts CurateOptions) Result {
	return Result{
		Registry:        batch.Registry,
		Stations:        curated.Stations,
		Options:         opts,
		GeneratedAt:     clock.Now().UTC(),
		Files:           len(batch.Files),
		Observations:    curated.Observations,
		SentinelDropped: curated.SentinelDropped,
		Buckets:         curated.Buckets,
	}
}
