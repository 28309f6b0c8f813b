package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
)

// DefaultSentinel is the CO-OPS placeholder for a missing water level.
const DefaultSentinel = 9999

// CurateOptions controls sentinel filtering, bucketing and smoothing.
type CurateOptions struct {
	Sentinel  float64
	Width     BucketWidth
	WeekStart time.Weekday // only used for weekly buckets
	Window    int          // rolling window length in buckets
}

// DefaultCurateOptions returns weekly buckets starting Monday with a 52-week
// rolling window.
func DefaultCurateOptions() CurateOptions {
	return CurateOptions{
		Sentinel:  DefaultSentinel,
		Width:     BucketWeek,
		WeekStart: time.Monday,
		Window:    52,
	}
}

// Validate reports options that cannot be curated with.
func (o CurateOptions) Validate() error {
	switch o.Width {
	case BucketWeek, BucketMonth:
	default:
		return fmt.Errorf("%w: bucket width %q", ErrInvalidOptions, o.Width)
	}
	if o.Window < 1 {
		return fmt.Errorf("%w: rolling window must be at least 1, got %d", ErrInvalidOptions, o.Window)
	}
	if o.WeekStart < time.Sunday || o.WeekStart > time.Saturday {
		return fmt.Errorf("%w: week start %d", ErrInvalidOptions, o.WeekStart)
	}
	return nil
}

// CuratedBucket holds the statistics of one station over one bucket.
type CuratedBucket struct {
	StationID string    `json:"station_id"`
	Start     time.Time `json:"bucket_start"`
	Min       float64   `json:"min"`
	Mean      float64   `json:"mean"`
	Max       float64   `json:"max"`
	Count     int       `json:"count"`
}

// SmoothedRow is a CuratedBucket plus its trailing rolling averages. The
// rolling fields are nil for the first Window-1 buckets of a station.
type SmoothedRow struct {
	CuratedBucket
	RollingMin  *float64 `json:"rolling_min"`
	RollingMean *float64 `json:"rolling_mean"`
	RollingMax  *float64 `json:"rolling_max"`
}

// StationSeries is the curated output of one station, ascending by bucket start.
type StationSeries struct {
	StationID string        `json:"station_id"`
	Rows      []SmoothedRow `json:"rows"`
}

// Curated is the output of Curate. Stations follow registry order; a station
// whose observations were all sentinel readings is absent.
type Curated struct {
	Stations        []StationSeries
	Observations    int
	SentinelDropped int
	Buckets         int
}

// Curate filters sentinel readings out of series, buckets what remains per
// station, and smooths each station's min/mean/max series. Stations are
// processed independently and in parallel; no window ever spans two stations.
// The input series is not modified.
func Curate(series RawSeries, registry *SensorRegistry, opts CurateOptions) (Curated, error) {
	if err := opts.Validate(); err != nil {
		return Curated{}, err
	}
	if registry == nil {
		registry = &SensorRegistry{}
	}

	partitions := make(map[string][]Observation)
	dropped := 0
	for _, obs := range series {
		if !registry.Has(obs.StationID) {
			return Curated{}, &ReferentialIntegrityError{StationID: obs.StationID}
		}
		if obs.Value == opts.Sentinel {
			dropped++
			continue
		}
		partitions[obs.StationID] = append(partitions[obs.StationID], obs)
	}

	var ids []string
	for _, st := range registry.stations {
		if len(partitions[st.ID]) > 0 {
			ids = append(ids, st.ID)
		}
	}

	out := make([]StationSeries, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			rows, err := curateStation(id, partitions[id], opts)
			if err != nil {
				return fmt.Errorf("curate station %s: %w", id, err)
			}
			out[i] = StationSeries{StationID: id, Rows: rows}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Curated{}, err
	}

	buckets := 0
	for _, s := range out {
		buckets += len(s.Rows)
	}
	return Curated{
		Stations:        out,
		Observations:    len(series),
		SentinelDropped: dropped,
		Buckets:         buckets,
	}, nil
}

func curateStation(id string, observations []Observation, opts CurateOptions) ([]SmoothedRow, error) {
	grouped := make(map[int64][]float64)
	for _, obs := range observations {
		start, err := BucketStart(obs.Time, opts.Width, opts.WeekStart)
		if err != nil {
			return nil, err
		}
		key := start.Unix()
		grouped[key] = append(grouped[key], obs.Value)
	}

	starts := make([]int64, 0, len(grouped))
	for k := range grouped {
		starts = append(starts, k)
	}
	slices.Sort(starts)

	rows := make([]SmoothedRow, len(starts))
	mins := make([]float64, len(starts))
	means := make([]float64, len(starts))
	maxs := make([]float64, len(starts))
	for i, start := range starts {
		values := grouped[start]
		bucket, err := summarize(id, time.Unix(start, 0).UTC(), values)
		if err != nil {
			return nil, err
		}
		rows[i] = SmoothedRow{CuratedBucket: bucket}
		mins[i], means[i], maxs[i] = bucket.Min, bucket.Mean, bucket.Max
	}

	rollMin, err := RollingMean(mins, opts.Window)
	if err != nil {
		return nil, err
	}
	rollMean, err := RollingMean(means, opts.Window)
	if err != nil {
		return nil, err
	}
	rollMax, err := RollingMean(maxs, opts.Window)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].RollingMin = rollMin[i]
		rows[i].RollingMean = rollMean[i]
		rows[i].RollingMax = rollMax[i]
	}
	return rows, nil
}

func summarize(id string, start time.Time, values []float64) (CuratedBucket, error) {
	lo, err := stats.Min(values)
	if err != nil {
		return CuratedBucket{}, err
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return CuratedBucket{}, err
	}
	hi, err := stats.Max(values)
	if err != nil {
		return CuratedBucket{}, err
	}
	return CuratedBucket{
		StationID: id,
		Start:     start,
		Min:       lo,
		Mean:      mean,
		Max:       hi,
		Count:     len(values),
	}, nil
}
