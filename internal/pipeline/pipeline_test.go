package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tide-data-etl/internal/domain"
	"github.com/couchcryptid/tide-data-etl/internal/observability"
	"github.com/couchcryptid/tide-data-etl/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	batch domain.Batch
	err   error
	calls atomic.Int64
}

func (m *mockExtractor) Extract(_ context.Context) (domain.Batch, error) {
	m.calls.Add(1)
	if m.err != nil {
		return domain.Batch{}, m.err
	}
	return m.batch, nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.Result
	err    error
}

func (m *mockLoader) Load(_ context.Context, result domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, result)
	return nil
}

func (m *mockLoader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded)
}

type mockGeocoder struct{}

func (mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{
		PlaceName:        "San Diego",
		FormattedAddress: "San Diego, California, United States",
		Confidence:       0.9,
	}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- helpers ---

func testBatch(t *testing.T) domain.Batch {
	t.Helper()
	b := domain.NewRegistryBuilder(domain.DefaultLayout())
	_, err := b.Add(domain.StationMetadata{
		{Key: "NOS ID", Value: "9410170"},
		{Key: "Location Name", Value: "SAN DIEGO, SAN DIEGO BAY"},
		{Key: "Latitude", Value: "32.71419"},
		{Key: "Longitude", Value: "-117.17358"},
		{Key: "Horizontal Datum", Value: "WGS-84"},
		{Key: "Operator", Value: "NOAA/NOS/CO-OPS"},
	})
	require.NoError(t, err)

	start := time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)
	var series domain.RawSeries
	for i := 0; i < 21; i++ {
		v := 1.0 + float64(i%7)/10
		if i == 3 {
			v = domain.DefaultSentinel
		}
		series = append(series, domain.Observation{StationID: "9410170", Time: start.AddDate(0, 0, i), Value: v})
	}
	return domain.Batch{Registry: b.Registry(), Series: series, Files: []string{"9410170.gz"}}
}

func testOptions() domain.CurateOptions {
	opts := domain.DefaultCurateOptions()
	opts.Window = 2
	return opts
}

// --- tests ---

func TestPipeline_RunOnce_HappyPath(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	ext := &mockExtractor{batch: testBatch(t)}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ext, pipeline.NewCurator(testOptions(), nil, discardLogger()), ldr, discardLogger(), metrics, 0)

	result, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.CheckReadiness(context.Background()))

	require.Equal(t, 1, ldr.count())
	assert.Equal(t, fakeClock.Now(), result.GeneratedAt)
	assert.Equal(t, 1, result.Files)
	assert.Equal(t, 21, result.Observations)
	assert.Equal(t, 1, result.SentinelDropped)
	assert.Equal(t, 3, result.Buckets)
	require.Len(t, result.Stations, 1)
	assert.Nil(t, result.Stations[0].Rows[0].RollingMean)
	assert.NotNil(t, result.Stations[0].Rows[1].RollingMean)

	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ArchivesRead), 0)
	assert.InDelta(t, 21.0, testutil.ToFloat64(metrics.ObservationsLoaded), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.SentinelDropped), 0)
	assert.InDelta(t, 3.0, testutil.ToFloat64(metrics.BucketsEmitted), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.StationsRegistered), 0)
	assert.InDelta(t, float64(fakeClock.Now().Unix()), testutil.ToFloat64(metrics.LastSuccessfulBatch), 0)

	st := p.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, 1, st.Stations)
	assert.Equal(t, 3, st.Buckets)
	assert.Empty(t, st.LastError)
}

func TestPipeline_RunOnce_Failures(t *testing.T) {
	unregistered := testBatch(t)
	unregistered.Series = append(unregistered.Series, domain.Observation{StationID: "1612480", Time: time.Now(), Value: 1})

	tests := []struct {
		name      string
		extractor *mockExtractor
		loader    *mockLoader
		kind      string
	}{
		{
			name:      "extract",
			extractor: &mockExtractor{err: &domain.EmptyInputError{Dir: "data", Pattern: "*.gz"}},
			loader:    &mockLoader{},
			kind:      "empty_input",
		},
		{
			name:      "curate",
			extractor: &mockExtractor{batch: unregistered},
			loader:    &mockLoader{},
			kind:      "referential_integrity",
		},
		{
			name:      "load",
			extractor: &mockExtractor{batch: testBatch(t)},
			loader:    &mockLoader{err: errors.New("broker unavailable")},
			kind:      "internal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := observability.NewMetricsForTesting()
			p := pipeline.New(tt.extractor, pipeline.NewCurator(testOptions(), nil, discardLogger()), tt.loader, discardLogger(), metrics, 0)

			_, err := p.RunOnce(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.name+":")
			assert.Equal(t, tt.kind, domain.ErrorKind(err))
			assert.Equal(t, 0, tt.loader.count(), "nothing reaches the sink from a failed batch")
			assert.Error(t, p.CheckReadiness(context.Background()))
			assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.BatchFailures.WithLabelValues(tt.kind)), 0)
			assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.BucketsEmitted), 0)
			assert.Equal(t, tt.kind, p.Status().LastErrorKind)
			assert.False(t, p.Status().Ready)
		})
	}
}

func TestPipeline_Run_OneShotReturnsError(t *testing.T) {
	ext := &mockExtractor{err: &domain.FormatError{Line: 3, Reason: "metadata line has no colon"}}
	p := pipeline.New(ext, pipeline.NewCurator(testOptions(), nil, discardLogger()), &mockLoader{}, discardLogger(), observability.NewMetricsForTesting(), 0)

	err := p.Run(context.Background())
	var fe *domain.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, int64(1), ext.calls.Load())
}

func TestPipeline_Run_Interval(t *testing.T) {
	ext := &mockExtractor{batch: testBatch(t)}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ext, pipeline.NewCurator(testOptions(), nil, discardLogger()), ldr, discardLogger(), metrics, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.GreaterOrEqual(t, ext.calls.Load(), int64(2))
	assert.GreaterOrEqual(t, ldr.count(), 2)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_IntervalSurvivesFailures(t *testing.T) {
	ext := &mockExtractor{err: errors.New("disk unavailable")}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ext, pipeline.NewCurator(testOptions(), nil, discardLogger()), &mockLoader{}, discardLogger(), metrics, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.GreaterOrEqual(t, ext.calls.Load(), int64(2))
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.BatchFailures.WithLabelValues("internal")), 2.0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{batch: testBatch(t)}
	ldr := &mockLoader{}
	p := pipeline.New(ext, pipeline.NewCurator(testOptions(), nil, discardLogger()), ldr, discardLogger(), observability.NewMetricsForTesting(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return ldr.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}

func TestTideCurator_Geocoding(t *testing.T) {
	batch := testBatch(t)
	c := pipeline.NewCurator(testOptions(), mockGeocoder{}, discardLogger())

	result, err := c.Curate(context.Background(), batch)
	require.NoError(t, err)

	st, ok := result.Registry.Station("9410170")
	require.True(t, ok)
	assert.Equal(t, "San Diego", st.PlaceName)
	assert.Equal(t, "reverse", st.GeoSource)
	assert.Equal(t, "SAN DIEGO, SAN DIEGO BAY", st.Name, "archive name is kept")
}

func TestFanoutLoader(t *testing.T) {
	result := domain.Result{Buckets: 3}

	t.Run("every sink receives the result", func(t *testing.T) {
		a, b := &mockLoader{}, &mockLoader{}
		f := pipeline.NewFanoutLoader(
			pipeline.NamedLoader{Name: "kafka", Loader: a},
			pipeline.NamedLoader{Name: "sqlite", Loader: b},
		)
		require.NoError(t, f.Load(context.Background(), result))
		assert.Equal(t, 1, a.count())
		assert.Equal(t, 1, b.count())
	})

	t.Run("failing sink is named and does not stop the others", func(t *testing.T) {
		bad, good := &mockLoader{err: errors.New("database is locked")}, &mockLoader{}
		f := pipeline.NewFanoutLoader(
			pipeline.NamedLoader{Name: "sqlite", Loader: bad},
			pipeline.NamedLoader{Name: "kafka", Loader: good},
		)
		err := f.Load(context.Background(), result)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite sink")
		assert.Equal(t, 1, good.count())
	})
}
