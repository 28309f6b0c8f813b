package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/tide-data-etl/internal/domain"
	"github.com/couchcryptid/tide-data-etl/internal/observability"
)

// Extractor produces one batch: the registry and raw series of an archive directory.
type Extractor interface {
	Extract(ctx context.Context) (domain.Batch, error)
}

// Curator turns an extracted batch into curated, sink-ready output.
type Curator interface {
	Curate(ctx context.Context, batch domain.Batch) (domain.Result, error)
}

// Loader writes a curated result to a destination.
type Loader interface {
	Load(ctx context.Context, result domain.Result) error
}

// Pipeline orchestrates the extract-curate-load batch.
type Pipeline struct {
	extractor Extractor
	curator   Curator
	loader    Loader
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	interval  time.Duration

	mu     sync.Mutex
	status Status
}

// Status summarizes the most recent batch attempt.
type Status struct {
	Ready         bool      `json:"ready"`
	LastAttempt   time.Time `json:"last_attempt,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorKind string    `json:"last_error_kind,omitempty"`
	GeneratedAt   time.Time `json:"generated_at,omitzero"`
	Files         int       `json:"files"`
	Stations      int       `json:"stations"`
	Observations  int       `json:"observations"`
	Buckets       int       `json:"buckets"`
}

// New creates a Pipeline with the given stages and observability. An interval
// of zero makes Run execute a single batch.
func New(e Extractor, c Curator, l Loader, logger *slog.Logger, metrics *observability.Metrics, interval time.Duration) *Pipeline {
	return &Pipeline{
		extractor: e,
		curator:   c,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		interval:  interval,
	}
}

// CheckReadiness returns nil once a batch has reached every sink, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a batch yet")
	}
	return nil
}

// Status returns a snapshot of the most recent batch. Counts describe the
// last successful batch and survive later failures.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.status
	st.Ready = p.ready.Load()
	return st
}

// Run executes batches until the context is cancelled. With no interval it
// runs once and returns that batch's error. With an interval, failures are
// logged and counted and the next batch is attempted on schedule.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.interval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	if p.interval <= 0 {
		_, err := p.RunOnce(ctx)
		return err
	}

	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("batch failed, waiting for next run", "error", err, "retry_in", p.interval)
		}
		if !sleepWithContext(ctx, p.interval) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunOnce extracts, curates and loads one batch. A batch either reaches the
// loader whole or not at all.
func (p *Pipeline) RunOnce(ctx context.Context) (domain.Result, error) {
	start := time.Now()

	result, err := p.runOnce(ctx)
	if err != nil {
		kind := domain.ErrorKind(err)
		if ctx.Err() == nil {
			p.metrics.BatchFailures.WithLabelValues(kind).Inc()
		}
		p.logger.Error("batch failed", "error", err, "kind", kind)
		p.mu.Lock()
		p.status.LastAttempt = start
		p.status.LastError = err.Error()
		p.status.LastErrorKind = kind
		p.mu.Unlock()
		return domain.Result{}, err
	}

	p.mu.Lock()
	p.status = Status{
		LastAttempt:  start,
		GeneratedAt:  result.GeneratedAt,
		Files:        result.Files,
		Stations:     result.Registry.Len(),
		Observations: result.Observations,
		Buckets:      result.Buckets,
	}
	p.mu.Unlock()

	p.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	p.metrics.LastSuccessfulBatch.Set(float64(result.GeneratedAt.Unix()))
	p.ready.Store(true)
	p.logger.Info("batch complete",
		"files", result.Files,
		"stations", result.Registry.Len(),
		"observations", result.Observations,
		"sentinel_dropped", result.SentinelDropped,
		"buckets", result.Buckets,
		"duration", time.Since(start),
	)
	return result, nil
}

func (p *Pipeline) runOnce(ctx context.Context) (domain.Result, error) {
	batch, err := p.extractor.Extract(ctx)
	if err != nil {
		return domain.Result{}, fmt.Errorf("extract: %w", err)
	}
	p.metrics.ArchivesRead.Add(float64(len(batch.Files)))
	p.metrics.ObservationsLoaded.Add(float64(len(batch.Series)))

	result, err := p.curator.Curate(ctx, batch)
	if err != nil {
		return domain.Result{}, fmt.Errorf("curate: %w", err)
	}
	p.metrics.SentinelDropped.Add(float64(result.SentinelDropped))

	if err := p.loader.Load(ctx, result); err != nil {
		return domain.Result{}, fmt.Errorf("load: %w", err)
	}
	p.metrics.BucketsEmitted.Add(float64(result.Buckets))
	p.metrics.StationsRegistered.Set(float64(result.Registry.Len()))
	return result, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
