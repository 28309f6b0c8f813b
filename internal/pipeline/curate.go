package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

// TideCurator implements Curator using the domain curation engine with
// optional place-name enrichment of the registry.
type TideCurator struct {
	opts     domain.CurateOptions
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewCurator creates a TideCurator. Pass a nil geocoder to disable place-name
// enrichment.
func NewCurator(opts domain.CurateOptions, geocoder domain.Geocoder, logger *slog.Logger) *TideCurator {
	return &TideCurator{
		opts:     opts,
		geocoder: geocoder,
		logger:   logger,
	}
}

func (c *TideCurator) Curate(ctx context.Context, batch domain.Batch) (domain.Result, error) {
	curated, err := domain.Curate(batch.Series, batch.Registry, c.opts)
	if err != nil {
		return domain.Result{}, err
	}

	domain.EnrichWithGeocoding(ctx, batch.Registry, c.geocoder, c.logger)

	return domain.NewResult(batch, curated, c.opts), nil
}
