package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

// NamedLoader pairs a sink with the name used in logs and errors.
type NamedLoader struct {
	Name   string
	Loader Loader
}

// FanoutLoader hands the same result to every configured sink concurrently.
// A failing sink does not cancel the others; the first error is returned.
type FanoutLoader struct {
	sinks []NamedLoader
}

// NewFanoutLoader creates a FanoutLoader over sinks.
func NewFanoutLoader(sinks ...NamedLoader) *FanoutLoader {
	return &FanoutLoader{sinks: sinks}
}

func (f *FanoutLoader) Load(ctx context.Context, result domain.Result) error {
	var g errgroup.Group
	for _, s := range f.sinks {
		g.Go(func() error {
			if err := s.Loader.Load(ctx, result); err != nil {
				return fmt.Errorf("%s sink: %w", s.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
