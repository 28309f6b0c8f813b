package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/tide-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/tide-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/tide-data-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/tide-data-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/tide-data-etl/internal/archive"
	"github.com/couchcryptid/tide-data-etl/internal/config"
	"github.com/couchcryptid/tide-data-etl/internal/domain"
	"github.com/couchcryptid/tide-data-etl/internal/observability"
	"github.com/couchcryptid/tide-data-etl/internal/pipeline"
)

type closer interface {
	Close() error
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	sinks, closers, err := openSinks(cfg, logger)
	defer closeAll(closers, logger)
	if err != nil {
		logger.Error("failed to open sinks", "error", err)
		return 1
	}

	loader := archive.NewLoader(cfg.Layout, cfg.Workers, logger)
	source := archive.NewSource(cfg.ArchiveDir, cfg.ArchivePattern, loader)
	curator := pipeline.NewCurator(cfg.Curate, geocoder, logger)

	p := pipeline.New(source, curator, pipeline.NewFanoutLoader(sinks...), logger, metrics, cfg.RunInterval)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline. A one-shot run ends the process when it finishes.
	exitCode := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err, "kind", domain.ErrorKind(err))
			exitCode = 1
		}
		if cfg.RunInterval <= 0 {
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return exitCode
}

func openSinks(cfg *config.Config, logger *slog.Logger) ([]pipeline.NamedLoader, []closer, error) {
	var (
		sinks   []pipeline.NamedLoader
		closers []closer
	)
	if cfg.SinkEnabled(config.SinkKafka) {
		w := kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, pipeline.NamedLoader{Name: config.SinkKafka, Loader: w})
		closers = append(closers, w)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers,
			"station_topic", cfg.KafkaStationTopic, "curated_topic", cfg.KafkaCuratedTopic)
	}
	if cfg.SinkEnabled(config.SinkSQLite) {
		store, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, closers, err
		}
		sinks = append(sinks, pipeline.NamedLoader{Name: config.SinkSQLite, Loader: store})
		closers = append(closers, store)
		logger.Info("sqlite sink enabled", "path", cfg.SQLitePath)
	}
	return sinks, closers, nil
}

func closeAll(closers []closer, logger *slog.Logger) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("sink close error", "error", err)
		}
	}
}
