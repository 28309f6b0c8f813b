package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

// Sink names accepted in SINKS.
const (
	SinkKafka  = "kafka"
	SinkSQLite = "sqlite"
)

const maxWorkers = 64

// Config holds all service settings, populated from environment variables.
type Config struct {
	ArchiveDir     string
	ArchivePattern string
	Layout         domain.ArchiveLayout
	Workers        int

	Curate      domain.CurateOptions
	RunInterval time.Duration // 0 runs a single batch

	Sinks             []string
	KafkaBrokers      []string
	KafkaStationTopic string
	KafkaCuratedTopic string
	SQLitePath        string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Mapbox reverse geocoding of station coordinates.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s"))
	if err != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	layout, err := LoadLayout(os.Getenv("ARCHIVE_LAYOUT_FILE"))
	if err != nil {
		return nil, fmt.Errorf("ARCHIVE_LAYOUT_FILE: %w", err)
	}

	workers, err := parseInt("WORKERS", "4")
	if err != nil {
		return nil, err
	}
	if workers < 1 || workers > maxWorkers {
		return nil, fmt.Errorf("WORKERS must be between 1 and %d, got %d", maxWorkers, workers)
	}

	curate, err := parseCurateOptions()
	if err != nil {
		return nil, err
	}

	runInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("RUN_INTERVAL", "0s"))
	if err != nil || runInterval < 0 {
		return nil, errors.New("invalid RUN_INTERVAL")
	}

	sinks, err := parseSinks(sharedcfg.EnvOrDefault("SINKS", SinkKafka))
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		ArchiveDir:     sharedcfg.EnvOrDefault("ARCHIVE_DIR", "./data/tide_sensors"),
		ArchivePattern: sharedcfg.EnvOrDefault("ARCHIVE_PATTERN", "*.gz"),
		Layout:         layout,
		Workers:        workers,

		Curate:      curate,
		RunInterval: runInterval,

		Sinks:             sinks,
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaStationTopic: sharedcfg.EnvOrDefault("KAFKA_STATION_TOPIC", "tide-stations"),
		KafkaCuratedTopic: sharedcfg.EnvOrDefault("KAFKA_CURATED_TOPIC", "tide-curated"),
		SQLitePath:        sharedcfg.EnvOrDefault("SQLITE_PATH", "./data/tide.db"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if cfg.ArchiveDir == "" {
		return nil, errors.New("ARCHIVE_DIR is required")
	}
	if cfg.SinkEnabled(SinkKafka) {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaStationTopic == "" {
			return nil, errors.New("KAFKA_STATION_TOPIC is required")
		}
		if cfg.KafkaCuratedTopic == "" {
			return nil, errors.New("KAFKA_CURATED_TOPIC is required")
		}
	}
	if cfg.SinkEnabled(SinkSQLite) && cfg.SQLitePath == "" {
		return nil, errors.New("SQLITE_PATH is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// SinkEnabled reports whether name is listed in SINKS.
func (c *Config) SinkEnabled(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

func parseCurateOptions() (domain.CurateOptions, error) {
	opts := domain.DefaultCurateOptions()

	width, err := domain.ParseBucketWidth(sharedcfg.EnvOrDefault("BUCKET_WIDTH", string(domain.BucketWeek)))
	if err != nil {
		return opts, fmt.Errorf("invalid BUCKET_WIDTH: %w", err)
	}
	opts.Width = width

	weekStart, err := domain.ParseWeekday(sharedcfg.EnvOrDefault("WEEK_START", "monday"))
	if err != nil {
		return opts, fmt.Errorf("invalid WEEK_START: %w", err)
	}
	opts.WeekStart = weekStart

	window, err := parseInt("ROLLING_WINDOW", strconv.Itoa(opts.Window))
	if err != nil {
		return opts, err
	}
	if window < 1 {
		return opts, fmt.Errorf("ROLLING_WINDOW must be at least 1, got %d", window)
	}
	opts.Window = window

	sentinel, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("SENTINEL", "9999"), 64)
	if err != nil {
		return opts, errors.New("invalid SENTINEL")
	}
	opts.Sentinel = sentinel

	return opts, nil
}

func parseSinks(s string) ([]string, error) {
	var sinks []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" || seen[name] {
			continue
		}
		switch name {
		case SinkKafka, SinkSQLite:
		default:
			return nil, fmt.Errorf("unknown sink %q in SINKS (allowed: kafka, sqlite)", name)
		}
		seen[name] = true
		sinks = append(sinks, name)
	}
	if len(sinks) == 0 {
		return nil, errors.New("SINKS must name at least one sink")
	}
	return sinks, nil
}

// LoadLayout starts from the CO-OPS layout and overlays the fields set in the
// YAML file at path, if any.
func LoadLayout(path string) (domain.ArchiveLayout, error) {
	layout := domain.DefaultLayout()
	if path == "" {
		return layout, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return layout, fmt.Errorf("read layout: %w", err)
	}
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return layout, fmt.Errorf("parse layout %s: %w", path, err)
	}
	if err := layout.Validate(); err != nil {
		return layout, fmt.Errorf("invalid layout %s: %w", path, err)
	}
	return layout, nil
}

func parseInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
