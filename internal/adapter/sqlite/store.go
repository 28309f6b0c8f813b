// Package sqlite stores curated batches in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

//go:embed sql/schema.sql
var schemaSQL string

//go:embed sql/upsert-station.sql
var upsertStationSQL string

//go:embed sql/get-station-ids.sql
var getStationIDsSQL string

//go:embed sql/delete-station.sql
var deleteStationSQL string

//go:embed sql/delete-curated.sql
var deleteCuratedSQL string

//go:embed sql/insert-curated.sql
var insertCuratedSQL string

//go:embed sql/insert-batch.sql
var insertBatchSQL string

//go:embed sql/get-stations.sql
var getStationsSQL string

//go:embed sql/get-curated.sql
var getCuratedSQL string

//go:embed sql/get-batch-count.sql
var getBatchCountSQL string

const timeLayout = time.RFC3339

// Store persists curated results to a SQLite database.
// It implements pipeline.Loader.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
// ":memory:" opens a private in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// One writer at a time; an in-memory database also only exists on its
	// own connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func buildDSN(path string) (string, error) {
	params := "_foreign_keys=on&_busy_timeout=5000"
	if path == ":memory:" {
		return "file::memory:?" + params, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	params += "&_journal_mode=WAL"
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + params, nil
	}
	return fmt.Sprintf("file:%s?%s", path, params), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load writes a result in one transaction. The stored registry is replaced by
// the result's: stations no longer present are removed with all their rows,
// the rest are upserted. Every registered station's curated rows for the
// result's bucket width are replaced, so a station without rows in this batch
// ends up with none. A batch record is appended.
func (s *Store) Load(ctx context.Context, result domain.Result) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("rollback sqlite batch", "error", rbErr)
			}
		}
	}()

	if err := s.pruneStations(ctx, tx, result.Registry); err != nil {
		return err
	}

	generatedAt := result.GeneratedAt.UTC().Format(timeLayout)
	for i, st := range result.Registry.Stations() {
		meta, err := json.Marshal(st.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for station %s: %w", st.ID, err)
		}
		if _, err := tx.ExecContext(ctx, upsertStationSQL,
			st.ID, i, st.Name, st.Geo.Lat, st.Geo.Lon,
			nullString(st.PlaceName), nullString(st.FormattedAddress), nullString(st.GeoSource),
			string(meta), generatedAt,
		); err != nil {
			return fmt.Errorf("upsert station %s: %w", st.ID, err)
		}
	}

	width := string(result.Options.Width)
	for _, st := range result.Registry.Stations() {
		if _, err := tx.ExecContext(ctx, deleteCuratedSQL, st.ID, width); err != nil {
			return fmt.Errorf("clear curated rows for station %s: %w", st.ID, err)
		}
	}
	for _, series := range result.Stations {
		for _, row := range series.Rows {
			if _, err := tx.ExecContext(ctx, insertCuratedSQL,
				row.StationID, width, row.Start.UTC().Format(timeLayout),
				row.Min, row.Mean, row.Max, row.Count,
				row.RollingMin, row.RollingMean, row.RollingMax,
			); err != nil {
				return fmt.Errorf("insert curated row %s@%s: %w", row.StationID, row.Start.Format(time.DateOnly), err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, insertBatchSQL,
		generatedAt, result.Files, result.Observations, result.SentinelDropped,
		result.Buckets, width, result.Options.Window,
	); err != nil {
		return fmt.Errorf("insert batch record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("stored batch in sqlite", "stations", result.Registry.Len(), "buckets", result.Buckets)
	return nil
}

// pruneStations deletes stored stations that registry no longer lists. Their
// curated rows go with them through the foreign key cascade.
func (s *Store) pruneStations(ctx context.Context, tx *sql.Tx, registry *domain.SensorRegistry) error {
	rows, err := tx.QueryContext(ctx, getStationIDsSQL)
	if err != nil {
		return fmt.Errorf("list stored stations: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return fmt.Errorf("list stored stations: %w", err)
		}
		if !registry.Has(id) {
			stale = append(stale, id)
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("list stored stations: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list stored stations: %w", err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, deleteStationSQL, id); err != nil {
			return fmt.Errorf("remove station %s: %w", id, err)
		}
		s.logger.Debug("removed station no longer in registry", "station_id", id)
	}
	return nil
}

// Stations returns the stored registry in the order of the last batch.
func (s *Store) Stations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.db.QueryContext(ctx, getStationsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("close stations rows", "error", err)
		}
	}()

	var out []domain.Station
	for rows.Next() {
		var (
			st                     domain.Station
			place, address, source sql.NullString
			meta                   string
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.Geo.Lat, &st.Geo.Lon, &place, &address, &source, &meta); err != nil {
			return nil, err
		}
		st.PlaceName, st.FormattedAddress, st.GeoSource = place.String, address.String, source.String
		if err := json.Unmarshal([]byte(meta), &st.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for station %s: %w", st.ID, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Curated returns the stored rows of one station at one bucket width, ascending.
func (s *Store) Curated(ctx context.Context, stationID string, width domain.BucketWidth) ([]domain.SmoothedRow, error) {
	rows, err := s.db.QueryContext(ctx, getCuratedSQL, stationID, string(width))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("close curated rows", "error", err)
		}
	}()

	var out []domain.SmoothedRow
	for rows.Next() {
		var (
			row               domain.SmoothedRow
			start             string
			rMin, rMean, rMax sql.NullFloat64
		)
		if err := rows.Scan(&row.StationID, &start, &row.Min, &row.Mean, &row.Max, &row.Count, &rMin, &rMean, &rMax); err != nil {
			return nil, err
		}
		if row.Start, err = time.Parse(timeLayout, start); err != nil {
			return nil, fmt.Errorf("parse bucket_start %q: %w", start, err)
		}
		row.RollingMin, row.RollingMean, row.RollingMax = floatPtr(rMin), floatPtr(rMean), floatPtr(rMax)
		out = append(out, row)
	}
	return out, rows.Err()
}

// BatchCount returns the number of batches recorded.
func (s *Store) BatchCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, getBatchCountSQL).Scan(&n)
	return n, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
