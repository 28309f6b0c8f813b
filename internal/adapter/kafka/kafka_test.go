package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

var generatedAt = time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func ptr(v float64) *float64 { return &v }

func testResult(t *testing.T) domain.Result {
	t.Helper()
	b := domain.NewRegistryBuilder(domain.DefaultLayout())
	for _, id := range []string{"9410170", "1612480"} {
		_, err := b.Add(domain.StationMetadata{
			{Key: "NOS ID", Value: id},
			{Key: "Location Name", Value: "station " + id},
			{Key: "Latitude", Value: "21.4"},
			{Key: "Longitude", Value: "-157.8"},
			{Key: "Horizontal Datum", Value: "WGS-84"},
			{Key: "Operator", Value: "NOAA/NOS/CO-OPS"},
		})
		require.NoError(t, err)
	}

	week := time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)
	return domain.Result{
		Registry: b.Registry(),
		Stations: []domain.StationSeries{{
			StationID: "9410170",
			Rows: []domain.SmoothedRow{
				{CuratedBucket: domain.CuratedBucket{StationID: "9410170", Start: week, Min: 0.5, Mean: 1, Max: 1.5, Count: 240}},
				{
					CuratedBucket: domain.CuratedBucket{StationID: "9410170", Start: week.AddDate(0, 0, 7), Min: 0.6, Mean: 1.1, Max: 1.6, Count: 238},
					RollingMin:    ptr(0.55), RollingMean: ptr(1.05), RollingMax: ptr(1.55),
				},
			},
		}},
		Options:     domain.CurateOptions{Sentinel: 9999, Width: domain.BucketWeek, WeekStart: time.Monday, Window: 2},
		GeneratedAt: generatedAt,
		Buckets:     2,
	}
}

func TestWriter_Load(t *testing.T) {
	fw := &fakeWriter{}
	w := newWriter(fw, "tide-stations", "tide-curated", slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, w.Load(context.Background(), testResult(t)))
	require.Len(t, fw.msgs, 4)

	topics := make([]string, len(fw.msgs))
	keys := make([]string, len(fw.msgs))
	for i, m := range fw.msgs {
		topics[i] = m.Topic
		keys[i] = string(m.Key)
	}
	assert.Equal(t, []string{"tide-stations", "tide-stations", "tide-curated", "tide-curated"}, topics)
	assert.Equal(t, []string{"9410170", "1612480", "9410170", "9410170"}, keys)

	var row map[string]any
	require.NoError(t, json.Unmarshal(fw.msgs[3].Value, &row))
	assert.Equal(t, "9410170", row["station_id"])
	assert.Equal(t, "2020-01-13T00:00:00Z", row["bucket_start"])
	assert.InDelta(t, 1.05, row["rolling_mean"], 1e-9)
	assert.Equal(t, "week", row["bucket_width"])
	assert.InDelta(t, 2.0, row["rolling_window"], 0)

	var first map[string]any
	require.NoError(t, json.Unmarshal(fw.msgs[2].Value, &first))
	assert.Contains(t, first, "rolling_mean")
	assert.Nil(t, first["rolling_mean"], "undefined rolling values are published as null")

	require.NoError(t, w.Close())
	assert.True(t, fw.closed)
}

func TestWriter_LoadError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("leader not available")}
	w := newWriter(fw, "s", "c", slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := w.Load(context.Background(), testResult(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish 4 messages")
}

func TestWriter_LoadEmpty(t *testing.T) {
	fw := &fakeWriter{err: errors.New("must not be called")}
	w := newWriter(fw, "s", "c", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, w.Load(context.Background(), domain.Result{}))
}

func TestSerializeStation(t *testing.T) {
	st := domain.Station{
		ID:        "9410170",
		Name:      "SAN DIEGO, SAN DIEGO BAY",
		Geo:       domain.Geo{Lat: 32.71419, Lon: -117.17358},
		PlaceName: "San Diego",
		GeoSource: "reverse",
	}

	msg, err := serializeStation(st, generatedAt)
	require.NoError(t, err)

	assert.Equal(t, []byte("9410170"), msg.Key)
	assert.Contains(t, string(msg.Value), `"place_name":"San Diego"`)
	assert.Contains(t, string(msg.Value), `"geo":{"lat":32.71419,"lon":-117.17358}`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "station_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("9410170"), msg.Headers[0].Value)
	assert.Equal(t, "generated_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(generatedAt.Format(time.RFC3339)), msg.Headers[1].Value)
}
