package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/tide-data-etl/internal/config"
	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes curated results to Kafka: one message per station to the
// station topic and one per curated bucket to the curated topic.
// It implements pipeline.Loader.
type Writer struct {
	writer       messageWriter
	stationTopic string
	curatedTopic string
	logger       *slog.Logger
}

// NewWriter creates a Kafka producer for the configured station and curated topics.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newWriter(w, cfg.KafkaStationTopic, cfg.KafkaCuratedTopic, logger)
}

func newWriter(w messageWriter, stationTopic, curatedTopic string, logger *slog.Logger) *Writer {
	return &Writer{
		writer:       w,
		stationTopic: stationTopic,
		curatedTopic: curatedTopic,
		logger:       logger,
	}
}

// Load serializes the registry and every curated row and publishes them in a
// single WriteMessages call. Messages are keyed by station id so each
// station's rows stay ordered within a partition.
func (w *Writer) Load(ctx context.Context, result domain.Result) error {
	msgs, err := w.messages(result)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d messages: %w", len(msgs), err)
	}
	w.logger.Debug("published batch to kafka",
		"station_topic", w.stationTopic,
		"curated_topic", w.curatedTopic,
		"messages", len(msgs),
	)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func (w *Writer) messages(result domain.Result) ([]kafkago.Message, error) {
	stations := result.Registry.Stations()
	msgs := make([]kafkago.Message, 0, len(stations)+result.Buckets)

	for _, st := range stations {
		msg, err := serializeStation(st, result.GeneratedAt)
		if err != nil {
			return nil, err
		}
		msg.Topic = w.stationTopic
		msgs = append(msgs, msg)
	}
	for _, s := range result.Stations {
		for _, row := range s.Rows {
			msg, err := serializeRow(row, result.Options, result.GeneratedAt)
			if err != nil {
				return nil, err
			}
			msg.Topic = w.curatedTopic
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

// StationMessage is the JSON value published to the station topic.
type StationMessage struct {
	domain.Station
	GeneratedAt time.Time `json:"generated_at"`
}

// CuratedMessage is the JSON value published to the curated topic.
type CuratedMessage struct {
	domain.SmoothedRow
	BucketWidth   domain.BucketWidth `json:"bucket_width"`
	RollingWindow int                `json:"rolling_window"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

func serializeStation(st domain.Station, generatedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(StationMessage{Station: st, GeneratedAt: generatedAt})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize station %s: %w", st.ID, err)
	}
	return kafkago.Message{
		Key:     []byte(st.ID),
		Value:   data,
		Headers: headers(st.ID, generatedAt),
	}, nil
}

func serializeRow(row domain.SmoothedRow, opts domain.CurateOptions, generatedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(CuratedMessage{
		SmoothedRow:   row,
		BucketWidth:   opts.Width,
		RollingWindow: opts.Window,
		GeneratedAt:   generatedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize curated row %s@%s: %w", row.StationID, row.Start.Format(time.DateOnly), err)
	}
	return kafkago.Message{
		Key:     []byte(row.StationID),
		Value:   data,
		Headers: headers(row.StationID, generatedAt),
	}, nil
}

func headers(stationID string, generatedAt time.Time) []kafkago.Header {
	return []kafkago.Header{
		{Key: "station_id", Value: []byte(stationID)},
		{Key: "generated_at", Value: []byte(generatedAt.Format(time.RFC3339))},
	}
}
