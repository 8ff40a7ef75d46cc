package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/covid-risk-etl/internal/config"
	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// Message headers set on every feature.
const (
	HeaderRunID       = "run_id"
	HeaderReportDate  = "report_date"
	HeaderHasData     = "has_data"
	HeaderGeneratedAt = "generated_at"
)

// messageWriter is the subset of *kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes each geometry-joined feature to a Kafka topic.
// It implements pipeline.Loader.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// Load publishes every feature of the report in a single WriteMessages call.
// Messages are keyed by identifier so one locality always lands on the same
// partition.
func (w *Writer) Load(ctx context.Context, report domain.Report) error {
	if report.Features == nil || len(report.Features.Features) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, len(report.Features.Features))
	for _, f := range report.Features.Features {
		msg, err := serializeToMessage(f, report)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish features: %w", err)
	}
	w.logger.Info("features published", "messages", len(msgs))
	return nil
}

// Close flushes and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a feature into a Kafka message.
func serializeToMessage(f *geojson.Feature, report domain.Report) (kafkago.Message, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize feature: %w", err)
	}

	id, _ := f.Properties[domain.PropIdentifier].(string)
	hasData, _ := f.Properties[domain.PropHasData].(bool)
	reportDate, _ := f.Properties[domain.PropReportDate].(string)

	return kafkago.Message{
		Key:   []byte(id),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderRunID, Value: []byte(report.RunID)},
			{Key: HeaderReportDate, Value: []byte(reportDate)},
			{Key: HeaderHasData, Value: []byte(strconv.FormatBool(hasData))},
			{Key: HeaderGeneratedAt, Value: []byte(report.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
