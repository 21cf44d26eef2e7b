package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/grid-delta-etl/internal/config"
	"github.com/couchcryptid/grid-delta-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher produces frame notifications to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured notification topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish sends one notification. Messages for the same frame name land on the
// same partition.
func (p *Publisher) Publish(ctx context.Context, event domain.FrameWritten) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Name, err)
	}
	p.logger.Debug("frame notification published", "name", event.Name, "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a FrameWritten event into a Kafka message.
func serializeToMessage(event domain.FrameWritten) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize frame event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Name),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(event.Kind)},
			{Key: "valid_time", Value: []byte(event.ValidTime.UTC().Format(time.RFC3339))},
		},
	}, nil
}
