package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/sales-api/models"
)

// Producer publishes sale lifecycle events to the shared events topic.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

func (p *Producer) Publish(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type),
		Value: data,
	})
	if err != nil {
		p.logger.Error("failed to publish event",
			zap.String("type", event.Type), zap.Error(err))
		return err
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
