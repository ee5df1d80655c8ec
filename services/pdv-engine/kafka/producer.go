package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
)

// Producer writes event envelopes to the shared events topic. It implements
// the broadcaster's Outbound interface.
type Producer struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	logger.Info("event producer initialized",
		zap.String("topic", topic), zap.Strings("brokers", brokers))
	return &Producer{writer: w, topic: topic, logger: logger}
}

// Publish writes one envelope, keyed by event type so consumers see each
// type in order.
func (p *Producer) Publish(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(event.Type),
		Value: data,
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	p.logger.Info("closing event producer", zap.String("topic", p.topic))
	return p.writer.Close()
}
