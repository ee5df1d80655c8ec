package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/sales-api/models"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// PaymentHandler applies a settled payment to the matching sale.
type PaymentHandler interface {
	ApplyPaymentResult(ctx context.Context, event models.PaymentEvent) error
}

// PaymentConsumer reads payment provider results from the payments topic.
// On connection loss it reconnects with exponential backoff; unprocessed
// messages are redelivered through the consumer group offset.
type PaymentConsumer struct {
	brokers []string
	topic   string
	groupID string
	handler PaymentHandler
	logger  *zap.Logger
}

func NewPaymentConsumer(brokers []string, topic, groupID string, handler PaymentHandler, logger *zap.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		brokers: brokers,
		topic:   topic,
		groupID: groupID,
		handler: handler,
		logger:  logger,
	}
}

// Start consumes until ctx is cancelled.
func (c *PaymentConsumer) Start(ctx context.Context) {
	backoff := reconnectBaseDelay

	for {
		if ctx.Err() != nil {
			return
		}

		reader := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  c.brokers,
			Topic:    c.topic,
			GroupID:  c.groupID,
			MinBytes: 1e3,
			MaxBytes: 10e6,
		})

		c.logger.Info("payment consumer listening",
			zap.String("topic", c.topic), zap.String("group", c.groupID))

		if err := c.consume(ctx, reader); err != nil && ctx.Err() == nil {
			c.logger.Warn("payment consumer disconnected, reconnecting",
				zap.Duration("backoff", backoff), zap.Error(err))
			reader.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMaxDelay {
				backoff = reconnectMaxDelay
			}
			continue
		}

		reader.Close()
		return
	}
}

func (c *PaymentConsumer) consume(ctx context.Context, reader *kafkago.Reader) error {
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		var event models.PaymentEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			c.logger.Warn("invalid payment event",
				zap.Error(err), zap.String("payload", string(m.Value)))
			continue
		}

		if err := c.handler.ApplyPaymentResult(ctx, event); err != nil {
			c.logger.Error("failed to apply payment result",
				zap.String("sale_id", event.SaleID), zap.Error(err))
		}
	}
}
