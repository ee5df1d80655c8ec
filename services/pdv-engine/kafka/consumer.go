package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/events"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Consumer reads event envelopes from the bus and dispatches them to the
// local broadcaster. Stock events refresh the terminal's snapshot cache;
// sale events from other terminals only feed dashboards.
//
// When the connection drops the consumer reconnects with exponential backoff
// and triggers a stock resync, since events missed while disconnected leave
// the cache stale.
type Consumer struct {
	brokers     []string
	topic       string
	groupID     string
	terminalID  string
	broadcaster *events.Broadcaster
	onReconnect func(ctx context.Context)
	onOwnSale   func(payload models.SaleEventPayload)
	logger      *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID, terminalID string, broadcaster *events.Broadcaster, onReconnect func(ctx context.Context), onOwnSale func(models.SaleEventPayload), logger *zap.Logger) *Consumer {
	return &Consumer{
		brokers:     brokers,
		topic:       topic,
		groupID:     groupID,
		terminalID:  terminalID,
		broadcaster: broadcaster,
		onReconnect: onReconnect,
		onOwnSale:   onOwnSale,
		logger:      logger,
	}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	backoff := reconnectBaseDelay
	first := true

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

		if !first && c.onReconnect != nil {
			c.onReconnect(ctx)
		}
		first = false

		c.logger.Info("event consumer listening",
			zap.String("topic", c.topic), zap.String("group", c.groupID))

		if err := c.consume(ctx, reader); err != nil && ctx.Err() == nil {
			c.logger.Warn("event consumer disconnected, reconnecting",
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

func (c *Consumer) consume(ctx context.Context, reader *kafkago.Reader) error {
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		var event models.Event
		if err := json.Unmarshal(m.Value, &event); err != nil {
			c.logger.Warn("invalid event envelope",
				zap.Error(err), zap.String("payload", string(m.Value)))
			continue
		}

		c.handle(event)
	}
}

func (c *Consumer) handle(event models.Event) {
	switch event.Type {
	case models.EventSaleCreated, models.EventSaleCompleted, models.EventSaleCancelled:
		var payload models.SaleEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			c.logger.Warn("invalid sale event payload", zap.Error(err))
			return
		}
		if payload.TerminalID == c.terminalID {
			// sale.created was already seen locally at publish time; status
			// updates for this terminal's pending sales are applied to the
			// coordinator and still shown on local dashboards.
			if event.Type == models.EventSaleCreated {
				return
			}
			if c.onOwnSale != nil {
				c.onOwnSale(payload)
			}
		}
		c.broadcaster.DispatchLocal(event)

	case models.EventStockChanged, models.EventStockLowAlert:
		c.broadcaster.DispatchLocal(event)

	default:
		c.logger.Debug("ignoring event type", zap.String("type", string(event.Type)))
	}
}
