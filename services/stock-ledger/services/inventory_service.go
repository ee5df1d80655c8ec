package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/pkg/aws"
	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/models"
	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/repository"
)

// EventPublisher pushes ledger events onto the shared events topic.
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// ConflictError reports the first product a batch hold failed on, with the
// availability observed at failure time.
type ConflictError struct {
	ProductID string
	Available int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available=%d", e.ProductID, e.Available)
}

// InventoryService owns stock counts and the reservation lifecycle.
type InventoryService struct {
	repo           repository.InventoryRepository
	publisher      EventPublisher
	sns            aws.SNSPublisher
	alertTopicArn  string
	metrics        *aws.MetricsClient
	reservationTTL time.Duration
	logger         *zap.Logger
}

func NewInventoryService(repo repository.InventoryRepository, publisher EventPublisher,
	sns aws.SNSPublisher, alertTopicArn string, metrics *aws.MetricsClient,
	reservationTTL time.Duration, logger *zap.Logger) *InventoryService {
	return &InventoryService{
		repo:           repo,
		publisher:      publisher,
		sns:            sns,
		alertTopicArn:  alertTopicArn,
		metrics:        metrics,
		reservationTTL: reservationTTL,
		logger:         logger,
	}
}

// GetStock returns the current inventory for a product.
func (s *InventoryService) GetStock(ctx context.Context, productID string) (*models.Inventory, error) {
	return s.repo.Get(ctx, productID)
}

// SetStock initializes or tops up stock for a product. An existing record
// keeps its reserved count; the incoming quantity is added to availability.
func (s *InventoryService) SetStock(ctx context.Context, req *models.SetStockRequest) (*models.Inventory, error) {
	err := s.repo.AddStock(ctx, req.ProductID, req.Available, req.Threshold)
	if errors.Is(err, repository.ErrNotFound) {
		inv := &models.Inventory{
			ProductID: req.ProductID,
			Available: req.Available,
			Reserved:  0,
			Threshold: req.Threshold,
			UpdatedAt: time.Now().UTC(),
		}
		if err := s.repo.Put(ctx, inv); err != nil {
			return nil, fmt.Errorf("failed to create stock record: %w", err)
		}
		s.emitStockChanged(ctx, req.ProductID)
		return inv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add stock: %w", err)
	}

	inv, err := s.repo.Get(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock topped up",
		zap.String("product_id", req.ProductID),
		zap.Int("added", req.Available),
		zap.Int("available", inv.Available))
	s.emitStockChanged(ctx, req.ProductID)
	return inv, nil
}

// Reserve holds stock for every item of an order as a single batch. Items
// are processed in ascending product order so two concurrent batches
// contend in the same sequence instead of deadlocking each other's
// rollbacks. On the first conflict all acquired holds are rolled back.
func (s *InventoryService) Reserve(ctx context.Context, req *models.ReserveRequest) (*models.Reservation, error) {
	items := make([]models.ReserveItem, len(req.Items))
	copy(items, req.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	acquired := make([]models.ReserveItem, 0, len(items))
	for _, item := range items {
		if err := s.repo.Hold(ctx, item.ProductID, item.Quantity); err != nil {
			s.rollback(ctx, acquired)

			if errors.Is(err, repository.ErrInsufficientStock) || errors.Is(err, repository.ErrNotFound) {
				available := 0
				if inv, gerr := s.repo.Get(ctx, item.ProductID); gerr == nil {
					available = inv.Available
				}
				return nil, &ConflictError{ProductID: item.ProductID, Available: available}
			}
			return nil, fmt.Errorf("failed to hold stock for product=%s: %w", item.ProductID, err)
		}
		acquired = append(acquired, item)
	}

	now := time.Now().UTC()
	res := &models.Reservation{
		ID:        uuid.New().String(),
		OrderID:   req.OrderID,
		Items:     items,
		Status:    models.ReservationHeld,
		CreatedAt: now,
		ExpiresAt: now.Add(s.reservationTTL),
	}
	if err := s.repo.PutReservation(ctx, res); err != nil {
		s.rollback(ctx, acquired)
		return nil, fmt.Errorf("failed to record reservation: %w", err)
	}

	s.logger.Info("stock reserved",
		zap.String("reservation_id", res.ID),
		zap.String("order_id", req.OrderID),
		zap.Int("items", len(items)))
	_ = s.metrics.RecordCount(ctx, aws.MetricInventoryReserved, map[string]string{"Service": "stock-ledger"})

	for _, item := range items {
		s.emitStockChanged(ctx, item.ProductID)
	}
	return res, nil
}

// Commit permanently deducts the held quantities of a reservation. A
// reservation already committed is a no-op; one already released is an
// error because the stock went back on the shelf.
func (s *InventoryService) Commit(ctx context.Context, reservationID string) error {
	res, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	if err := s.repo.SettleReservation(ctx, reservationID, models.ReservationCommitted); err != nil {
		if errors.Is(err, repository.ErrStaleReservation) {
			if res.Status == models.ReservationCommitted {
				return nil
			}
			return fmt.Errorf("reservation %s was already released", reservationID)
		}
		return err
	}

	for _, item := range res.Items {
		if err := s.repo.Deduct(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("failed to deduct held stock",
				zap.String("reservation_id", reservationID),
				zap.String("product_id", item.ProductID), zap.Error(err))
			continue
		}
	}

	s.logger.Info("reservation committed",
		zap.String("reservation_id", reservationID),
		zap.String("order_id", res.OrderID))
	_ = s.metrics.RecordCount(ctx, aws.MetricInventoryCommitted, map[string]string{"Service": "stock-ledger"})

	for _, item := range res.Items {
		s.emitStockChanged(ctx, item.ProductID)
	}
	return nil
}

// Release returns the held quantities of a reservation to the available
// pool. Releasing twice, or releasing an already committed reservation,
// is a no-op so the terminal can retry safely.
func (s *InventoryService) Release(ctx context.Context, reservationID string) error {
	res, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	if err := s.repo.SettleReservation(ctx, reservationID, models.ReservationReleased); err != nil {
		if errors.Is(err, repository.ErrStaleReservation) {
			return nil
		}
		return err
	}

	for _, item := range res.Items {
		if err := s.repo.Unhold(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("failed to release held stock",
				zap.String("reservation_id", reservationID),
				zap.String("product_id", item.ProductID), zap.Error(err))
			continue
		}
	}

	s.logger.Info("reservation released",
		zap.String("reservation_id", reservationID),
		zap.String("order_id", res.OrderID))
	_ = s.metrics.RecordCount(ctx, aws.MetricInventoryReleased, map[string]string{"Service": "stock-ledger"})

	for _, item := range res.Items {
		s.emitStockChanged(ctx, item.ProductID)
	}
	return nil
}

func (s *InventoryService) rollback(ctx context.Context, acquired []models.ReserveItem) {
	for _, item := range acquired {
		if err := s.repo.Unhold(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("rollback failed",
				zap.String("product_id", item.ProductID), zap.Error(err))
		}
	}
}

// emitStockChanged publishes the new availability, plus a low-stock alert
// when the count crossed the threshold. Event delivery is best-effort;
// terminals resync their caches on reconnect.
func (s *InventoryService) emitStockChanged(ctx context.Context, productID string) {
	inv, err := s.repo.Get(ctx, productID)
	if err != nil {
		s.logger.Warn("cannot emit stock event", zap.String("product_id", productID), zap.Error(err))
		return
	}

	payload := models.StockChangedPayload{
		ProductID:    inv.ProductID,
		Available:    inv.Available,
		MinThreshold: inv.Threshold,
	}

	event, err := models.NewEvent(models.EventStockChanged, payload)
	if err == nil {
		if perr := s.publisher.Publish(ctx, event); perr != nil {
			s.logger.Warn("stock.changed publish failed", zap.Error(perr))
		}
	}

	if inv.Available > inv.Threshold {
		return
	}

	alert, err := models.NewEvent(models.EventStockLowAlert, payload)
	if err != nil {
		return
	}
	if perr := s.publisher.Publish(ctx, alert); perr != nil {
		s.logger.Warn("stock.low_alert publish failed", zap.Error(perr))
	}
	_ = s.metrics.RecordCount(ctx, aws.MetricInventoryLow, map[string]string{"ProductID": inv.ProductID})

	if s.sns != nil && s.alertTopicArn != "" {
		if serr := s.sns.Publish(ctx, s.alertTopicArn, alert.Payload); serr != nil {
			s.logger.Warn("low stock SNS notification failed", zap.Error(serr))
		}
	}
}
