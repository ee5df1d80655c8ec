package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/pkg/aws"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/models"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/repository"
)

// EventPublisher pushes sale lifecycle events onto the shared events topic.
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// IdempotencyCache is the fast-path key lookup in front of the database
// unique index. Implemented by database.IdempotencyStore.
type IdempotencyCache interface {
	Lookup(ctx context.Context, idempotencyKey string) string
	Remember(ctx context.Context, idempotencyKey, saleID string)
}

// SaleService owns sale persistence and settlement.
type SaleService struct {
	repo      repository.SaleRepository
	idem      IdempotencyCache
	publisher EventPublisher
	metrics   *aws.MetricsClient
	logger    *zap.Logger
}

func NewSaleService(repo repository.SaleRepository, idem IdempotencyCache,
	publisher EventPublisher, metrics *aws.MetricsClient, logger *zap.Logger) *SaleService {
	return &SaleService{
		repo:      repo,
		idem:      idem,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Submit stores a sale submitted by a terminal. A replayed idempotency key
// returns the original sale instead of creating a duplicate, first through
// the Redis fast path and then through the unique index on the sales table.
func (s *SaleService) Submit(ctx context.Context, req *models.SubmitSaleRequest) (*models.SubmitSaleResponse, error) {
	if saleID := s.idem.Lookup(ctx, req.IdempotencyKey); saleID != "" {
		if id, err := uuid.Parse(saleID); err == nil {
			if sale, err := s.repo.GetByID(ctx, id); err == nil {
				return &models.SubmitSaleResponse{SaleID: sale.ID, Status: sale.Status}, nil
			}
		}
	}

	if sale, err := s.repo.GetByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		s.idem.Remember(ctx, req.IdempotencyKey, sale.ID.String())
		return &models.SubmitSaleResponse{SaleID: sale.ID, Status: sale.Status}, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	status := models.SalePending
	if models.CompletesImmediately(req.PaymentMethod) {
		status = models.SaleCompleted
	}

	sale := &models.SaleRecord{
		ID:             uuid.New(),
		IdempotencyKey: req.IdempotencyKey,
		TerminalID:     req.TerminalID,
		CustomerID:     req.CustomerID,
		PaymentMethod:  req.PaymentMethod,
		Installments:   req.Installments,
		Total:          req.Total,
		Status:         status,
	}
	for _, item := range req.Items {
		sale.Items = append(sale.Items, models.SaleItemRecord{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
		})
	}

	if err := s.repo.Create(ctx, sale); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// Lost the race against a concurrent replay of the same key.
			existing, gerr := s.repo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
			if gerr != nil {
				return nil, gerr
			}
			s.idem.Remember(ctx, req.IdempotencyKey, existing.ID.String())
			return &models.SubmitSaleResponse{SaleID: existing.ID, Status: existing.Status}, nil
		}
		return nil, fmt.Errorf("failed to store sale: %w", err)
	}

	s.idem.Remember(ctx, req.IdempotencyKey, sale.ID.String())
	s.logger.Info("sale recorded",
		zap.String("sale_id", sale.ID.String()),
		zap.String("terminal_id", sale.TerminalID),
		zap.String("status", sale.Status),
		zap.Int64("total", sale.Total))

	if status == models.SaleCompleted {
		s.publishSaleEvent(ctx, models.EventSaleCompleted, sale)
		_ = s.metrics.RecordCount(ctx, aws.MetricSalesCompleted, map[string]string{"Terminal": sale.TerminalID})
	}

	return &models.SubmitSaleResponse{SaleID: sale.ID, Status: sale.Status}, nil
}

// GetSale loads one sale with its items.
func (s *SaleService) GetSale(ctx context.Context, id uuid.UUID) (*models.SaleRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// ListSales pages through sales for back-office queries.
func (s *SaleService) ListSales(ctx context.Context, filter models.SaleFilter) ([]models.SaleRecord, int64, error) {
	return s.repo.List(ctx, filter)
}

// ApplyPaymentResult settles a pending card sale. An approval completes it;
// a decline cancels it. Sales that already settled, or sales this service
// never saw, are skipped.
func (s *SaleService) ApplyPaymentResult(ctx context.Context, event models.PaymentEvent) error {
	saleID, err := uuid.Parse(event.SaleID)
	if err != nil {
		return fmt.Errorf("invalid sale id %q: %w", event.SaleID, err)
	}

	status := models.SaleCancelled
	eventType := models.EventSaleCancelled
	metric := aws.MetricSalesCancelled
	if event.Status == models.PaymentApproved {
		status = models.SaleCompleted
		eventType = models.EventSaleCompleted
		metric = aws.MetricSalesCompleted
	}

	settled, err := s.repo.SettlePending(ctx, saleID, status)
	if err != nil {
		return fmt.Errorf("failed to settle sale %s: %w", saleID, err)
	}
	if !settled {
		s.logger.Warn("payment result for a sale that is not pending",
			zap.String("sale_id", event.SaleID),
			zap.String("payment_status", event.Status))
		return nil
	}

	sale, err := s.repo.GetByID(ctx, saleID)
	if err != nil {
		return err
	}

	s.logger.Info("sale settled",
		zap.String("sale_id", sale.ID.String()),
		zap.String("status", sale.Status),
		zap.String("provider_ref", event.ProviderRef))

	s.publishSaleEvent(ctx, eventType, sale)
	_ = s.metrics.RecordCount(ctx, metric, map[string]string{"Terminal": sale.TerminalID})
	return nil
}

func (s *SaleService) publishSaleEvent(ctx context.Context, eventType string, sale *models.SaleRecord) {
	payload := models.SaleEventPayload{
		SaleID:     sale.ID.String(),
		TerminalID: sale.TerminalID,
		Status:     sale.Status,
		Total:      sale.Total,
		ItemCount:  sale.ItemCount(),
	}

	event, err := models.NewEvent(eventType, payload)
	if err != nil {
		return
	}
	if perr := s.publisher.Publish(ctx, event); perr != nil {
		s.logger.Warn("sale event publish failed",
			zap.String("type", eventType), zap.Error(perr))
	}
}
