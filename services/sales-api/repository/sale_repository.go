package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KallebyX/terman-os-sub000/services/sales-api/models"
)

var (
	ErrNotFound     = errors.New("sale not found")
	ErrDuplicateKey = errors.New("idempotency key already used")
)

type SaleRepository interface {
	Create(ctx context.Context, sale *models.SaleRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SaleRecord, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.SaleRecord, error)
	SettlePending(ctx context.Context, id uuid.UUID, status string) (bool, error)
	List(ctx context.Context, filter models.SaleFilter) ([]models.SaleRecord, int64, error)
}

type saleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepository{db: db}
}

func (r *saleRepository) Create(ctx context.Context, sale *models.SaleRecord) error {
	err := r.db.WithContext(ctx).Create(sale).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

func (r *saleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SaleRecord, error) {
	var sale models.SaleRecord
	err := r.db.WithContext(ctx).Preload("Items").First(&sale, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *saleRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.SaleRecord, error) {
	var sale models.SaleRecord
	err := r.db.WithContext(ctx).Preload("Items").First(&sale, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// SettlePending moves a pending sale to a terminal status. The WHERE clause
// makes settlement idempotent: a sale already settled reports false and is
// left untouched.
func (r *saleRepository) SettlePending(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.SaleRecord{}).
		Where("id = ? AND status = ?", id, models.SalePending).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *saleRepository) List(ctx context.Context, filter models.SaleFilter) ([]models.SaleRecord, int64, error) {
	var sales []models.SaleRecord
	var total int64

	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	query := r.db.WithContext(ctx).Model(&models.SaleRecord{})

	if filter.TerminalID != "" {
		query = query.Where("terminal_id = ?", filter.TerminalID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.PageSize
	err := query.Preload("Items").
		Order("created_at DESC").
		Limit(filter.PageSize).
		Offset(offset).
		Find(&sales).Error

	return sales, total, err
}
