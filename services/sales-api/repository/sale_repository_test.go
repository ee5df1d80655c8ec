package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/KallebyX/terman-os-sub000/services/sales-api/models"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/repository"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	assert.NoError(t, err)
	return gormDB, mock
}

func TestCreate_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewSaleRepository(gormDB)

	sale := &models.SaleRecord{
		ID:             uuid.New(),
		IdempotencyKey: "key-1",
		TerminalID:     "terminal-1",
		PaymentMethod:  models.PaymentCash,
		Total:          2000,
		Status:         models.SaleCompleted,
		Items: []models.SaleItemRecord{
			{ProductID: "p1", Quantity: 2, UnitPrice: 1000},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "sale_records"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(sale.ID))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "sale_item_records"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), sale)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewSaleRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sale_records"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))

	sale, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, sale)
}

func TestGetByIdempotencyKey_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewSaleRepository(gormDB)

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "idempotency_key", "terminal_id", "payment_method", "total", "status", "created_at", "updated_at"}).
		AddRow(id, "key-9", "terminal-2", models.PaymentPix, int64(990), models.SaleCompleted, now, now)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sale_records"`)).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sale_item_records"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sale_id", "product_id", "quantity", "unit_price", "discount"}).
			AddRow(1, id, "p1", 1, int64(990), int64(0)))

	sale, err := repo.GetByIdempotencyKey(context.Background(), "key-9")
	assert.NoError(t, err)
	assert.Equal(t, id, sale.ID)
	assert.Len(t, sale.Items, 1)
}

func TestSettlePending_UpdatesPendingSale(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewSaleRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "sale_records"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	settled, err := repo.SettlePending(context.Background(), uuid.New(), models.SaleCompleted)
	assert.NoError(t, err)
	assert.True(t, settled)
}

func TestSettlePending_AlreadySettled(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewSaleRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "sale_records"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	settled, err := repo.SettlePending(context.Background(), uuid.New(), models.SaleCancelled)
	assert.NoError(t, err)
	assert.False(t, settled)
}
