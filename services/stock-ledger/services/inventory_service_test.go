package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/models"
	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/repository"
)

type fakeRepo struct {
	mu           sync.Mutex
	inventory    map[string]*models.Inventory
	reservations map[string]*models.Reservation
	holdOrder    []string
	unholds      []string
	deducts      []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		inventory:    make(map[string]*models.Inventory),
		reservations: make(map[string]*models.Reservation),
	}
}

func (r *fakeRepo) seed(productID string, available, threshold int) {
	r.inventory[productID] = &models.Inventory{
		ProductID: productID,
		Available: available,
		Threshold: threshold,
		UpdatedAt: time.Now().UTC(),
	}
}

func (r *fakeRepo) Get(ctx context.Context, productID string) (*models.Inventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.inventory[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *inv
	return &copied, nil
}

func (r *fakeRepo) Put(ctx context.Context, inv *models.Inventory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *inv
	r.inventory[inv.ProductID] = &copied
	return nil
}

func (r *fakeRepo) AddStock(ctx context.Context, productID string, quantity, threshold int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.inventory[productID]
	if !ok {
		return repository.ErrNotFound
	}
	inv.Available += quantity
	inv.Threshold = threshold
	return nil
}

func (r *fakeRepo) Hold(ctx context.Context, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holdOrder = append(r.holdOrder, productID)
	inv, ok := r.inventory[productID]
	if !ok {
		return repository.ErrNotFound
	}
	if inv.Available < quantity {
		return repository.ErrInsufficientStock
	}
	inv.Available -= quantity
	inv.Reserved += quantity
	return nil
}

func (r *fakeRepo) Unhold(ctx context.Context, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unholds = append(r.unholds, productID)
	if inv, ok := r.inventory[productID]; ok {
		inv.Available += quantity
		inv.Reserved -= quantity
	}
	return nil
}

func (r *fakeRepo) Deduct(ctx context.Context, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deducts = append(r.deducts, productID)
	if inv, ok := r.inventory[productID]; ok {
		inv.Reserved -= quantity
	}
	return nil
}

func (r *fakeRepo) PutReservation(ctx context.Context, res *models.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *res
	r.reservations[res.ID] = &copied
	return nil
}

func (r *fakeRepo) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[reservationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *res
	return &copied, nil
}

func (r *fakeRepo) SettleReservation(ctx context.Context, reservationID string, to models.ReservationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[reservationID]
	if !ok {
		return repository.ErrNotFound
	}
	if res.Status != models.ReservationHeld {
		return repository.ErrStaleReservation
	}
	res.Status = to
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *capturePublisher) Publish(ctx context.Context, event models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) byType(eventType string) []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestService() (*InventoryService, *fakeRepo, *capturePublisher) {
	repo := newFakeRepo()
	publisher := &capturePublisher{}
	svc := NewInventoryService(repo, publisher, nil, "", nil, 15*time.Minute, zap.NewNop())
	return svc, repo, publisher
}

func TestSetStock_CreateThenTopUp(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()

	inv, err := svc.SetStock(ctx, &models.SetStockRequest{ProductID: "p1", Available: 10, Threshold: 3})
	assert.NoError(t, err)
	assert.Equal(t, 10, inv.Available)

	inv, err = svc.SetStock(ctx, &models.SetStockRequest{ProductID: "p1", Available: 5, Threshold: 3})
	assert.NoError(t, err)
	assert.Equal(t, 15, inv.Available)
	assert.Equal(t, 0, inv.Reserved)

	assert.Len(t, publisher.byType(models.EventStockChanged), 2)
}

func TestReserve_HoldsInAscendingProductOrder(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.seed("p3", 10, 0)
	repo.seed("p1", 10, 0)
	repo.seed("p2", 10, 0)

	res, err := svc.Reserve(context.Background(), &models.ReserveRequest{
		OrderID: "order-1",
		Items: []models.ReserveItem{
			{ProductID: "p3", Quantity: 1},
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 3},
		},
	})

	assert.NoError(t, err)
	assert.Equal(t, models.ReservationHeld, res.Status)
	assert.Equal(t, []string{"p1", "p2", "p3"}, repo.holdOrder)
}

func TestReserve_ConflictRollsBackAcquiredHolds(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.seed("p1", 10, 0)
	repo.seed("p2", 1, 0)

	_, err := svc.Reserve(context.Background(), &models.ReserveRequest{
		OrderID: "order-1",
		Items: []models.ReserveItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 5},
		},
	})

	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, "p2", conflict.ProductID)
	assert.Equal(t, 1, conflict.Available)

	// The hold on p1 was returned.
	assert.Equal(t, []string{"p1"}, repo.unholds)
	inv, _ := repo.Get(context.Background(), "p1")
	assert.Equal(t, 10, inv.Available)
	assert.Equal(t, 0, inv.Reserved)
}

func TestCommit_DeductsHeldStock(t *testing.T) {
	svc, repo, publisher := newTestService()
	repo.seed("p1", 10, 0)

	res, err := svc.Reserve(context.Background(), &models.ReserveRequest{
		OrderID: "order-1",
		Items:   []models.ReserveItem{{ProductID: "p1", Quantity: 4}},
	})
	assert.NoError(t, err)

	assert.NoError(t, svc.Commit(context.Background(), res.ID))

	inv, _ := repo.Get(context.Background(), "p1")
	assert.Equal(t, 6, inv.Available)
	assert.Equal(t, 0, inv.Reserved)

	// A second commit of the same reservation is a no-op.
	assert.NoError(t, svc.Commit(context.Background(), res.ID))
	assert.Equal(t, []string{"p1"}, repo.deducts)

	assert.NotEmpty(t, publisher.byType(models.EventStockChanged))
}

func TestRelease_ReturnsStockAndIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.seed("p1", 10, 0)

	res, err := svc.Reserve(context.Background(), &models.ReserveRequest{
		OrderID: "order-1",
		Items:   []models.ReserveItem{{ProductID: "p1", Quantity: 4}},
	})
	assert.NoError(t, err)

	assert.NoError(t, svc.Release(context.Background(), res.ID))

	inv, _ := repo.Get(context.Background(), "p1")
	assert.Equal(t, 10, inv.Available)
	assert.Equal(t, 0, inv.Reserved)

	assert.NoError(t, svc.Release(context.Background(), res.ID))
	assert.Equal(t, []string{"p1"}, repo.unholds)
}

func TestCommit_AfterReleaseFails(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.seed("p1", 10, 0)

	res, err := svc.Reserve(context.Background(), &models.ReserveRequest{
		OrderID: "order-1",
		Items:   []models.ReserveItem{{ProductID: "p1", Quantity: 2}},
	})
	assert.NoError(t, err)

	assert.NoError(t, svc.Release(context.Background(), res.ID))
	assert.Error(t, svc.Commit(context.Background(), res.ID))
}

func TestReserve_LowStockAlert(t *testing.T) {
	svc, repo, publisher := newTestService()
	repo.seed("p1", 5, 3)

	_, err := svc.Reserve(context.Background(), &models.ReserveRequest{
		OrderID: "order-1",
		Items:   []models.ReserveItem{{ProductID: "p1", Quantity: 3}},
	})
	assert.NoError(t, err)

	alerts := publisher.byType(models.EventStockLowAlert)
	assert.Len(t, alerts, 1)
}

func TestCommit_UnknownReservation(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.Commit(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
