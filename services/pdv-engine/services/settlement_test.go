package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/events"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
)

type fakeLedger struct {
	mu         sync.Mutex
	snaps      map[string]models.StockSnapshot
	getErr     error
	reserveErr error
	reserves   int
	committed  []string
	released   []string
	onReserve  func()
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{snaps: make(map[string]models.StockSnapshot)}
}

func (l *fakeLedger) GetStock(ctx context.Context, productID string) (*models.StockSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.getErr != nil {
		return nil, l.getErr
	}
	snap, ok := l.snaps[productID]
	if !ok {
		return nil, fmt.Errorf("no inventory record for product %s", productID)
	}
	return &snap, nil
}

func (l *fakeLedger) Reserve(ctx context.Context, orderID string, items []ReserveItem) (string, error) {
	l.mu.Lock()
	l.reserves++
	err := l.reserveErr
	hook := l.onReserve
	l.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return "", err
	}
	return "res-1", nil
}

func (l *fakeLedger) Commit(ctx context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.committed = append(l.committed, reservationID)
	return nil
}

func (l *fakeLedger) Release(ctx context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, reservationID)
	return nil
}

type fakeSubmitter struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	keys     []string
	onSubmit func()
}

func (s *fakeSubmitter) Submit(ctx context.Context, req models.SubmitOrderRequest) (*models.SubmitOrderResponse, error) {
	s.mu.Lock()
	s.calls++
	s.keys = append(s.keys, req.IdempotencyKey)
	var err error
	if len(s.errs) > 0 {
		err = s.errs[0]
		s.errs = s.errs[1:]
	}
	hook := s.onSubmit
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &models.SubmitOrderResponse{SaleID: uuid.New(), Status: models.SaleCompleted}, nil
}

type testRig struct {
	coordinator *Coordinator
	ledger      *fakeLedger
	submitter   *fakeSubmitter
	broadcaster *events.Broadcaster
}

func newTestRig(requireCustomer bool) *testRig {
	broadcaster := events.NewBroadcaster(nil, zap.NewNop())
	stock := NewStockCache(zap.NewNop())
	cart := NewCartStore(stock, broadcaster, zap.NewNop())
	ledger := newFakeLedger()
	submitter := &fakeSubmitter{}

	c := NewCoordinator(cart, ledger, submitter, broadcaster,
		ConfigCustomerPolicy{Required: requireCustomer}, stock, "terminal-1", zap.NewNop())
	c.retryBackoff = time.Millisecond

	return &testRig{coordinator: c, ledger: ledger, submitter: submitter, broadcaster: broadcaster}
}

func (r *testRig) stockAvailable(productID string, available int) {
	r.ledger.mu.Lock()
	r.ledger.snaps[productID] = models.StockSnapshot{ProductID: productID, Available: available}
	r.ledger.mu.Unlock()
}

func cashPayment(received int64) models.PaymentSpec {
	return models.PaymentSpec{Method: models.PaymentCash, ReceivedAmount: received}
}

func TestFinalize_NoSaleInProgress(t *testing.T) {
	rig := newTestRig(false)

	_, err := rig.coordinator.Finalize(context.Background(), cashPayment(1000))

	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, StateEmpty, rig.coordinator.State())
}

func TestFinalize_EmptyCart(t *testing.T) {
	rig := newTestRig(false)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)
	rig.coordinator.RemoveItem("p1")

	_, err := rig.coordinator.Finalize(context.Background(), cashPayment(1000))

	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestFinalize_CustomerRequired(t *testing.T) {
	rig := newTestRig(true)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)

	_, err := rig.coordinator.Finalize(context.Background(), cashPayment(1000))
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	rig.stockAvailable("p1", 10)
	rig.coordinator.SetCustomer("customer-9")
	sale, err := rig.coordinator.Finalize(context.Background(), cashPayment(1000))
	assert.NoError(t, err)
	assert.Equal(t, "customer-9", sale.CustomerID)
}

func TestFinalize_PaymentErrorKeepsBuilding(t *testing.T) {
	rig := newTestRig(false)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)

	_, err := rig.coordinator.Finalize(context.Background(), cashPayment(500))

	var perr *models.PaymentError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, StateBuilding, rig.coordinator.State())
	assert.Equal(t, 0, rig.ledger.reserves)
}

func TestFinalize_InsufficientStock(t *testing.T) {
	rig := newTestRig(false)
	rig.stockAvailable("p1", 1)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 2)

	_, err := rig.coordinator.Finalize(context.Background(), cashPayment(5000))

	var failure *models.Failure
	assert.ErrorAs(t, err, &failure)
	assert.Equal(t, models.FailureInsufficientStock, failure.Code)
	assert.Equal(t, "p1", failure.ProductID)
	assert.Equal(t, 1, failure.Available)

	// No reservation was attempted and the cart survives for correction.
	assert.Equal(t, 0, rig.ledger.reserves)
	assert.Equal(t, StateFailed, rig.coordinator.State())
	assert.Len(t, rig.coordinator.Cart().Items, 1)
}

func TestFinalize_RetryAfterFailure(t *testing.T) {
	rig := newTestRig(false)
	rig.stockAvailable("p1", 1)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 2)

	_, err := rig.coordinator.Finalize(context.Background(), cashPayment(5000))
	assert.Error(t, err)

	// Cashier lowers the quantity and retries from Failed.
	rig.coordinator.UpdateQuantity("p1", 1)
	sale, err := rig.coordinator.Finalize(context.Background(), cashPayment(5000))
	assert.NoError(t, err)
	assert.Equal(t, models.SaleCompleted, sale.Status)
	assert.Nil(t, rig.coordinator.LastFailure())
}

func TestFinalize_ReservationConflict(t *testing.T) {
	rig := newTestRig(false)
	rig.stockAvailable("p1", 5)
	rig.ledger.reserveErr = &ConflictError{ProductID: "p1", Available: 0}
	rig.coordinator.AddItem("p1", "Coffee", 1000, 2)

	_, err := rig.coordinator.Finalize(context.Background(), cashPayment(5000))

	var failure *models.Failure
	assert.ErrorAs(t, err, &failure)
	assert.Equal(t, models.FailureReservationConflict, failure.Code)
	assert.Equal(t, "p1", failure.ProductID)
	assert.Equal(t, StateFailed, rig.coordinator.State())
}

func TestFinalize_CashSuccess(t *testing.T) {
	rig := newTestRig(false)
	rig.stockAvailable("p1", 10)
	rig.stockAvailable("p2", 10)
	rig.coordinator.AddItem("p2", "Tea", 500, 1)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 2)

	var created []models.Event
	rig.broadcaster.Subscribe(models.EventSaleCreated, func(event models.Event) {
		created = append(created, event)
	})

	sale, err := rig.coordinator.Finalize(context.Background(), cashPayment(3000))

	assert.NoError(t, err)
	assert.Equal(t, models.SaleCompleted, sale.Status)
	assert.Equal(t, int64(2500), sale.Totals.Total)
	assert.Equal(t, int64(500), sale.Totals.Change)
	assert.NotEmpty(t, sale.IdempotencyKey)
	assert.Equal(t, StateCompleted, rig.coordinator.State())
	assert.True(t, rig.coordinator.Cart().IsEmpty())
	assert.Equal(t, []string{"res-1"}, rig.ledger.committed)
	assert.Len(t, created, 1)
}

func TestFinalize_CardSalePendingUntilGateway(t *testing.T) {
	rig := newTestRig(false)
	rig.stockAvailable("p1", 10)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)

	sale, err := rig.coordinator.Finalize(context.Background(), models.PaymentSpec{
		Method:       models.PaymentCreditCard,
		Installments: 2,
	})

	assert.NoError(t, err)
	assert.Equal(t, models.SalePending, sale.Status)

	rig.coordinator.ApplySaleStatus(sale.ID.String(), models.SaleCompleted)
	assert.Equal(t, models.SaleCompleted, sale.Status)

	// Unknown sale ids are ignored.
	rig.coordinator.ApplySaleStatus(uuid.New().String(), models.SaleCancelled)
}

func TestApplySaleStatus_ConcurrentWithStateReads(t *testing.T) {
	rig := newTestRig(false)
	rig.stockAvailable("p1", 10)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)
	sale, err := rig.coordinator.Finalize(context.Background(), models.PaymentSpec{
		Method:       models.PaymentCreditCard,
		Installments: 1,
	})
	assert.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if s := rig.coordinator.LastSale(); s != nil {
				_ = s.Status
			}
		}
	}()
	go func() {
		defer wg.Done()
		rig.coordinator.ApplySaleStatus(sale.ID.String(), models.SaleCompleted)
	}()
	wg.Wait()

	assert.Equal(t, models.SaleCompleted, rig.coordinator.LastSale().Status)
}

func TestFinalize_TransientErrorsRetried(t *testing.T) {
	rig := newTestRig(false)
	rig.stockAvailable("p1", 10)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)
	rig.submitter.errs = []error{
		&TransientError{Op: "order submission", Err: fmt.Errorf("timeout")},
		&TransientError{Op: "order submission", Err: fmt.Errorf("timeout")},
		nil,
	}

	sale, err := rig.coordinator.Finalize(context.Background(), cashPayment(1000))

	assert.NoError(t, err)
	assert.Equal(t, 3, rig.submitter.calls)
	// Every attempt reuses the same idempotency key.
	assert.Equal(t, rig.submitter.keys[0], rig.submitter.keys[1])
	assert.Equal(t, rig.submitter.keys[1], rig.submitter.keys[2])
	assert.Equal(t, models.SaleCompleted, sale.Status)
}

func TestFinalize_RetryExhaustionReleasesReservation(t *testing.T) {
	rig := newTestRig(false)
	rig.stockAvailable("p1", 10)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)
	rig.submitter.errs = []error{
		&TransientError{Op: "order submission", Err: fmt.Errorf("timeout")},
		&TransientError{Op: "order submission", Err: fmt.Errorf("timeout")},
		&TransientError{Op: "order submission", Err: fmt.Errorf("timeout")},
	}

	_, err := rig.coordinator.Finalize(context.Background(), cashPayment(1000))

	var failure *models.Failure
	assert.ErrorAs(t, err, &failure)
	assert.Equal(t, models.FailureSubmissionTimeout, failure.Code)
	assert.Equal(t, 3, rig.submitter.calls)
	assert.Equal(t, []string{"res-1"}, rig.ledger.released)
	assert.Empty(t, rig.ledger.committed)
	assert.Len(t, rig.coordinator.Cart().Items, 1)
}

func TestFinalize_PermanentRejectionNotRetried(t *testing.T) {
	rig := newTestRig(false)
	rig.stockAvailable("p1", 10)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)
	rig.submitter.errs = []error{
		fmt.Errorf("order submission rejected: duplicate order"),
		nil,
	}

	_, err := rig.coordinator.Finalize(context.Background(), cashPayment(1000))

	var failure *models.Failure
	assert.ErrorAs(t, err, &failure)
	assert.Equal(t, models.FailureSubmissionRejected, failure.Code)
	assert.Equal(t, 1, rig.submitter.calls)
	assert.Equal(t, []string{"res-1"}, rig.ledger.released)
}

func TestFinalize_LedgerUnavailable(t *testing.T) {
	rig := newTestRig(false)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)
	rig.ledger.getErr = fmt.Errorf("connection refused")

	_, err := rig.coordinator.Finalize(context.Background(), cashPayment(1000))

	var failure *models.Failure
	assert.ErrorAs(t, err, &failure)
	assert.Equal(t, models.FailureLedgerUnavailable, failure.Code)
}

func TestCancel_WhileBuilding(t *testing.T) {
	rig := newTestRig(false)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)

	var cancelled []models.Event
	rig.broadcaster.Subscribe(models.EventSaleCancelled, func(event models.Event) {
		cancelled = append(cancelled, event)
	})

	err := rig.coordinator.Cancel(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, StateCancelled, rig.coordinator.State())
	assert.True(t, rig.coordinator.Cart().IsEmpty())
	assert.Len(t, cancelled, 1)

	// Nothing left to cancel.
	err = rig.coordinator.Cancel(context.Background())
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

// waitForCancelRequest blocks until an in-flight finalize would observe the
// cancel flag at its next step boundary.
func waitForCancelRequest(t *testing.T, c *Coordinator) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !c.cancelled() {
		if time.Now().After(deadline) {
			t.Fatal("cancel request never registered")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCancel_MidReservingReleasesReservation(t *testing.T) {
	rig := newTestRig(false)
	rig.stockAvailable("p1", 10)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)

	// Cancel lands while the reservation call is in flight. It must block
	// until the hold is released, then report success.
	cancelErr := make(chan error, 1)
	rig.ledger.onReserve = func() {
		go func() { cancelErr <- rig.coordinator.Cancel(context.Background()) }()
		waitForCancelRequest(t, rig.coordinator)
	}

	_, err := rig.coordinator.Finalize(context.Background(), cashPayment(1000))

	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.NoError(t, <-cancelErr)
	assert.Equal(t, []string{"res-1"}, rig.ledger.released)
	assert.Empty(t, rig.ledger.committed)
	assert.Equal(t, 0, rig.submitter.calls)
	assert.Equal(t, StateCancelled, rig.coordinator.State())
	assert.True(t, rig.coordinator.Cart().IsEmpty())
}

func TestCancel_AfterSubmissionSucceededCompletesSale(t *testing.T) {
	rig := newTestRig(false)
	rig.stockAvailable("p1", 10)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)

	cancelErr := make(chan error, 1)
	rig.submitter.onSubmit = func() {
		go func() { cancelErr <- rig.coordinator.Cancel(context.Background()) }()
		waitForCancelRequest(t, rig.coordinator)
	}

	sale, err := rig.coordinator.Finalize(context.Background(), cashPayment(1000))

	// The order was durably recorded before the cancel could take effect:
	// the sale completes, the hold is committed, and the late cancel is
	// rejected instead of unwinding a recorded sale.
	assert.NoError(t, err)
	assert.Equal(t, models.SaleCompleted, sale.Status)
	assert.Equal(t, StateCompleted, rig.coordinator.State())
	assert.Equal(t, []string{"res-1"}, rig.ledger.committed)
	assert.Empty(t, rig.ledger.released)

	var verr *models.ValidationError
	assert.ErrorAs(t, <-cancelErr, &verr)
}

func TestCancel_NothingInProgress(t *testing.T) {
	rig := newTestRig(false)

	err := rig.coordinator.Cancel(context.Background())

	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestMutationsBlockedMidFlight(t *testing.T) {
	rig := newTestRig(false)
	rig.coordinator.AddItem("p1", "Coffee", 1000, 1)
	rig.coordinator.setState(StateSubmitting)

	_, err := rig.coordinator.AddItem("p2", "Tea", 500, 1)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = rig.coordinator.RemoveItem("p1")
	assert.ErrorAs(t, err, &verr)

	rig.coordinator.setState(StateBuilding)
	_, err = rig.coordinator.AddItem("p2", "Tea", 500, 1)
	assert.NoError(t, err)
}
