package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/events"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
)

// State is the settlement lifecycle of the active cart.
type State string

const (
	StateEmpty      State = "empty"
	StateBuilding   State = "building"
	StateValidating State = "validating"
	StateReserving  State = "reserving"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// CustomerPolicy decides whether a sale requires an identified customer.
// Injected so the business rule stays configurable.
type CustomerPolicy interface {
	RequiresCustomer() bool
}

// ConfigCustomerPolicy is the config-driven default policy.
type ConfigCustomerPolicy struct {
	Required bool
}

func (p ConfigCustomerPolicy) RequiresCustomer() bool { return p.Required }

// Coordinator drives a cart through validation, stock reservation, order
// submission and settlement. Cart mutations are only accepted while no
// finalize is in flight; the in-flight states reject them so a late AddItem
// cannot race the reservation snapshot.
type Coordinator struct {
	mu         sync.Mutex
	state      State
	failure    *models.Failure
	lastSale   *models.Sale
	pending    map[string]*models.Sale
	cancelReq  bool
	cancelDone chan struct{}

	cart        *CartStore
	ledger      StockLedger
	submitter   OrderSubmitter
	broadcaster *events.Broadcaster
	policy      CustomerPolicy
	stock       *StockCache
	terminalID  string
	logger      *zap.Logger

	maxSubmitAttempts int
	retryBackoff      time.Duration
}

func NewCoordinator(cart *CartStore, ledger StockLedger, submitter OrderSubmitter, broadcaster *events.Broadcaster, policy CustomerPolicy, stock *StockCache, terminalID string, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		state:             StateEmpty,
		pending:           make(map[string]*models.Sale),
		cart:              cart,
		ledger:            ledger,
		submitter:         submitter,
		broadcaster:       broadcaster,
		policy:            policy,
		stock:             stock,
		terminalID:        terminalID,
		logger:            logger,
		maxSubmitAttempts: 3,
		retryBackoff:      500 * time.Millisecond,
	}
}

// State returns the current settlement state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastFailure returns the structured reason of the last Failed transition.
func (c *Coordinator) LastFailure() *models.Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// LastSale returns a copy of the most recently finalized sale. The copy is
// taken under the lock so a gateway status update can never race a reader
// serializing the sale.
func (c *Coordinator) LastSale() *models.Sale {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSale == nil {
		return nil
	}
	sale := *c.lastSale
	return &sale
}

// mutable reports whether cart mutations are accepted in the given state.
// Failed keeps the cart so the cashier can correct and retry; Completed and
// Cancelled start a fresh sale on the next mutation.
func mutable(s State) bool {
	switch s {
	case StateValidating, StateReserving, StateSubmitting:
		return false
	}
	return true
}

// AddItem adds a product to the cart, moving Empty to Building.
func (c *Coordinator) AddItem(productID, name string, unitPrice int64, quantity int) (models.Cart, error) {
	if err := c.beginMutation(); err != nil {
		return c.cart.Cart(), err
	}
	return c.cart.AddItem(productID, name, unitPrice, quantity)
}

// UpdateQuantity changes a line quantity.
func (c *Coordinator) UpdateQuantity(productID string, quantity int) (models.Cart, error) {
	if err := c.beginMutation(); err != nil {
		return c.cart.Cart(), err
	}
	return c.cart.UpdateQuantity(productID, quantity)
}

// SetLineDiscount applies a flat discount to a line.
func (c *Coordinator) SetLineDiscount(productID string, discount int64) (models.Cart, error) {
	if err := c.beginMutation(); err != nil {
		return c.cart.Cart(), err
	}
	return c.cart.SetLineDiscount(productID, discount)
}

// RemoveItem removes a line from the cart.
func (c *Coordinator) RemoveItem(productID string) (models.Cart, error) {
	if err := c.beginMutation(); err != nil {
		return c.cart.Cart(), err
	}
	return c.cart.RemoveItem(productID), nil
}

// SetCustomer attaches a customer to the sale.
func (c *Coordinator) SetCustomer(customerID string) (models.Cart, error) {
	if err := c.beginMutation(); err != nil {
		return c.cart.Cart(), err
	}
	return c.cart.SetCustomer(customerID), nil
}

func (c *Coordinator) beginMutation() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !mutable(c.state) {
		return &models.ValidationError{Reason: "cart is locked while a sale is being finalized"}
	}
	c.state = StateBuilding
	c.failure = nil
	return nil
}

// Cart returns a copy of the current cart.
func (c *Coordinator) Cart() models.Cart {
	return c.cart.Cart()
}

// Totals previews the payable totals for the current cart. Read-only, valid
// in any state.
func (c *Coordinator) Totals(payment models.PaymentSpec) (models.Totals, error) {
	return ComputeTotals(c.cart.Cart(), payment)
}

// Finalize runs the settlement protocol: validate the cart, re-check and
// reserve stock at the ledger, submit the order with bounded retries, commit
// the reservation and publish the sale. On any failure reservations are
// released and the cart is preserved for correction.
func (c *Coordinator) Finalize(ctx context.Context, payment models.PaymentSpec) (*models.Sale, error) {
	cart, totals, err := c.beginFinalize(payment)
	if err != nil {
		return nil, err
	}

	items := reserveItems(cart)

	// Validating: authoritative stock re-check, all-or-nothing. No
	// reservation is attempted if any line is short.
	for _, item := range items {
		snap, err := c.ledger.GetStock(ctx, item.ProductID)
		if err != nil {
			return nil, c.fail(&models.Failure{Code: models.FailureLedgerUnavailable, Err: err})
		}
		c.stock.Set(*snap)
		if item.Quantity > snap.Available {
			return nil, c.fail(&models.Failure{
				Code:      models.FailureInsufficientStock,
				ProductID: item.ProductID,
				Available: snap.Available,
			})
		}
	}
	if c.cancelled() {
		return nil, c.finishCancel(ctx, "")
	}

	// Reserving: one batch call; the ledger holds items in ascending
	// product id order and rolls back on the first conflict.
	c.setState(StateReserving)
	idempotencyKey := uuid.New().String()
	reservationID, err := c.ledger.Reserve(ctx, idempotencyKey, items)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return nil, c.fail(&models.Failure{
				Code:      models.FailureReservationConflict,
				ProductID: conflict.ProductID,
				Available: conflict.Available,
			})
		}
		return nil, c.fail(&models.Failure{Code: models.FailureReservationConflict, Err: err})
	}
	if c.cancelled() {
		return nil, c.finishCancel(ctx, reservationID)
	}

	// Submitting: bounded retries with backoff on transient failures, same
	// idempotency key on every attempt. Reservations never outlive a failed
	// attempt.
	c.setState(StateSubmitting)
	resp, err := c.submitWithRetry(ctx, models.SubmitOrderRequest{
		Items:          submitItems(cart),
		PaymentMethod:  payment.Method,
		Installments:   payment.Installments,
		CustomerID:     cart.CustomerID,
		TerminalID:     c.terminalID,
		Total:          totals.Total,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		c.releaseReservation(ctx, reservationID)
		if isTransient(err) {
			return nil, c.fail(&models.Failure{Code: models.FailureSubmissionTimeout, Err: err})
		}
		return nil, c.fail(&models.Failure{Code: models.FailureSubmissionRejected, Err: err})
	}

	// A successful submission is the point of no return: the sale is
	// durably recorded, so a cancel request that landed mid-submit no
	// longer applies.
	if err := c.ledger.Commit(ctx, reservationID); err != nil {
		// The order is submitted; a failed commit leaves the hold for the
		// ledger's expiry sweep and is only logged here.
		c.logger.Warn("reservation commit failed",
			zap.String("reservation_id", reservationID), zap.Error(err))
	}

	status := models.SalePending
	if payment.CompletesImmediately() {
		status = models.SaleCompleted
	}
	sale := &models.Sale{
		ID:             resp.SaleID,
		Items:          cart.Items,
		Totals:         totals,
		Payment:        payment,
		Status:         status,
		CustomerID:     cart.CustomerID,
		TerminalID:     c.terminalID,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}

	c.mu.Lock()
	c.state = StateCompleted
	c.lastSale = sale
	if status == models.SalePending {
		c.pending[sale.ID.String()] = sale
	}
	c.cancelReq = false
	c.signalCancelWaiter()
	c.mu.Unlock()

	c.cart.Clear()
	c.publishSaleEvent(models.EventSaleCreated, sale)

	c.logger.Info("sale finalized",
		zap.String("sale_id", sale.ID.String()),
		zap.String("status", string(status)),
		zap.Int64("total", totals.Total),
		zap.String("method", string(payment.Method)))
	return sale, nil
}

func (c *Coordinator) beginFinalize(payment models.PaymentSpec) (models.Cart, models.Totals, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateBuilding && c.state != StateFailed {
		return models.Cart{}, models.Totals{}, &models.ValidationError{
			Reason: "no sale in progress to finalize",
		}
	}

	cart := c.cart.Cart()
	if cart.IsEmpty() {
		return models.Cart{}, models.Totals{}, &models.ValidationError{Reason: "cart is empty"}
	}
	if c.policy.RequiresCustomer() && cart.CustomerID == "" {
		return models.Cart{}, models.Totals{}, &models.ValidationError{Reason: "sale requires a customer"}
	}

	// Payment errors surface immediately and leave the state untouched.
	totals, err := ComputeTotals(cart, payment)
	if err != nil {
		return models.Cart{}, models.Totals{}, err
	}

	c.state = StateValidating
	c.failure = nil
	c.cancelReq = false
	return cart, totals, nil
}

func (c *Coordinator) submitWithRetry(ctx context.Context, req models.SubmitOrderRequest) (*models.SubmitOrderResponse, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 1; attempt <= c.maxSubmitAttempts; attempt++ {
		resp, err := c.submitter.Submit(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}

		c.logger.Warn("order submission attempt failed",
			zap.Int("attempt", attempt), zap.Error(err))
		if attempt < c.maxSubmitAttempts {
			select {
			case <-ctx.Done():
				return nil, &TransientError{Op: "order submission", Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}

func isTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Cancel aborts the in-progress sale. Valid from any non-terminal state. Any
// held reservation is released before Cancel returns: a cancel that lands
// mid-finalize blocks until the in-flight attempt observes the flag at its
// next step boundary and has released its hold. A submission that already
// succeeded is past the point of no return and the cancel is rejected.
func (c *Coordinator) Cancel(ctx context.Context) error {
	waited := false
	for {
		c.mu.Lock()
		switch c.state {
		case StateValidating, StateReserving, StateSubmitting:
			// Finalize is in flight; it releases its own reservation
			// before leaving the in-flight states. Wait for it.
			c.cancelReq = true
			if c.cancelDone == nil {
				c.cancelDone = make(chan struct{})
			}
			done := c.cancelDone
			c.mu.Unlock()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-done:
			}
			waited = true
			continue
		case StateCancelled:
			c.mu.Unlock()
			if waited {
				return nil
			}
			return &models.ValidationError{Reason: "no sale in progress to cancel"}
		case StateEmpty, StateCompleted:
			c.mu.Unlock()
			return &models.ValidationError{Reason: "no sale in progress to cancel"}
		}
		c.state = StateCancelled
		c.failure = nil
		c.mu.Unlock()

		c.cart.Clear()
		c.publishCancelled("")
		return nil
	}
}

func (c *Coordinator) cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelReq
}

func (c *Coordinator) finishCancel(ctx context.Context, reservationID string) error {
	if reservationID != "" {
		c.releaseReservation(ctx, reservationID)
	}

	c.mu.Lock()
	c.state = StateCancelled
	c.cancelReq = false
	c.signalCancelWaiter()
	c.mu.Unlock()

	c.cart.Clear()
	c.publishCancelled("")
	return &models.ValidationError{Reason: "sale cancelled"}
}

// signalCancelWaiter wakes a Cancel call blocked on the in-flight finalize.
// Callers must hold c.mu.
func (c *Coordinator) signalCancelWaiter() {
	if c.cancelDone != nil {
		close(c.cancelDone)
		c.cancelDone = nil
	}
}

func (c *Coordinator) releaseReservation(ctx context.Context, reservationID string) {
	// Release with a fresh timeout: the caller's context may already be
	// done and the hold must never dangle.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.ledger.Release(releaseCtx, reservationID); err != nil {
		c.logger.Error("failed to release reservation",
			zap.String("reservation_id", reservationID), zap.Error(err))
	}
}

func (c *Coordinator) fail(failure *models.Failure) error {
	c.mu.Lock()
	c.state = StateFailed
	c.failure = failure
	c.cancelReq = false
	c.signalCancelWaiter()
	c.mu.Unlock()

	c.logger.Warn("settlement failed",
		zap.String("code", string(failure.Code)),
		zap.String("product_id", failure.ProductID),
		zap.Error(failure.Err))
	return failure
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ApplySaleStatus applies an asynchronous status update (driven by the
// payment gateway through the sales API) to a pending card sale. The cart is
// never re-opened by a status change.
func (c *Coordinator) ApplySaleStatus(saleID string, status models.SaleStatus) {
	c.mu.Lock()
	sale, ok := c.pending[saleID]
	if ok {
		sale.Status = status
		if status != models.SalePending {
			delete(c.pending, saleID)
		}
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	c.logger.Info("pending sale settled by gateway",
		zap.String("sale_id", saleID),
		zap.String("status", string(status)))
}

func (c *Coordinator) publishSaleEvent(eventType models.EventType, sale *models.Sale) {
	event, err := models.NewEvent(eventType, models.SaleEventPayload{
		SaleID:     sale.ID.String(),
		TerminalID: sale.TerminalID,
		Status:     sale.Status,
		Total:      sale.Totals.Total,
		ItemCount:  len(sale.Items),
	})
	if err != nil {
		c.logger.Warn("failed to build sale event", zap.Error(err))
		return
	}
	c.broadcaster.Publish(event)
}

func (c *Coordinator) publishCancelled(saleID string) {
	event, err := models.NewEvent(models.EventSaleCancelled, models.SaleEventPayload{
		SaleID:     saleID,
		TerminalID: c.terminalID,
		Status:     models.SaleCancelled,
	})
	if err != nil {
		return
	}
	c.broadcaster.Publish(event)
}

// reserveItems builds the reservation batch in ascending product id order so
// concurrent terminals acquire holds in the same order.
func reserveItems(cart models.Cart) []ReserveItem {
	items := make([]ReserveItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, ReserveItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items
}

func submitItems(cart models.Cart) []models.SubmitOrderItem {
	items := make([]models.SubmitOrderItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, models.SubmitOrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Discount:  it.Discount,
		})
	}
	return items
}
