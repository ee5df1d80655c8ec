package services

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/events"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
)

// CartStore is the in-memory line item collection for one terminal session.
// It is a pure state container: no network calls originate here. Every
// mutation emits a local cart.changed notification through the broadcaster.
type CartStore struct {
	mu          sync.Mutex
	cart        models.Cart
	stock       *StockCache
	broadcaster *events.Broadcaster
	logger      *zap.Logger
}

func NewCartStore(stock *StockCache, broadcaster *events.Broadcaster, logger *zap.Logger) *CartStore {
	return &CartStore{
		cart:        models.Cart{CreatedAt: time.Now().UTC()},
		stock:       stock,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// AddItem appends a new line or increments the quantity of an existing one.
// The quantity is soft-clamped against the cached stock snapshot when one is
// available; the hard check happens at finalize against the ledger.
func (s *CartStore) AddItem(productID, name string, unitPrice int64, quantity int) (models.Cart, error) {
	if quantity < 1 {
		return s.Cart(), &models.ValidationError{Reason: "quantity must be at least 1"}
	}

	s.mu.Lock()
	line := s.cart.Find(productID)
	requested := quantity
	if line != nil {
		requested = line.Quantity + quantity
	}

	if snap, ok := s.stock.Get(productID); ok && requested > snap.Available {
		s.logger.Warn("requested quantity above cached stock, clamping",
			zap.String("product_id", productID),
			zap.Int("requested", requested),
			zap.Int("available", snap.Available))
		requested = snap.Available
		if requested < 1 {
			requested = 1
		}
	}

	if line != nil {
		line.Quantity = requested
	} else {
		s.cart.Items = append(s.cart.Items, models.LineItem{
			ProductID: productID,
			Name:      name,
			UnitPrice: unitPrice,
			Quantity:  requested,
		})
	}
	cart := s.snapshotLocked()
	s.mu.Unlock()

	s.notifyChanged(cart)
	return cart, nil
}

// UpdateQuantity sets the quantity of an existing line. Quantities below 1
// are rejected; callers must use RemoveItem for zero. Stock is not validated
// here so the cart stays responsive offline.
func (s *CartStore) UpdateQuantity(productID string, quantity int) (models.Cart, error) {
	if quantity < 1 {
		return s.Cart(), &models.ValidationError{Reason: "quantity must be at least 1, remove the item instead"}
	}

	s.mu.Lock()
	line := s.cart.Find(productID)
	if line == nil {
		s.mu.Unlock()
		return s.Cart(), &models.ValidationError{Reason: "product not in cart"}
	}
	line.Quantity = quantity
	cart := s.snapshotLocked()
	s.mu.Unlock()

	s.notifyChanged(cart)
	return cart, nil
}

// SetLineDiscount applies a flat discount amount to an existing line.
func (s *CartStore) SetLineDiscount(productID string, discount int64) (models.Cart, error) {
	if discount < 0 {
		return s.Cart(), &models.ValidationError{Reason: "discount cannot be negative"}
	}

	s.mu.Lock()
	line := s.cart.Find(productID)
	if line == nil {
		s.mu.Unlock()
		return s.Cart(), &models.ValidationError{Reason: "product not in cart"}
	}
	line.Discount = discount
	cart := s.snapshotLocked()
	s.mu.Unlock()

	s.notifyChanged(cart)
	return cart, nil
}

// RemoveItem deletes a line. Removing an absent product is a no-op.
func (s *CartStore) RemoveItem(productID string) models.Cart {
	s.mu.Lock()
	for i := range s.cart.Items {
		if s.cart.Items[i].ProductID == productID {
			s.cart.Items = append(s.cart.Items[:i], s.cart.Items[i+1:]...)
			break
		}
	}
	cart := s.snapshotLocked()
	s.mu.Unlock()

	s.notifyChanged(cart)
	return cart
}

// SetCustomer attaches a customer to the in-progress sale.
func (s *CartStore) SetCustomer(customerID string) models.Cart {
	s.mu.Lock()
	s.cart.CustomerID = customerID
	cart := s.snapshotLocked()
	s.mu.Unlock()

	s.notifyChanged(cart)
	return cart
}

// Clear resets to an empty cart. Used after a successful or cancelled sale.
func (s *CartStore) Clear() models.Cart {
	s.mu.Lock()
	s.cart = models.Cart{CreatedAt: time.Now().UTC()}
	cart := s.snapshotLocked()
	s.mu.Unlock()

	s.notifyChanged(cart)
	return cart
}

// Cart returns a copy of the current cart.
func (s *CartStore) Cart() models.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *CartStore) snapshotLocked() models.Cart {
	cart := s.cart
	cart.Items = s.cart.Snapshot()
	return cart
}

func (s *CartStore) notifyChanged(cart models.Cart) {
	if s.broadcaster == nil {
		return
	}
	event, err := models.NewEvent(models.EventCartChanged, models.CartChangedPayload{
		ItemCount: cart.ItemCount(),
		Lines:     len(cart.Items),
	})
	if err != nil {
		s.logger.Warn("failed to build cart.changed event", zap.Error(err))
		return
	}
	s.broadcaster.Publish(event)
}
