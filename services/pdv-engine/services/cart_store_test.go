package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/events"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
)

func newTestCartStore() (*CartStore, *StockCache, *events.Broadcaster) {
	broadcaster := events.NewBroadcaster(nil, zap.NewNop())
	stock := NewStockCache(zap.NewNop())
	return NewCartStore(stock, broadcaster, zap.NewNop()), stock, broadcaster
}

func TestCartStore_AddItem(t *testing.T) {
	store, _, _ := newTestCartStore()

	cart, err := store.AddItem("p1", "Coffee", 1200, 2)
	assert.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	// Adding the same product again increments the existing line.
	cart, err = store.AddItem("p1", "Coffee", 1200, 3)
	assert.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestCartStore_AddItem_RejectsZeroQuantity(t *testing.T) {
	store, _, _ := newTestCartStore()

	_, err := store.AddItem("p1", "Coffee", 1200, 0)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.True(t, store.Cart().IsEmpty())
}

func TestCartStore_AddItem_ClampsToCachedStock(t *testing.T) {
	store, stock, _ := newTestCartStore()
	stock.Set(models.StockSnapshot{ProductID: "p1", Available: 2})

	cart, err := store.AddItem("p1", "Coffee", 1200, 5)
	assert.NoError(t, err)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestCartStore_AddItem_ClampFloorIsOne(t *testing.T) {
	store, stock, _ := newTestCartStore()
	stock.Set(models.StockSnapshot{ProductID: "p1", Available: 0})

	cart, err := store.AddItem("p1", "Coffee", 1200, 3)
	assert.NoError(t, err)
	assert.Equal(t, 1, cart.Items[0].Quantity)
}

func TestCartStore_UpdateQuantity(t *testing.T) {
	store, _, _ := newTestCartStore()
	store.AddItem("p1", "Coffee", 1200, 1)

	cart, err := store.UpdateQuantity("p1", 4)
	assert.NoError(t, err)
	assert.Equal(t, 4, cart.Items[0].Quantity)

	var verr *models.ValidationError
	_, err = store.UpdateQuantity("p1", 0)
	assert.ErrorAs(t, err, &verr)

	_, err = store.UpdateQuantity("missing", 2)
	assert.ErrorAs(t, err, &verr)
}

func TestCartStore_SetLineDiscount(t *testing.T) {
	store, _, _ := newTestCartStore()
	store.AddItem("p1", "Coffee", 1200, 1)

	cart, err := store.SetLineDiscount("p1", 200)
	assert.NoError(t, err)
	assert.Equal(t, int64(200), cart.Items[0].Discount)

	var verr *models.ValidationError
	_, err = store.SetLineDiscount("p1", -1)
	assert.ErrorAs(t, err, &verr)
}

func TestCartStore_RemoveItem_Idempotent(t *testing.T) {
	store, _, _ := newTestCartStore()
	store.AddItem("p1", "Coffee", 1200, 1)

	cart := store.RemoveItem("p1")
	assert.True(t, cart.IsEmpty())

	// Removing again is a no-op.
	cart = store.RemoveItem("p1")
	assert.True(t, cart.IsEmpty())
}

func TestCartStore_MutationsEmitCartChanged(t *testing.T) {
	store, _, broadcaster := newTestCartStore()

	var seen int
	broadcaster.Subscribe(models.EventCartChanged, func(event models.Event) {
		seen++
	})

	store.AddItem("p1", "Coffee", 1200, 1)
	store.UpdateQuantity("p1", 2)
	store.SetCustomer("c1")
	store.RemoveItem("p1")
	store.Clear()

	assert.Equal(t, 5, seen)
}

func TestCartStore_SnapshotIsolation(t *testing.T) {
	store, _, _ := newTestCartStore()
	store.AddItem("p1", "Coffee", 1200, 1)

	cart := store.Cart()
	cart.Items[0].Quantity = 99

	assert.Equal(t, 1, store.Cart().Items[0].Quantity)
}
