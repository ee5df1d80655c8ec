package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
)

// StockCache keeps the last-known-good stock snapshot per product. It backs
// the cart's soft checks only; the settlement flow always re-queries the
// ledger before reserving.
type StockCache struct {
	mu        sync.RWMutex
	snapshots map[string]models.StockSnapshot
	logger    *zap.Logger
}

func NewStockCache(logger *zap.Logger) *StockCache {
	return &StockCache{
		snapshots: make(map[string]models.StockSnapshot),
		logger:    logger,
	}
}

// Get returns the cached snapshot for a product, if any.
func (c *StockCache) Get(productID string) (models.StockSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snapshots[productID]
	return snap, ok
}

// Set stores a snapshot, stamping it if the source did not.
func (c *StockCache) Set(snap models.StockSnapshot) {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	c.mu.Lock()
	c.snapshots[snap.ProductID] = snap
	c.mu.Unlock()
}

// Products returns the product ids currently tracked.
func (c *StockCache) Products() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.snapshots))
	for id := range c.snapshots {
		ids = append(ids, id)
	}
	return ids
}

// Resync refreshes every tracked product from the ledger. Called after an
// event-channel reconnect, since missed events leave the cache stale.
func (c *StockCache) Resync(ctx context.Context, ledger StockLedger) {
	for _, id := range c.Products() {
		snap, err := ledger.GetStock(ctx, id)
		if err != nil {
			c.logger.Warn("stock resync failed for product",
				zap.String("product_id", id), zap.Error(err))
			continue
		}
		c.Set(*snap)
	}
}
