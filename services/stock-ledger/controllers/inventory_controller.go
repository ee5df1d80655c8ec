package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/models"
	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/repository"
	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/services"
)

// InventoryController handles HTTP requests for the stock ledger.
type InventoryController struct {
	service *services.InventoryService
	logger  *zap.Logger
}

func NewInventoryController(service *services.InventoryService, logger *zap.Logger) *InventoryController {
	return &InventoryController{service: service, logger: logger}
}

// GetStock returns the inventory for a product.
// GET /inventory/:productId
func (ic *InventoryController) GetStock(c *gin.Context) {
	productID := c.Param("productId")
	if productID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing product ID"})
		return
	}

	inv, err := ic.service.GetStock(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Inventory not found for product"})
			return
		}
		ic.logger.Error("get stock failed", zap.String("product_id", productID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch inventory"})
		return
	}

	c.JSON(http.StatusOK, inv)
}

// SetStock initializes or tops up inventory for a product.
// POST /inventory
func (ic *InventoryController) SetStock(c *gin.Context) {
	var req models.SetStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	inv, err := ic.service.SetStock(c.Request.Context(), &req)
	if err != nil {
		ic.logger.Error("set stock failed", zap.String("product_id", req.ProductID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set stock"})
		return
	}

	c.JSON(http.StatusCreated, inv)
}

// Reserve holds stock for an order as one atomic batch.
// POST /inventory/reserve
func (ic *InventoryController) Reserve(c *gin.Context) {
	var req models.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	res, err := ic.service.Reserve(c.Request.Context(), &req)
	if err != nil {
		var conflict *services.ConflictError
		if errors.As(err, &conflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error":      conflict.Error(),
				"product_id": conflict.ProductID,
				"available":  conflict.Available,
			})
			return
		}
		ic.logger.Error("reserve failed", zap.String("order_id", req.OrderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reserve stock"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reservation_id": res.ID,
		"order_id":       res.OrderID,
		"expires_at":     res.ExpiresAt,
	})
}

// Commit converts a reservation into a permanent decrement.
// POST /inventory/commit
func (ic *InventoryController) Commit(c *gin.Context) {
	var req models.ReservationRef
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if err := ic.service.Commit(c.Request.Context(), req.ReservationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Reservation not found"})
			return
		}
		ic.logger.Error("commit failed", zap.String("reservation_id", req.ReservationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit reservation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Reservation committed", "reservation_id": req.ReservationID})
}

// Release returns held stock to the available pool.
// POST /inventory/release
func (ic *InventoryController) Release(c *gin.Context) {
	var req models.ReservationRef
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if err := ic.service.Release(c.Request.Context(), req.ReservationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Reservation not found"})
			return
		}
		ic.logger.Error("release failed", zap.String("reservation_id", req.ReservationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to release reservation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Reservation released", "reservation_id": req.ReservationID})
}
