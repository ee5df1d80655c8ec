package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/sales-api/models"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/repository"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/services"
)

// SaleController handles HTTP requests for sales.
type SaleController struct {
	service *services.SaleService
	logger  *zap.Logger
}

func NewSaleController(service *services.SaleService, logger *zap.Logger) *SaleController {
	return &SaleController{service: service, logger: logger}
}

// Submit stores a sale coming from a terminal.
// POST /sales
func (sc *SaleController) Submit(c *gin.Context) {
	var req models.SubmitSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	resp, err := sc.service.Submit(c.Request.Context(), &req)
	if err != nil {
		sc.logger.Error("sale submission failed",
			zap.String("terminal_id", req.TerminalID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store sale"})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetSale returns one sale with its items.
// GET /sales/:id
func (sc *SaleController) GetSale(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sale ID"})
		return
	}

	sale, err := sc.service.GetSale(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Sale not found"})
			return
		}
		sc.logger.Error("get sale failed", zap.String("sale_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sale"})
		return
	}

	c.JSON(http.StatusOK, sale)
}

// ListSales pages through stored sales.
// GET /sales?terminal_id=&status=&page=&page_size=
func (sc *SaleController) ListSales(c *gin.Context) {
	var filter models.SaleFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query", "details": err.Error()})
		return
	}

	sales, total, err := sc.service.ListSales(c.Request.Context(), filter)
	if err != nil {
		sc.logger.Error("list sales failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sales"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sales": sales,
		"total": total,
	})
}
