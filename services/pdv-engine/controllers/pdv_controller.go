package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/services"
)

// PDVController exposes the terminal transaction engine over HTTP.
type PDVController struct {
	coordinator *services.Coordinator
	logger      *zap.Logger
}

func NewPDVController(coordinator *services.Coordinator, logger *zap.Logger) *PDVController {
	return &PDVController{coordinator: coordinator, logger: logger}
}

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price" binding:"required,min=0"`
	Quantity  int    `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

type discountRequest struct {
	Discount int64 `json:"discount"`
}

type customerRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
}

// AddItem handles POST /cart/items
func (ct *PDVController) AddItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := ct.coordinator.AddItem(req.ProductID, req.Name, req.UnitPrice, req.Quantity)
	if err != nil {
		ct.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(cart, ct.coordinator.State()))
}

// UpdateQuantity handles PUT /cart/items/:productId
func (ct *PDVController) UpdateQuantity(c *gin.Context) {
	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := ct.coordinator.UpdateQuantity(c.Param("productId"), req.Quantity)
	if err != nil {
		ct.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(cart, ct.coordinator.State()))
}

// SetLineDiscount handles PUT /cart/items/:productId/discount
func (ct *PDVController) SetLineDiscount(c *gin.Context) {
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := ct.coordinator.SetLineDiscount(c.Param("productId"), req.Discount)
	if err != nil {
		ct.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(cart, ct.coordinator.State()))
}

// RemoveItem handles DELETE /cart/items/:productId
func (ct *PDVController) RemoveItem(c *gin.Context) {
	cart, err := ct.coordinator.RemoveItem(c.Param("productId"))
	if err != nil {
		ct.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(cart, ct.coordinator.State()))
}

// SetCustomer handles PUT /cart/customer
func (ct *PDVController) SetCustomer(c *gin.Context) {
	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := ct.coordinator.SetCustomer(req.CustomerID)
	if err != nil {
		ct.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(cart, ct.coordinator.State()))
}

// GetCart handles GET /cart
func (ct *PDVController) GetCart(c *gin.Context) {
	c.JSON(http.StatusOK, cartResponse(ct.coordinator.Cart(), ct.coordinator.State()))
}

// Totals handles POST /cart/totals — a derived preview, never stored.
func (ct *PDVController) Totals(c *gin.Context) {
	var spec models.PaymentSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	totals, err := ct.coordinator.Totals(spec)
	if err != nil {
		ct.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

// Finalize handles POST /sale/finalize
func (ct *PDVController) Finalize(c *gin.Context) {
	var spec models.PaymentSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sale, err := ct.coordinator.Finalize(c.Request.Context(), spec)
	if err != nil {
		ct.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// Cancel handles POST /sale/cancel
func (ct *PDVController) Cancel(c *gin.Context) {
	if err := ct.coordinator.Cancel(c.Request.Context()); err != nil {
		ct.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": ct.coordinator.State()})
}

// GetState handles GET /sale/state — the UI polls this after a failure to
// offer retry or cancel.
func (ct *PDVController) GetState(c *gin.Context) {
	resp := gin.H{"state": ct.coordinator.State()}
	if failure := ct.coordinator.LastFailure(); failure != nil {
		resp["failure"] = gin.H{
			"code":       failure.Code,
			"product_id": failure.ProductID,
			"available":  failure.Available,
			"message":    failure.Error(),
		}
	}
	if sale := ct.coordinator.LastSale(); sale != nil {
		resp["last_sale"] = sale
	}
	c.JSON(http.StatusOK, resp)
}

func (ct *PDVController) renderError(c *gin.Context, err error) {
	var validation *models.ValidationError
	var payment *models.PaymentError
	var failure *models.Failure

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Reason})
	case errors.As(err, &payment):
		c.JSON(http.StatusBadRequest, gin.H{"error": payment.Reason})
	case errors.As(err, &failure):
		status := http.StatusConflict
		if failure.Code == models.FailureSubmissionTimeout || failure.Code == models.FailureLedgerUnavailable {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"error":      failure.Error(),
			"code":       failure.Code,
			"product_id": failure.ProductID,
			"available":  failure.Available,
		})
	default:
		ct.logger.Error("unhandled engine error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func cartResponse(cart models.Cart, state services.State) gin.H {
	return gin.H{
		"cart":  cart,
		"state": state,
	}
}
