package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/KallebyX/terman-os-sub000/services/sales-api/controllers"
)

func RegisterSaleRoutes(r *gin.Engine, sc *controllers.SaleController) {
	sales := r.Group("/sales")
	sales.POST("", sc.Submit)
	sales.GET("", sc.ListSales)
	sales.GET("/:id", sc.GetSale)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
