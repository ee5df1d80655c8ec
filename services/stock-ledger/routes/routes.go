package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/controllers"
)

func RegisterInventoryRoutes(r *gin.Engine, ic *controllers.InventoryController) {
	inv := r.Group("/inventory")
	inv.GET("/:productId", ic.GetStock)
	inv.POST("", ic.SetStock)
	inv.POST("/reserve", ic.Reserve)
	inv.POST("/commit", ic.Commit)
	inv.POST("/release", ic.Release)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
