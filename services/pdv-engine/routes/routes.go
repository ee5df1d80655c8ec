package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/controllers"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/middleware"
)

func RegisterPDVRoutes(r *gin.Engine, pdv *controllers.PDVController, hub *controllers.DashboardHub) {
	cart := r.Group("/cart")
	cart.Use(middleware.AuthMiddleware())
	cart.GET("", pdv.GetCart)
	cart.POST("/items", pdv.AddItem)
	cart.PUT("/items/:productId", pdv.UpdateQuantity)
	cart.PUT("/items/:productId/discount", pdv.SetLineDiscount)
	cart.DELETE("/items/:productId", pdv.RemoveItem)
	cart.PUT("/customer", pdv.SetCustomer)
	cart.POST("/totals", pdv.Totals)

	sale := r.Group("/sale")
	sale.Use(middleware.AuthMiddleware())
	sale.POST("/finalize", pdv.Finalize)
	sale.POST("/cancel", pdv.Cancel)
	sale.GET("/state", pdv.GetState)

	// Dashboards connect unauthenticated on the store LAN.
	r.GET("/ws", hub.Handle)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
