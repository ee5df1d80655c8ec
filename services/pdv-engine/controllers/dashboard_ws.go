package controllers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/events"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// DashboardHub pushes sale-lifecycle and stock events to connected
// dashboards over websocket. Delivery is best-effort: a slow or dead client
// is dropped, never waited on.
type DashboardHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	logger  *zap.Logger
}

func NewDashboardHub(broadcaster *events.Broadcaster, logger *zap.Logger) *DashboardHub {
	h := &DashboardHub{
		clients: make(map[*websocket.Conn]bool),
		logger:  logger,
	}

	for _, t := range []models.EventType{
		models.EventSaleCreated,
		models.EventSaleCompleted,
		models.EventSaleCancelled,
		models.EventStockChanged,
		models.EventStockLowAlert,
	} {
		broadcaster.Subscribe(t, h.broadcast)
	}
	return h
}

// Handle upgrades GET /ws connections and keeps them registered until the
// peer goes away.
func (h *DashboardHub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			break
		}
	}
}

func (h *DashboardHub) broadcast(event models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("dropping dashboard client", zap.Error(err))
			client.Close()
			delete(h.clients, client)
		}
	}
}
