package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	commonerrors "github.com/KallebyX/terman-os-sub000/common/errors"
	"github.com/KallebyX/terman-os-sub000/common/logger"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/config"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/controllers"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/events"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/kafka"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/middleware"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/routes"
	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/services"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Initialize(cfg.Env)
	defer logger.Log.Sync()

	// Event channel to the other terminals and dashboards.
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic, logger.Log)
	defer producer.Close()

	broadcaster := events.NewBroadcaster(producer, logger.Log)
	defer broadcaster.Close()

	stockCache := services.NewStockCache(logger.Log)
	cartStore := services.NewCartStore(stockCache, broadcaster, logger.Log)
	ledger := services.NewLedgerClient(cfg.LedgerURL)
	submitter := services.NewSalesClient(cfg.SalesAPIURL)
	policy := services.ConfigCustomerPolicy{Required: cfg.RequireCustomer}

	coordinator := services.NewCoordinator(cartStore, ledger, submitter, broadcaster,
		policy, stockCache, cfg.TerminalID, logger.Log)

	// Inbound stock events keep the soft-check cache fresh.
	broadcaster.Subscribe(models.EventStockChanged, func(event models.Event) {
		var payload models.StockChangedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			logger.Log.Warn("invalid stock.changed payload", zap.Error(err))
			return
		}
		stockCache.Set(models.StockSnapshot{
			ProductID:    payload.ProductID,
			Available:    payload.Available,
			MinThreshold: payload.MinThreshold,
		})
	})

	ctx, stopConsumer := context.WithCancel(context.Background())
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.EventsTopic, cfg.ConsumerGroup,
		cfg.TerminalID, broadcaster,
		func(ctx context.Context) { stockCache.Resync(ctx, ledger) },
		func(payload models.SaleEventPayload) {
			coordinator.ApplySaleStatus(payload.SaleID, payload.Status)
		},
		logger.Log)
	go consumer.Start(ctx)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestLogger())
	router.Use(commonerrors.ErrorMiddleware())
	router.Use(middleware.RateLimitMiddleware(rate.Every(time.Second/20), 40))

	pdvController := controllers.NewPDVController(coordinator, logger.Log)
	hub := controllers.NewDashboardHub(broadcaster, logger.Log)
	routes.RegisterPDVRoutes(router, pdvController, hub)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Log.Info("PDV engine is running",
			zap.String("port", cfg.Port), zap.String("terminal_id", cfg.TerminalID))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Log.Info("Shutting down gracefully...")
	stopConsumer()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
}
