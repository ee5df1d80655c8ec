package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	commonerrors "github.com/KallebyX/terman-os-sub000/common/errors"
	"github.com/KallebyX/terman-os-sub000/common/logger"
	pkgaws "github.com/KallebyX/terman-os-sub000/pkg/aws"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/config"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/controllers"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/database"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/kafka"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/models"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/repository"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/routes"
	"github.com/KallebyX/terman-os-sub000/services/sales-api/services"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Initialize(cfg.Env)
	defer logger.Log.Sync()

	db, err := database.ConnectPostgres(logger.Log, &models.SaleRecord{}, &models.SaleItemRecord{})
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	redisClient := database.NewRedisClient(cfg.RedisURL)
	idemStore := database.NewIdempotencyStore(redisClient, 24*time.Hour)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic, logger.Log)
	defer producer.Close()

	metrics, err := pkgaws.NewMetricsClient(context.Background())
	if err != nil {
		log.Fatalf("CloudWatch client failed: %v", err)
	}

	saleRepo := repository.NewSaleRepository(db)
	saleService := services.NewSaleService(saleRepo, idemStore, producer, metrics, logger.Log)

	ctx, stopConsumer := context.WithCancel(context.Background())
	paymentConsumer := kafka.NewPaymentConsumer(cfg.KafkaBrokers, cfg.PaymentsTopic,
		cfg.PaymentsGroup, saleService, logger.Log)
	go paymentConsumer.Start(ctx)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestLogger())
	router.Use(commonerrors.ErrorMiddleware())

	controller := controllers.NewSaleController(saleService, logger.Log)
	routes.RegisterSaleRoutes(router, controller)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Log.Info("Sales API is running", zap.String("port", cfg.Port))
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
