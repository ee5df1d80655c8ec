package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	commonerrors "github.com/KallebyX/terman-os-sub000/common/errors"
	"github.com/KallebyX/terman-os-sub000/common/logger"
	pkgaws "github.com/KallebyX/terman-os-sub000/pkg/aws"
	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/config"
	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/controllers"
	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/kafka"
	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/repository"
	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/routes"
	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/services"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Initialize(cfg.Env)
	defer logger.Log.Sync()

	awsCfg, err := pkgaws.LoadAWSConfig(context.Background())
	if err != nil {
		log.Fatalf("AWS config failed: %v", err)
	}

	ddb := dynamodb.NewFromConfig(awsCfg)
	repo := repository.NewDynamoInventoryRepository(ddb, cfg.InventoryTable, cfg.ReservationTable)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic, logger.Log)
	defer producer.Close()

	var snsClient pkgaws.SNSPublisher
	if cfg.AlertTopicArn != "" {
		snsClient = pkgaws.NewSNSClient(awsCfg)
	}

	metrics, err := pkgaws.NewMetricsClient(context.Background())
	if err != nil {
		log.Fatalf("CloudWatch client failed: %v", err)
	}

	inventoryService := services.NewInventoryService(repo, producer, snsClient,
		cfg.AlertTopicArn, metrics, cfg.ReservationTTL, logger.Log)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestLogger())
	router.Use(commonerrors.ErrorMiddleware())

	controller := controllers.NewInventoryController(inventoryService, logger.Log)
	routes.RegisterInventoryRoutes(router, controller)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Log.Info("Stock ledger is running", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
}
