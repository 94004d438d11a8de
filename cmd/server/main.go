package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"interview-service/config"
	"interview-service/internal/api"
	"interview-service/internal/broker"
	"interview-service/internal/gateway"
	"interview-service/internal/redisclient"
	"interview-service/internal/service"
	"interview-service/internal/store"
	"interview-service/internal/util"
	"interview-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting interview service")

	tp, err := util.InitTracer("interview-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSessions)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	gatewayClient := gateway.NewClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.APIKey,
		time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second,
	)

	sessionService := service.NewSessionService(db, eventPublisher, cfg.Business)
	cancellationService := service.NewCancellationService(db, gatewayClient, eventPublisher, cfg.Business)
	payoutService := service.NewPayoutService(db, gatewayClient, eventPublisher, cfg.Business)
	reconciler := service.NewReconciler(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	confirmConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSessions, cfg.Kafka.ConsumerGroup)
	confirmWorker := worker.NewPaymentConfirmationWorker(confirmConsumer, sessionService, db)
	go func() {
		if err := confirmWorker.Start(workerCtx); err != nil {
			log.Printf("Payment confirmation worker error: %v", err)
		}
	}()

	reconcileWorker := worker.NewReconcileWorker(reconciler,
		time.Duration(cfg.Business.ReconcileIntervalSeconds)*time.Second)
	go func() {
		if err := reconcileWorker.Start(workerCtx); err != nil {
			log.Printf("Reconcile worker error: %v", err)
		}
	}()

	sweepWorker := worker.NewSweepWorker(sessionService, time.Minute)
	go func() {
		if err := sweepWorker.Start(workerCtx); err != nil {
			log.Printf("Sweep worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(sessionService, cancellationService, payoutService, redisClient)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	confirmWorker.Stop()

	log.Println("Server exited")
}
