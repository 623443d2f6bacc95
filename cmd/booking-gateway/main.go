package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"ms-booking/internal/backend"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/redislock"
	"ms-booking/internal/config"
	"ms-booking/internal/confirmation"
	"ms-booking/internal/events"
	"ms-booking/internal/journal"
	"ms-booking/internal/logger"
	"ms-booking/internal/registry"
	"ms-booking/internal/workflow"
	"ms-booking/internal/workflow/workflow_api"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()

	// --- Redis (booking locks) ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err))
	}
	log.Info("REDIS", "Connected to Redis")

	// --- Kafka (mutation events) ---
	var publisher events.Publisher
	if cfg.Kafka.Enabled && !cfg.Kafka.MockMode {
		topics := []string{cfg.Kafka.Topics.BookingCreated, cfg.Kafka.Topics.PaymentConfirmed}
		if err := events.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Could not ensure topics exist: %v", err))
		}
		producer := events.NewKafkaProducer(cfg.Kafka, log)
		defer producer.Close()
		publisher = producer
		log.Info("KAFKA", fmt.Sprintf("Producing mutation events to %v", cfg.Kafka.Brokers))
	} else {
		publisher = &events.MockProducer{Logger: log}
		log.Info("KAFKA", "Kafka disabled or mocked, events stay in-process")
	}
	bus := events.NewBus(publisher, log)

	// --- Journal (sqlite) ---
	jrnl, err := journal.Open(cfg.Journal.Path, log)
	if err != nil {
		log.Fatal("JOURNAL", fmt.Sprintf("Failed to open journal: %v", err))
	}
	defer jrnl.Close()
	if err := jrnl.Init(ctx); err != nil {
		log.Fatal("JOURNAL", fmt.Sprintf("Failed to init journal: %v", err))
	}
	jrnl.Bind(bus)

	// --- Core wiring ---
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.SessionCookie, cfg.Backend.RequestTimeout, log)
	lock := redislock.New(redisClient, cfg.Workflow.BookingLockTTL)
	initiator := booking.NewInitiator(client, lock, bus, log)
	reg := registry.New(client, log)
	reg.Bind(bus)

	controller := workflow.NewController(client, initiator, reg, client, bus, cfg.Workflow.ConfirmDelay, log)

	qr := confirmation.NewGenerator(getSecret())
	handler := workflow_api.NewHandler(controller, jrnl, qr, log)

	// --- Router ---
	r := chi.NewRouter()
	handler.Routes(r)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Booking gateway running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received, cleaning up")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	log.Info("SERVER", "Server exited gracefully")
}

func getSecret() string {
	if secret := os.Getenv("CONFIRMATION_SECRET"); secret != "" {
		return secret
	}
	return "booking-gateway-dev-secret"
}
