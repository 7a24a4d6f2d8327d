package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/cursor"
	h "github.com/fjod/go_shop/internal/http"
	"github.com/fjod/go_shop/internal/paystack"
	"github.com/fjod/go_shop/internal/publisher"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/fjod/go_shop/internal/service"
)

type Config struct {
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string

	RedisAddr    string
	KafkaBrokers []string

	PaystackBaseURL   string
	PaystackSecretKey string
	CallbackURL       string

	CursorSecret string
	Currency     string
	ShippingFlat int64
	TaxFlat      int64
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnvInt("DB_PORT", 5432),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "shop"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),

		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),

		PaystackBaseURL:   getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackSecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
		CallbackURL:       getEnv("CALLBACK_URL", "http://localhost:8080/api/v1/payments/callback"),

		CursorSecret: getEnv("CURSOR_SECRET", ""),
		Currency:     getEnv("CURRENCY", "NGN"),
		ShippingFlat: getEnvInt64("SHIPPING_FLAT", 0),
		TaxFlat:      getEnvInt64("TAX_FLAT", 0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("Invalid %s: %v", key, err)
	}
	return value
}

func getEnvInt64(key string, defaultValue int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Fatalf("Invalid %s: %v", key, err)
	}
	return value
}

func main() {
	log.Println("shop service starting...")
	cfg := loadConfig()

	if cfg.PaystackSecretKey == "" {
		log.Fatal("PAYSTACK_SECRET_KEY is required")
	}
	if cfg.CursorSecret == "" {
		log.Fatal("CURSOR_SECRET is required")
	}

	// Database setup
	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}

	repo, err := repository.NewRepository(creds)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Cache
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	cartCache := cache.NewRedisCache(redisClient)

	// Payment processor
	processor := paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)

	// Services
	cartService := service.NewCartService(repo, cartCache)
	checkoutService := service.NewCheckoutService(repo, processor, service.CheckoutConfig{
		Currency:    cfg.Currency,
		CallbackURL: cfg.CallbackURL,
		Shipping:    cfg.ShippingFlat,
		Tax:         cfg.TaxFlat,
	})
	reconcileService := service.NewReconcileService(repo, processor, cartCache)
	ordersService := service.NewOrdersService(repo, cursor.NewCodec([]byte(cfg.CursorSecret)))

	// Handlers
	cartHandler := h.NewCartHandler(cartService, cfg.RequestTimeout)
	checkoutHandler := h.NewCheckoutHandler(checkoutService, cfg.RequestTimeout)
	webhookHandler := h.NewWebhookHandler(reconcileService, processor, cfg.RequestTimeout)
	callbackHandler := h.NewCallbackHandler(reconcileService, cfg.RequestTimeout)
	ordersHandler := h.NewOrdersHandler(ordersService, cfg.RequestTimeout)

	// Outbox poller
	var wg sync.WaitGroup
	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	poller := publisher.NewOutboxPoller(repo, cfg.KafkaBrokers...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(pollerCtx)
	}()

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(h.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(h.AuthMiddleware)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			r.Post("/merge", cartHandler.MergeCart)
		})

		r.Post("/checkout", checkoutHandler.InitiateCheckout)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/webhook", webhookHandler.HandleEvent)
			r.Get("/webhook", webhookHandler.Liveness)
			r.Get("/callback", callbackHandler.HandleReturn)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordersHandler.ListOrders)
			r.Get("/{order_id}", ordersHandler.GetOrder)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP server starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	pollerCancel()
	wg.Wait()

	log.Println("server exited")
}
