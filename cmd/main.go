package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"billpay-processing-system/internal/adapters/auth/opa"
	"billpay-processing-system/internal/adapters/gateway"
	httphandler "billpay-processing-system/internal/adapters/http"
	"billpay-processing-system/internal/adapters/messaging/kafka"
	"billpay-processing-system/internal/adapters/storage/postgres"
	"billpay-processing-system/internal/adapters/storage/redis"
	"billpay-processing-system/internal/app"
	"billpay-processing-system/internal/auth"
	"billpay-processing-system/internal/config"
	"billpay-processing-system/internal/idempotency"
	"billpay-processing-system/internal/observability"
	"billpay-processing-system/internal/rewards"
)

const serviceName = "billpay-gateway"

func main() {
	// --- 1. Configuration and Logging ---
	fallbackLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fallbackLogger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg.App.Env)
	logger.Info("Application starting", "env", cfg.App.Env, "port", cfg.Server.Port)

	// --- 2. Validate critical config ---
	jwtSecret := cfg.JWT.Secret
	if jwtSecret == "" {
		logger.Error("JWT secret is not set")
		os.Exit(1)
	}

	// --- 3. Observability ---
	shutdownTracer, err := observability.InitTracer(cfg.Jaeger.Port, serviceName)
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("Failed to shutdown tracer", "error", err)
		}
	}()

	// --- 4. Storage and messaging ---
	ctx := context.Background()

	repo, err := postgres.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("Connected to PostgreSQL")

	rateLimiterRepo, err := redis.NewRateLimiterAdapter(cfg.Redis.Addr)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rateLimiterRepo.Close(); err != nil {
			logger.Warn("Failed to close Redis rate limiter", "error", err)
		}
	}()

	idemStore, err := redis.NewIdempotencyAdapter(cfg.Redis.Addr)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := idemStore.Close(); err != nil {
			logger.Warn("Failed to close Redis idempotency store", "error", err)
		}
	}()

	broker, err := kafka.NewBroker(
		[]string{cfg.Kafka.BootstrapServers},
		cfg.Kafka.SettledTopic,
		cfg.Kafka.RewardTopic,
		cfg.Kafka.ReconcileTopic,
		logger,
	)
	if err != nil {
		logger.Error("Failed to create Kafka broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()
	logger.Info("Kafka broker created")

	// --- 5. Collaborator clients ---
	collabTimeout := time.Duration(cfg.Collaborators.TimeoutSeconds) * time.Second
	gatewayClient := gateway.NewHTTPGateway(cfg.Collaborators.GatewayURL, collabTimeout)
	billClient := gateway.NewBillClient(cfg.Collaborators.BillsURL, collabTimeout)
	otpClient := gateway.NewOTPClient(cfg.Collaborators.OTPURL, collabTimeout)

	// --- 6. Service layer ---
	guard := idempotency.NewGuard(idemStore)
	rewardEngine := rewards.NewEngine(repo, billClient, logger)
	orchestrator := app.NewOrchestrator(repo, guard, repo.Cards(), gatewayClient, billClient, otpClient, rewardEngine, broker, logger)
	cardManager := app.NewCardManager(repo.Cards(), gatewayClient, logger)

	paymentHandler := httphandler.NewPaymentHandler(orchestrator, logger)
	rewardsHandler := httphandler.NewRewardsHandler(rewardEngine, logger)
	cardsHandler := httphandler.NewCardsHandler(cardManager, logger)
	rateLimiterMiddleware := httphandler.NewRateLimiterMiddleware(
		rateLimiterRepo,
		cfg.RateLimit.Limit,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		logger,
	)
	opaMiddleware := opa.NewMiddleware(cfg.OPA.URL, logger)
	oauthServer := auth.NewAuthorizationServer(jwtSecret, cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.Domain, logger)

	// --- 7. HTTP router ---
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		rateLimiterMiddleware.Handler,
		middleware.Logger,
		middleware.Recoverer,
		observability.NewLoggerMiddleware(logger),
		observability.NewMetricsMiddleware(serviceName),
		observability.NewTracingMiddleware(serviceName),
	)

	r.Post("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := oauthServer.HandleTokenRequest(w, r); err != nil {
			logger.Error("failed to handle token request", "error", err)
		}
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": serviceName,
		}); err != nil {
			logger.Error("Failed to write health response", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			httphandler.JWTMiddleware([]byte(jwtSecret), logger),
			opaMiddleware.Authorize,
		)
		r.Post("/payments", paymentHandler.HandleCreatePayment)
		r.Get("/payments", paymentHandler.HandleListPayments)

		r.Get("/rewards", rewardsHandler.HandleGetRewards)
		r.Get("/rewards/transactions", rewardsHandler.HandleListRewardTransactions)
		r.Post("/rewards/redeem", rewardsHandler.HandleRedeem)

		r.Post("/cards", cardsHandler.HandleAddCard)
		r.Get("/cards", cardsHandler.HandleListCards)
		r.Delete("/cards/{cardID}", cardsHandler.HandleRemoveCard)
		r.Post("/cards/{cardID}/primary", cardsHandler.HandleSetPrimary)
	})

	// --- 8. HTTP server ---
	serverAddr := cfg.Server.Port
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 40 * time.Second, // payment settlement can hold a request through gateway retries
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exited properly")
}
