// Package main is the entry point for the API server.
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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/storebot/internal/config"
	"github.com/capitalize-ai/storebot/internal/facts"
	"github.com/capitalize-ai/storebot/internal/guard"
	"github.com/capitalize-ai/storebot/internal/handler"
	"github.com/capitalize-ai/storebot/internal/intent"
	"github.com/capitalize-ai/storebot/internal/llm"
	"github.com/capitalize-ai/storebot/internal/messaging"
	"github.com/capitalize-ai/storebot/internal/middleware"
	"github.com/capitalize-ai/storebot/internal/model"
	natsclient "github.com/capitalize-ai/storebot/internal/nats"
	"github.com/capitalize-ai/storebot/internal/orchestrator"
	"github.com/capitalize-ai/storebot/internal/prompt"
	"github.com/capitalize-ai/storebot/internal/tool"
	"github.com/capitalize-ai/storebot/pkg/logger"
	"github.com/capitalize-ai/storebot/pkg/tracing"
)

func main() {
	// Load configuration
	_ = godotenv.Load()
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "storebot", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	// Provision the turn stream and tenant/knowledge buckets
	tenantStore, err := natsclient.NewStore(ctx, natsClient)
	if err != nil {
		log.Error("failed to initialize store", zap.Error(err))
		os.Exit(1)
	}

	// Initialize LLM client
	apiKey := cfg.AnthropicAPIKey
	if llm.Provider(cfg.DefaultLLM) == llm.ProviderOpenAI {
		apiKey = cfg.OpenAIAPIKey
	}
	llmClient, err := llm.NewClient(llm.Provider(cfg.DefaultLLM), apiKey)
	if err != nil {
		log.Error("failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}

	// Fact providers and the intent classifier built on them
	marketProvider := facts.NewMarketProvider(cfg.MarketBaseURL)
	weatherProvider := facts.NewWeatherProvider(cfg.WeatherBaseURL, cfg.WeatherAPIKey)
	forexProvider := facts.NewForexProvider(cfg.ForexBaseURL)
	classifier := intent.NewClassifier(marketProvider, weatherProvider, forexProvider, log)

	// Prompt assembly backed by the knowledge bucket
	assembler := prompt.NewAssembler(tenantStore, log)

	// Tool dispatch
	builtins := tool.Builtins{
		Market:  marketProvider,
		Weather: weatherProvider,
		Forex:   forexProvider,
	}
	delegate := tool.NewRemoteDelegate(cfg.ToolCallTimeout)

	orch := orchestrator.New(classifier, assembler, builtins, delegate, llmClient, tenantStore, cfg.MasterTimeout, log)

	// Delivery guards
	deduper := guard.NewDeduper(guard.NewMemoryCache(), cfg.DedupeTTL)
	limiter := guard.NewRateLimiter()

	messenger := messaging.New(cfg.MessagingBaseURL, cfg.ChannelToken)

	// The master tenant is the platform selling itself. It is not
	// stored: its persona comes from configuration.
	masterTenant := &model.Tenant{
		ID:      "master",
		Name:    cfg.MasterName,
		Persona: cfg.MasterPersona,
		Status:  model.TenantActive,
		Plan:    model.PlanPro,
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	webhookHandler := handler.NewWebhookHandler(orch, deduper, tenantStore, messenger, cfg.ChannelSecret, masterTenant, log)
	chatHandler := handler.NewChatHandler(orch, tenantStore, log)
	adminHandler := handler.NewAdminHandler(tenantStore, messenger, limiter, handler.AdminLimits{
		Window:       cfg.GuardWindow,
		BindCeiling:  cfg.BindCeiling,
		BroadcastMax: cfg.BroadcastCeiling,
		ProvisionMax: cfg.ProvisionCeiling,
	}, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Remaining", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Webhook endpoints are authenticated by signature, not JWT
	r.Post("/webhook/master", webhookHandler.ReceiveMaster)
	r.Post("/webhook/{tenantID}", webhookHandler.Receive)

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/chat", chatHandler.Complete)

		r.Route("/tenants", func(r chi.Router) {
			r.Post("/", adminHandler.Provision)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", adminHandler.Get)
				r.Post("/bind", adminHandler.Bind)
				r.Post("/broadcast", adminHandler.Broadcast)
				r.Post("/knowledge", adminHandler.PutKnowledge)
				r.Get("/knowledge", adminHandler.ListKnowledge)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
