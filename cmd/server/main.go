// Prompt Lab demo server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/promptlab/internal/admin"
	"github.com/ashureev/promptlab/internal/api"
	"github.com/ashureev/promptlab/internal/app"
	"github.com/ashureev/promptlab/internal/config"
	"github.com/ashureev/promptlab/internal/events"
	"github.com/ashureev/promptlab/internal/identity"
	"github.com/ashureev/promptlab/internal/metrics"
	"github.com/ashureev/promptlab/internal/middleware"
	"github.com/ashureev/promptlab/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	a, err := app.New(ctx, cfg, m, logger)
	if err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("Failed to close services", "error", closeErr)
		}
	}()

	if err := a.Repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	registry := events.NewRegistry(m)

	// Initialize handlers.
	textHandler := api.NewTextHandler(a.Calculator, a.Transformer)
	chainHandler := api.NewChainHandler(a.Chains)
	healthHandler := api.NewHealthHandler(a.Repo, cfg)
	wsHandler := events.NewHandler(a.Calculator, a.Transformer, a.Chains, registry, cfg.AllowedOrigins, cfg.IsDevelopment())
	var toolsHandler *api.ToolsHandler
	if a.Tools != nil {
		wsHandler.WithTools(a.Tools)
		toolsHandler = api.NewToolsHandler(a.Tools)
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterRoutes(r)
	r.Handle("/metrics", m.Handler())

	// Model-backed routes share the per-caller limit.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))
		textHandler.RegisterRoutes(r)
		chainHandler.RegisterRoutes(r)
		if toolsHandler != nil {
			toolsHandler.RegisterRoutes(r)
		}
		wsHandler.RegisterRoutes(r)
	})

	// Serve embedded demo page (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WebSocket connections are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			slog.Error("Failed to listen for admin gRPC", "error", err)
			os.Exit(1)
		}
		adminSrv := admin.New(a.Repo, admin.Options{Logger: logger, Metrics: m})
		g.Go(func() error {
			return adminSrv.Serve(gctx, lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		registry.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
