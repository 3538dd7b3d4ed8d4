package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	httpAdapter "github.com/lorrc/pipeline-snapshots/internal/adapters/primary/http"
	mw "github.com/lorrc/pipeline-snapshots/internal/adapters/primary/http/middleware"
	"github.com/lorrc/pipeline-snapshots/internal/adapters/primary/websocket"
	"github.com/lorrc/pipeline-snapshots/internal/adapters/secondary/cache"
	"github.com/lorrc/pipeline-snapshots/internal/adapters/secondary/postgres"
	"github.com/lorrc/pipeline-snapshots/internal/auth"
	"github.com/lorrc/pipeline-snapshots/internal/config"
	"github.com/lorrc/pipeline-snapshots/internal/core/services"
	"github.com/lorrc/pipeline-snapshots/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	palette, err := config.LoadPalette(cfg.Snapshot.PaletteFile)
	if err != nil {
		slog.Error("failed to load palette", "error", err, "path", cfg.Snapshot.PaletteFile)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		AddSource:   cfg.Logging.AddSource,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"timezone", cfg.Snapshot.Timezone,
	)

	// 3. Initialize Database Pool
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.MigrationsPath != "" {
		applied, err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath)
		if err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations checked", "applied", applied)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply database configuration
	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	// 4. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// 5. Initialize Rate Limiters
	var generalRateLimiter, captureRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		defer generalRateLimiter.Stop()

		captureConfig := mw.CaptureRateLimiterConfig()
		captureConfig.RequestsPerSecond = cfg.RateLimit.CaptureRPS
		captureConfig.BurstSize = cfg.RateLimit.CaptureBurst
		captureRateLimiter = mw.NewRateLimiter(captureConfig)
		defer captureRateLimiter.Stop()
	}

	// 6. Dependency Injection (Wiring the Hexagon)

	// Error Handler
	errorHandler := httpAdapter.NewErrorHandler(logger)

	// Repositories (Secondary Adapters)
	txManager := postgres.NewTransactionManager(pool)
	snapshotRepo := postgres.NewSnapshotRepository(pool, txManager)
	detailRepo := postgres.NewTicketDetailRepository(pool, txManager)

	// Detail cache and fetch coalescing
	detailCache := cache.NewDetailCache(cfg.Snapshot.DetailCacheSize, cfg.Snapshot.DetailCacheTTL)
	detailFetcher := cache.NewCoalescingFetcher(detailRepo)

	// Services (Core)
	snapshotService := services.NewSnapshotService(snapshotRepo, hub, logger, services.SnapshotOptions{
		KeeperID: cfg.Snapshot.KeeperID,
		Location: cfg.Snapshot.Location(),
	})
	drillDownService := services.NewDrillDownService(snapshotRepo, detailFetcher, detailCache, logger, services.DrillDownOptions{
		MaxVisible: cfg.Snapshot.MaxVisible,
		Locale:     cfg.Snapshot.Locale,
		Palette:    palette,
		Location:   cfg.Snapshot.Location(),
	})
	detailService := services.NewTicketDetailService(detailRepo, detailCache, logger)

	// Handlers (Primary Adapters)
	var captureLimit func(http.Handler) http.Handler
	if captureRateLimiter != nil {
		captureLimit = captureRateLimiter.Middleware
	}
	drillDownHandler := httpAdapter.NewDrillDownHandler(drillDownService, errorHandler, logger)
	snapshotHandler := httpAdapter.NewSnapshotHandler(snapshotService, drillDownHandler, captureLimit, errorHandler, logger)
	detailHandler := httpAdapter.NewTicketDetailHandler(detailService, errorHandler, logger)
	wsHandler := httpAdapter.NewWebSocketHandler(hub, httpAdapter.WebSocketConfig{
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		IsDevelopment:   cfg.IsDevelopment(),
	}, errorHandler, logger)
	healthHandler := httpAdapter.NewHealthHandler(pool, cfg.App.Version).WithDetailCache(detailCache)

	// 7. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints (outside /api/v1 for standard probe paths)
	healthHandler.RegisterRoutes(r)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.JWTMiddleware(tokenManager))

		// Keyed by user once the token is known
		if generalRateLimiter != nil {
			r.Use(generalRateLimiter.Middleware)
		}

		r.Get("/ws", wsHandler.ServeHTTP)
		r.Route("/snapshots", snapshotHandler.RegisterRoutes)
		r.Mount("/ticket-details", detailHandler.Router())
	})

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for a signal or a server failure
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	hits, misses := detailCache.Stats()
	logger.Info("server shutdown complete", "detail_cache_hits", hits, "detail_cache_misses", misses)
}
