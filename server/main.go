package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adspace/api/routes"
	"adspace/internal/app"
	"adspace/internal/notifications"
	"adspace/internal/realtime"
	"adspace/internal/shared/config"
	"adspace/internal/shared/database"
	"adspace/internal/shared/middleware"
	"adspace/pkg/cache"
	"adspace/pkg/logger"
	"adspace/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// @title Ad Space Marketplace API
// @version 1.0
// @description Booking, payment, proof and payout engine for outdoor ad spaces.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize databases", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	cacheService := cache.NewService(db.GetRedisClient())

	// Rate limiting needs Redis for its sliding window
	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled && db.Redis != nil {
		rateLimiter = ratelimit.NewRateLimiter(db.Redis, &ratelimit.Config{
			Enabled:                 cfg.RateLimit.Enabled,
			WindowDuration:          cfg.RateLimit.WindowDuration,
			DefaultRequests:         cfg.RateLimit.DefaultRequests,
			PublicRequests:          cfg.RateLimit.PublicRequests,
			BookingRequests:         cfg.RateLimit.BookingRequests,
			BookingCriticalRequests: cfg.RateLimit.BookingCriticalRequests,
			WebhookRequests:         cfg.RateLimit.WebhookRequests,
			AdminRequests:           cfg.RateLimit.AdminRequests,
			HealthRequests:          cfg.RateLimit.HealthRequests,
			WhitelistedIPs:          cfg.RateLimit.WhitelistedIPs,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := rateLimiter.PreloadScript(ctx); err != nil {
			// Loaded on first use instead
			appLogger.Warn("failed to preload rate limit script", slog.Any("error", err))
		}
		cancel()

		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	hub := realtime.NewHub(appLogger)
	opts := app.Options{Logger: appLogger, Cache: cacheService, Hub: hub}

	// With Kafka, events go through the topic so every instance's hub sees
	// them; the local hub is fed by the consumer group.
	var stream *notifications.Service
	if cfg.Kafka.Enabled {
		stream, err = notifications.NewService(cfg.Kafka, hub, appLogger)
		if err != nil {
			appLogger.Error("Failed to initialize event stream, falling back to local hub", slog.Any("error", err))
			stream = nil
		} else {
			opts.StreamSink = stream.Sink()
		}
	}

	engine, err := app.New(db.GetPostgreSQL(), cfg, opts)
	if err != nil {
		appLogger.Error("failed to build engine", slog.Any("error", err))
		os.Exit(1)
	}

	if stream != nil {
		if err := stream.Start(runCtx); err != nil {
			appLogger.Error("Failed to start event stream", slog.Any("error", err))
		}
		defer func() {
			if err := stream.Stop(); err != nil {
				appLogger.Error("Error stopping event stream", slog.Any("error", err))
			}
		}()
	}

	engine.Start(runCtx)
	defer engine.Stop()

	router := setupRouter(cfg, db, engine, rateLimiter, appLogger)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("swagger", fmt.Sprintf("http://localhost:%s/swagger/index.html", cfg.Port)),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.Bool("redis_cache", db.Redis != nil),
			slog.Bool("kafka", stream != nil),
			slog.Bool("rate_limiting", rateLimiter != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, db *database.DB, engine *app.Engine, rateLimiter *ratelimit.RateLimiter, appLogger *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestLogger(appLogger), gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID", "X-RateLimit-*"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		router.Use(ratelimit.Middleware(rateLimiter, appLogger))
	}

	routes.NewRouter(cfg, db, engine).SetupRoutes(router)
	return router
}
