package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zfogg/pulsefeed/backend/internal/cache"
	"github.com/zfogg/pulsefeed/backend/internal/config"
	"github.com/zfogg/pulsefeed/backend/internal/database"
	"github.com/zfogg/pulsefeed/backend/internal/handlers"
	"github.com/zfogg/pulsefeed/backend/internal/logger"
	"github.com/zfogg/pulsefeed/backend/internal/metrics"
	"github.com/zfogg/pulsefeed/backend/internal/middleware"
	"github.com/zfogg/pulsefeed/backend/internal/telemetry"
	"github.com/zfogg/pulsefeed/backend/internal/trends"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables before anything reads them
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== Pulsefeed trend engine starting ===")

	// Initialize database
	if err := database.Initialize(); err != nil {
		logger.FatalWithFields("Failed to initialize database", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	metrics.Initialize()

	// Tracing (optional)
	samplingRate := 1.0
	if env := os.Getenv("OTEL_SAMPLING_RATE"); env != "" {
		if parsed, err := strconv.ParseFloat(env, 64); err == nil {
			samplingRate = parsed
		}
	}
	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  "pulsefeed-trends",
		Environment:  os.Getenv("ENVIRONMENT"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Enabled:      os.Getenv("TRACING_ENABLED") == "true",
		SamplingRate: samplingRate,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing, continuing without it", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	// Redis response cache (optional)
	var redisClient *cache.RedisClient
	if os.Getenv("REDIS_HOST") != "" {
		redisClient, err = cache.NewRedisClient(
			os.Getenv("REDIS_HOST"),
			os.Getenv("REDIS_PORT"),
			os.Getenv("REDIS_PASSWORD"),
		)
		if err != nil {
			logger.Warn("Redis unavailable, serving without response cache", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// Wire the engine
	cfg := config.Load()
	store := trends.NewStore(database.DB)
	job := trends.NewJob(database.DB, cfg, redisClient)
	query := trends.NewQuery(database.DB, redisClient, cfg.CacheTTL)
	h := handlers.NewHandlers(store, job, query)

	// Background refresh loop
	refresher := trends.NewRefresher(job, cfg.RefreshInterval)
	refresher.Start()
	defer refresher.Stop()

	// Setup Gin router
	gin.SetMode(getGinMode())
	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // Configure properly for production
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "X-Request-ID"}
	r.Use(cors.New(corsConfig))

	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(otelgin.Middleware("pulsefeed-trends"))
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if err := database.Health(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"service":   "pulsefeed-trends",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := r.Group("/api/v1")
	{
		trending := api.Group("/trending")
		{
			trending.GET("", h.GetTrending)
			trending.POST("/recompute", h.RecomputeTrends)
			trending.GET("/job-state", h.GetTrendJobState)
			trending.POST("/signals", h.IngestSignals)
		}
	}

	// Server configuration
	port := os.Getenv("PORT")
	if port == "" {
		port = "8787"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("Pulsefeed backend listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithFields("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.FatalWithFields("Server forced to shutdown", err)
	}

	logger.Log.Info("Server exited")
}

func getGinMode() string {
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		return mode
	}
	return gin.ReleaseMode
}
