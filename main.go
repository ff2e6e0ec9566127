package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"playlistfetch/config"
	"playlistfetch/internal/handler"
	"playlistfetch/internal/model"
	"playlistfetch/internal/service"
	"playlistfetch/internal/storage"
	"playlistfetch/pkg/logger"
	"playlistfetch/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting playlist fetch server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("fanout_limit", cfg.Fanout.ConcurrencyLimit),
		zap.Ints("allowed_heights", cfg.Formats.AllowedHeights),
	)

	storageManager := storage.NewManager(&cfg.Storage)
	if err := storageManager.EnsureDownloadDir(); err != nil {
		logger.Logger.Fatal("Failed to create download directory", zap.Error(err))
	}
	storageManager.Start()
	defer storageManager.Stop()

	sessions := storage.NewSessionStore(time.Duration(cfg.Storage.SessionTTLSeconds) * time.Second)
	sessions.Start(time.Minute)
	defer sessions.Stop()

	videoService := service.NewVideoService(
		cfg.Worker.Host,
		cfg.Worker.Port,
		cfg.Worker.Timeout,
		cfg.Security.AllowedDomains,
	)
	downloadService := service.NewDownloadService(
		cfg.Worker.Host,
		cfg.Worker.Port,
		cfg.Worker.DownloadTimeout,
		cfg.Storage.MaxVideoSizeMB,
	)

	fanout := service.NewFanout(videoService, time.Duration(cfg.Fanout.TaskTimeoutSeconds)*time.Second, nil)
	filter := service.NewFormatFilter(cfg.Formats.Container, cfg.Formats.AllowedHeights)
	orchestrator := service.NewOrchestrator(downloadService, storageManager, orchestratorOptions(cfg, videoService))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinLogger())

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewIPRateLimiter(&cfg.RateLimit)
		router.Use(middleware.RateLimitMiddleware(limiter))
		go pruneLimiter(limiter)
		logger.Logger.Info("Rate limiting enabled", zap.Int("requests_per_minute", cfg.RateLimit.RequestsPerMinute))
	}

	playlistHandler := handler.NewPlaylistHandler(videoService, fanout, filter, orchestrator, sessions, storageManager, cfg)
	fileHandler := handler.NewFileHandler(storageManager)

	api := router.Group("/api")
	{
		api.POST("/playlists", playlistHandler.Resolve)
		api.GET("/playlists/:id", playlistHandler.Get)
		api.POST("/playlists/:id/runs", playlistHandler.StartRun)
		api.POST("/playlists/:id/runs/:run/retry", playlistHandler.Retry)

		api.GET("/files/:id", fileHandler.GetFile)

		api.GET("/health", playlistHandler.HealthCheck)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.Server.Timeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Logger.Info("Server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Logger.Info("Server stopped")
}

func orchestratorOptions(cfg *model.Config, prober service.Resolver) service.OrchestratorOptions {
	opts := service.OrchestratorOptions{RetryRounds: cfg.Orchestrator.RetryRounds}
	if cfg.Orchestrator.Reprobe {
		opts.Prober = prober
	}
	return opts
}

func pruneLimiter(limiter *middleware.IPRateLimiter) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for now := range ticker.C {
		if removed := limiter.Prune(now); removed > 0 {
			logger.Logger.Debug("Rate limiter pruned", zap.Int("removed", removed))
		}
	}
}
