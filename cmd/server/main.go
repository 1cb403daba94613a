package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Brownie44l1/alz-api/internal/cache"
	"github.com/Brownie44l1/alz-api/internal/config"
	"github.com/Brownie44l1/alz-api/internal/handlers"
	"github.com/Brownie44l1/alz-api/internal/logging"
	"github.com/Brownie44l1/alz-api/internal/model"
	"github.com/Brownie44l1/alz-api/internal/predict"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, closeModel := loadModel(cfg)
	defer closeModel()

	var rdb *redis.Client
	if cfg.CacheEnabled() {
		rdb, err = cache.NewRedisClient(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			slog.Warn("Redis unavailable, running without cache", "error", err)
			rdb = nil
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					slog.Error("Failed to close Redis client", "error", err)
				}
			}()
		}
	}

	svc := cache.NewCachingPredictor(rdb, cfg.CacheTTL, predict.NewService(host), cfg.CacheNamespace)
	router := handlers.NewRouter(handlers.NewHandler(svc))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("Shutting down", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Server starting",
		"addr", cfg.Addr,
		"model_loaded", svc.Available(),
		"cache", rdb != nil,
		"classes", model.Labels,
	)
	slog.Info("Endpoint", "route", "GET /", "description", "liveness")
	slog.Info("Endpoint", "route", "POST /predict", "description", "classify multipart field 'file'")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
}

// loadModel never fails the process: a missing or broken artifact leaves the
// server running with every prediction rejected.
func loadModel(cfg *config.Config) (model.Host, func()) {
	slog.Info("Loading model", "path", cfg.ModelPath)

	s, err := model.Load(model.Options{
		Path:              cfg.ModelPath,
		SharedLibraryPath: cfg.OnnxRuntimeLib,
		InputName:         cfg.ModelInputName,
		OutputName:        cfg.ModelOutputName,
	})
	if err != nil {
		slog.Error("Model unavailable, predictions will be rejected", "path", cfg.ModelPath, "error", err)
		return model.Unavailable(err), func() {}
	}

	in, out := s.Endpoints()
	slog.Info("Model loaded", "path", cfg.ModelPath, "input", in, "output", out)
	return model.Loaded(s), s.Close
}
