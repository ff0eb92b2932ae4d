package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/homewatch/homewatch/internal/cache"
	"github.com/homewatch/homewatch/internal/config"
	"github.com/homewatch/homewatch/internal/db"
	dbMemory "github.com/homewatch/homewatch/internal/db/memory"
	dbRedis "github.com/homewatch/homewatch/internal/db/redis"
	"github.com/homewatch/homewatch/internal/domain"
	"github.com/homewatch/homewatch/internal/fanout"
	logpkg "github.com/homewatch/homewatch/internal/logger"
	"github.com/homewatch/homewatch/internal/metrics"
	"github.com/homewatch/homewatch/internal/notify"
	"github.com/homewatch/homewatch/internal/pattern"
	"github.com/homewatch/homewatch/internal/pipeline"
	"github.com/homewatch/homewatch/internal/sched"
	"github.com/homewatch/homewatch/internal/search"
	"github.com/homewatch/homewatch/internal/session"
	"github.com/homewatch/homewatch/internal/stream"
	chiTransport "github.com/homewatch/homewatch/internal/transport/chi"
	"github.com/homewatch/homewatch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting homewatch pipeline",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	// Create cache store based on driver
	var store db.Store
	switch cfg.Database.Driver {
	case "memory":
		store = dbMemory.NewStore()
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create cache store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Cache store not ready", zap.Error(err))
	}

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Composition root
	clock := sched.NewClock()
	tracker := metrics.NewTracker()
	hub := session.NewHub()
	patterns := pattern.NewTracker()

	engine := search.NewClient(search.Config{
		BaseURL: cfg.Search.BaseURL,
		APIKey:  cfg.Search.APIKey,
		Timeout: cfg.Search.Timeout(),
	}, logger)

	resultCache := cache.New(store, patterns, engine, clock, cache.Config{
		TTL:           cfg.Cache.TTL(),
		PreloadDelay:  cfg.Cache.PreloadDelay(),
		SearchTimeout: cfg.Cache.SearchTimeout(),
		KeyPrefix:     cfg.Cache.KeyPrefix,
	}, logger)

	dispatcher := notify.New(hub, tracker, clock, logger)
	dispatcher.RegisterSender(domain.ChannelPush, notify.NewLogSender(domain.ChannelPush, logger))
	dispatcher.RegisterSender(domain.ChannelEmail, notify.NewLogSender(domain.ChannelEmail, logger))
	dispatcher.RegisterSender(domain.ChannelSMS, notify.NewLogSender(domain.ChannelSMS, logger))

	registry := stream.NewRegistry(resultCache, patterns, engine, engine, dispatcher, tracker, clock, stream.Config{
		SearchTimeout:         cfg.Pipeline.SearchTimeout(),
		MaxConcurrentSearches: cfg.Pipeline.MaxConcurrentSearches,
		ExceptionalScore:      cfg.Pipeline.ExceptionalScore,
		PreloadEnabled:        cfg.Cache.PreloadEnabled,
	}, logger)

	updates := fanout.New(registry, dispatcher, tracker, clock, fanout.Config{
		PriceDropPct:    cfg.Pipeline.PriceDropPct,
		PriceDropFloor:  cfg.Pipeline.PriceDropFloor,
		MatchThreshold:  cfg.Pipeline.MatchThreshold,
		UrgentThreshold: cfg.Pipeline.UrgentThreshold,
		UpdateLogSize:   cfg.Pipeline.UpdateLogSize,
	}, logger)

	pipe := pipeline.New(registry, updates, dispatcher, resultCache, tracker, clock, pipeline.Config{
		SweepInterval: cfg.Pipeline.SweepInterval(),
		DrainInterval: cfg.Pipeline.DrainInterval(),
	}, logger)
	pipe.StartLoops(ctx)
	defer pipe.StopLoops()

	wsCfg := session.WSConfig{
		SendBuffer:   cfg.WS.SendBuffer,
		PingInterval: time.Duration(cfg.WS.PingIntervalSec) * time.Second,
		ReadTimeout:  time.Duration(cfg.WS.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.WS.WriteTimeoutSec) * time.Second,
	}
	server := chiTransport.NewServer(pipe, hub, store, wsCfg, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
