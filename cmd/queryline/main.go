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
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/louper-cloud/queryline/internal/config"
	"github.com/louper-cloud/queryline/internal/domain/policy"
	logpkg "github.com/louper-cloud/queryline/internal/logger"
	"github.com/louper-cloud/queryline/internal/metrics"
	mongorepo "github.com/louper-cloud/queryline/internal/repository/mongo"
	chiTransport "github.com/louper-cloud/queryline/internal/transport/chi"
	openaiClient "github.com/louper-cloud/queryline/internal/transport/openai"
	extractuc "github.com/louper-cloud/queryline/internal/usecase/extract"
	healthuc "github.com/louper-cloud/queryline/internal/usecase/health"
	translateuc "github.com/louper-cloud/queryline/internal/usecase/translate"
	validateuc "github.com/louper-cloud/queryline/internal/usecase/validate"
	"github.com/louper-cloud/queryline/internal/version"
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

	logger.Info("Starting queryline API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_name", cfg.Database.Name),
		zap.String("model", cfg.Model.Name),
	)

	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Database.URI))
	if err != nil {
		logger.Fatal("Failed to create MongoDB client", zap.Error(err))
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if err := waitForMongo(ctx, client, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("MongoDB not ready", zap.Error(err))
	}
	logger.Info("Connected to MongoDB")

	// Register metrics explicitly (no init())
	metrics.RegisterModelMetrics()
	metrics.RegisterPipelineMetrics()

	// Immutable query policy — the sole enforcement point before execution.
	pol, err := policy.New(
		cfg.Policy.AllowedCollections,
		cfg.Policy.AllowedOperations,
		cfg.Policy.ForbiddenOperators,
		cfg.Policy.MaxPayloadDepth,
	)
	if err != nil {
		logger.Fatal("Invalid query policy", zap.Error(err))
	}
	logger.Info("Query policy loaded",
		zap.Strings("collections", pol.Collections()),
		zap.Int("max_payload_depth", pol.MaxPayloadDepth()),
	)

	model := openaiClient.NewClient(&openaiClient.Config{
		APIKey:      cfg.Model.APIKey,
		BaseURL:     cfg.Model.BaseURL,
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
		Timeout:     time.Duration(cfg.Model.TimeoutSec) * time.Second,
		Logger:      logger,
	})

	executor := mongorepo.New(client.Database(cfg.Database.Name), mongorepo.Config{
		MaxResults:     cfg.Translate.MaxResults,
		MaxResultBytes: cfg.Translate.MaxResultBytes,
		Timeout:        time.Duration(cfg.Translate.ExecTimeoutSec) * time.Second,
	})

	translateSvc := translateuc.New(
		model,
		extractuc.New(),
		validateuc.New(pol),
		executor,
		translateuc.NewPromptBuilder(cfg.Translate.SchemaHints),
		time.Duration(cfg.Translate.DeadlineSec)*time.Second,
		cfg.Translate.DefaultCollection,
	)

	healthSvc := healthuc.New(executor, model)

	server := chiTransport.NewServer(translateSvc, healthSvc, cfg.Database.Name, cfg.Model.Name, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

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

// waitForMongo pings until the deadline, backing off between attempts.
func waitForMongo(ctx context.Context, client *mongo.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = client.Ping(pingCtx, readpref.Primary())
		pingCancel()
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("mongo readiness: %w (last ping: %v)", ctx.Err(), lastErr)
		case <-time.After(500 * time.Millisecond):
		}
	}
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
						"status":  "error",
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
