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

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/config"
	dbRedis "github.com/clearfreight/hscodex/internal/db/redis"
	"github.com/clearfreight/hscodex/internal/domain"
	logpkg "github.com/clearfreight/hscodex/internal/logger"
	"github.com/clearfreight/hscodex/internal/metrics"
	conversationrepo "github.com/clearfreight/hscodex/internal/repository/conversation"
	"github.com/clearfreight/hscodex/internal/repository/embcache"
	"github.com/clearfreight/hscodex/internal/repository/taxonomy"
	chiTransport "github.com/clearfreight/hscodex/internal/transport/chi"
	openaiTransport "github.com/clearfreight/hscodex/internal/transport/openai"
	"github.com/clearfreight/hscodex/internal/usecase/analyze"
	classifyuc "github.com/clearfreight/hscodex/internal/usecase/classify"
	conversationuc "github.com/clearfreight/hscodex/internal/usecase/conversation"
	healthuc "github.com/clearfreight/hscodex/internal/usecase/health"
	retrieveuc "github.com/clearfreight/hscodex/internal/usecase/retrieve"
	rulesuc "github.com/clearfreight/hscodex/internal/usecase/rules"
	"github.com/clearfreight/hscodex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()
	cfg := config.MustLoad(env)

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting hscodex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterCompletionMetrics()
	metrics.RegisterPipelineMetrics()

	taxRepo := taxonomy.New(store, cfg.Storage.IndexName, cfg.Embedding.Dimensions).
		WithKeywordizer(analyze.Tokenize)
	if err := taxRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure taxonomy index", zap.Error(err))
	}

	embedder := buildEmbedder(cfg.Embedding, store, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	completer := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
		APIKey:    cfg.Completion.APIKey,
		BaseURL:   cfg.Completion.BaseURL,
		Model:     cfg.Completion.Model,
		Provider:  "openai",
		Timeout:   time.Duration(cfg.Completion.TimeoutSec) * time.Second,
		MaxTokens: cfg.Completion.MaxTokens,
		Logger:    logger,
	})

	engine, err := rulesuc.NewFromDir(cfg.Rules.Dir, logger)
	if err != nil {
		logger.Fatal("Failed to load rule sets", zap.Error(err))
	}

	retriever := retrieveuc.New(taxRepo, embedder, retrieveuc.Config{
		SimilarityFloor:   cfg.Pipeline.SimilarityFloor,
		VectorTopK:        cfg.Pipeline.VectorTopK,
		ChildDecay:        cfg.Pipeline.ChildDecay,
		DescendantDecay:   cfg.Pipeline.DescendantDecay,
		ExpandDescendants: boolOr(cfg.Pipeline.ExpandDescendants, false),
		SubjectBoost:      cfg.Pipeline.SubjectBoost,
		ContextPenalty:    cfg.Pipeline.ContextPenalty,
	}, logger)

	classifier := classifyuc.New(retriever, engine, completer, taxRepo, classifyuc.Config{
		SimilarityFloor:     cfg.Pipeline.SimilarityFloor,
		RelevanceFloor:      cfg.Pipeline.RelevanceFloor,
		RelevanceEnabled:    boolOr(cfg.Pipeline.RelevanceEnabled, true),
		RelevanceParallel:   cfg.Pipeline.RelevanceParallel,
		CatchAllCeiling:     cfg.Pipeline.CatchAllCeiling,
		CatchAllSwapPenalty: cfg.Pipeline.CatchAllSwapPenalty,
		MaxAlternatives:     cfg.Pipeline.MaxAlternatives,
	}, logger)

	convRepo := conversationrepo.New(store, time.Duration(cfg.Conversation.TTLHours)*time.Hour)
	manager := conversationuc.New(classifier, convRepo, engine, completer, conversationuc.Config{
		ConfidenceThreshold: cfg.Conversation.ConfidenceThreshold,
		MaxQuestions:        cfg.Conversation.MaxQuestions,
		MaxTurns:            cfg.Conversation.MaxTurns,
	}, logger)

	healthSvc := healthuc.New(store, newProviderHealthChecker(embedder))

	server := chiTransport.NewServer(classifier, manager, healthSvc, logger)
	router := server.Router(cfg.Auth.APIKeys,
		jsonRecoverer(logger),
		wideEventMiddleware(logger),
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
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

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction
func buildEmbedder(cfg config.EmbeddingConfig, store *dbRedis.Store, logger *zap.Logger) domain.Embedder {
	// Base provider (with transport metrics built-in)
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})

	if boolOr(cfg.CacheEnabled, true) {
		embedder = embcache.New(embedder, store, cfg.Model, metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix (outermost — cache key includes the instruction)
	if cfg.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(embedder, cfg.QueryInstruction)
	}

	return embedder
}

// providerHealthChecker wraps domain.Embedder to implement health.ProviderChecker.
type providerHealthChecker struct {
	embedder domain.Embedder
}

func newProviderHealthChecker(embedder domain.Embedder) *providerHealthChecker {
	return &providerHealthChecker{embedder: embedder}
}

func (h *providerHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
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
