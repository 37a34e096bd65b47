package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	aahttp "github.com/askadmit/askadmit/internal/adapter/http"
	aanats "github.com/askadmit/askadmit/internal/adapter/nats"
	"github.com/askadmit/askadmit/internal/adapter/neograph"
	"github.com/askadmit/askadmit/internal/adapter/openai"
	aaotel "github.com/askadmit/askadmit/internal/adapter/otel"
	"github.com/askadmit/askadmit/internal/adapter/postgres"
	"github.com/askadmit/askadmit/internal/adapter/ristretto"
	"github.com/askadmit/askadmit/internal/config"
	"github.com/askadmit/askadmit/internal/dispatch"
	"github.com/askadmit/askadmit/internal/domain/answer"
	"github.com/askadmit/askadmit/internal/logger"
	"github.com/askadmit/askadmit/internal/resilience"
	"github.com/askadmit/askadmit/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closeLog.Close()

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"verify_mode", cfg.Verification.Mode,
		"max_concurrent", cfg.Dispatch.MaxConcurrent,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownOtel, err := aaotel.Init(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(sctx)
	}()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	publisher, err := aanats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = publisher.Close() }()

	graphClient := neograph.New(cfg.Graph)
	if err := graphClient.Ping(ctx); err != nil {
		return fmt.Errorf("graph store: %w", err)
	}
	log.Info("graph store reachable", "url", cfg.Graph.URL)

	modelClient, err := openai.New(cfg.Model)
	if err != nil {
		return fmt.Errorf("model client: %w", err)
	}

	responseCache, err := ristretto.New(cfg.Cache.MaxSizeMB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer responseCache.Close()

	// --- Dispatch ---

	breakers := resilience.NewRegistry(cfg.Breaker.MaxFailures, cfg.Breaker.RecoveryTimeout, cfg.Breaker.HalfOpenMaxCalls)
	dispatcher := dispatch.New(cfg.Dispatch, modelClient, breakers, log)
	defer dispatcher.Close()

	metrics, err := aaotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	gateway := service.NewModelGateway(dispatcher, responseCache, cfg.Cache, log)
	gateway.SetOnHit(func(purpose string) {
		metrics.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("purpose", purpose)))
	})
	gateway.SetOnCall(func(purpose string, callErr error) {
		attrs := metric.WithAttributes(attribute.String("purpose", purpose))
		metrics.ModelCalls.Add(ctx, 1, attrs)
		if errors.Is(callErr, resilience.ErrCircuitOpen) {
			metrics.CircuitOpens.Add(ctx, 1, attrs)
		}
	})

	// --- Services ---

	history := postgres.NewStore(pool)
	classifier := service.NewClassifierService(gateway, log)
	validator := service.NewValidatorService(gateway, graphClient, cfg.Validator, log)
	scorer := service.NewScorerService(gateway, log)
	enricher := service.NewEnrichmentService(gateway, validator, scorer, cfg.Enrichment, log)
	verifier := service.NewVerifierService(gateway, cfg.Verification, log)
	engine := service.NewEngineService(classifier, validator, scorer, enricher, verifier, gateway, history, publisher, log)
	engine.SetOnProcessed(func(a *answer.Answer) {
		attrs := metric.WithAttributes(attribute.String("category", string(a.Classification.Category)))
		metrics.QuestionsProcessed.Add(ctx, 1, attrs)
		if a.Degraded {
			metrics.QuestionsDegraded.Add(ctx, 1, attrs)
		}
		metrics.EnrichmentSteps.Add(ctx, int64(len(a.Steps)))
		metrics.ProcessingDuration.Record(ctx, a.ProcessingTime.Seconds(), attrs)
		if n := len(a.ScoreHistory); n > 0 {
			metrics.ContextScore.Record(ctx, a.ScoreHistory[n-1].Score)
		}
	})

	// --- HTTP ---

	handlers := aahttp.NewHandlers(engine, log)
	handlers.AddHealthCheck("postgres", pool.Ping)
	handlers.AddHealthCheck("graph", graphClient.Ping)
	router := aahttp.NewRouter(handlers, cfg.Server, log)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
