package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/tor-evaluator/internal/application"
	appevaluation "github.com/bryanwahyu/tor-evaluator/internal/application/evaluation"
	appguidelines "github.com/bryanwahyu/tor-evaluator/internal/application/guidelines"
	"github.com/bryanwahyu/tor-evaluator/internal/bootstrap"
	"github.com/bryanwahyu/tor-evaluator/internal/config"
	"github.com/bryanwahyu/tor-evaluator/internal/infra/ai/prompt"
	"github.com/bryanwahyu/tor-evaluator/internal/infra/document"
	"github.com/bryanwahyu/tor-evaluator/internal/infra/httpserver"
	"github.com/bryanwahyu/tor-evaluator/internal/infra/logging"
	minioStore "github.com/bryanwahyu/tor-evaluator/internal/infra/storage"
	"github.com/bryanwahyu/tor-evaluator/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	stores, err := bootstrap.OpenStores(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	llm, err := bootstrap.LLMClient(cfg)
	if err != nil {
		return err
	}

	clock := application.SystemClock{}

	guidelineSvc := &appguidelines.Service{
		Orgs:       stores.Organizations,
		Guidelines: stores.Guidelines,
		Audit:      stores.Audit,
		Clock:      clock,
		Logger:     logger.Named("guidelines"),
	}

	orchestrator := &appevaluation.Orchestrator{
		Client:      llm,
		Prompts:     prompt.AnalysesWithMaxTokens(cfg.LLM.MaxTokens),
		CallTimeout: cfg.LLM.CallTimeout,
		Logger:      logger.Named("orchestrator"),
	}
	if cfg.LLM.Summarize {
		orchestrator.ProposalSummary = prompt.ProposalSummary()
		orchestrator.TorSummary = prompt.TorSummary()
	}

	evalSvc := &appevaluation.Service{
		Guidelines: guidelineSvc,
		Analyzer:   orchestrator,
		Sessions:   stores.Sessions,
		Extractor:  document.PlainText{},
		LLM:        orchestrator,
		Followup:   prompt.Followup(),
		Clock:      clock,
		Logger:     logger.Named("evaluation"),
		Deadline:   cfg.LLM.EvaluationDeadline,
	}

	checkers := stores.Checkers()

	// init minio
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		evalSvc.Documents = store
		checkers["minio"] = middleware.CheckFunc(store.Ping)
	}

	handler := httpserver.NewRouter(evalSvc, guidelineSvc, httpserver.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		APIKeys:        cfg.Server.APIKeys,
		RateCapacity:   cfg.Server.RateLimit.Capacity,
		RateRefill:     cfg.Server.RateLimit.RefillPerSecond,
		Checkers:       checkers,
		Metrics:        middleware.NewMetrics(),
		Logger:         logger.Named("http"),
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLM.EvaluationDeadline + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening",
			zap.String("addr", srv.Addr),
			zap.String("database", cfg.Database.Driver),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.Bool("redis", stores.Redis != nil),
			zap.Bool("minio", cfg.Minio.Enabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-stop:
	}
	logger.Info("server_shutting_down")

	// in-flight evaluations get their full deadline
	ctx2, cancel := context.WithTimeout(context.Background(), cfg.LLM.EvaluationDeadline+30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx2)
}
