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

	"github.com/timmy/sprintreport/internal/api"
	"github.com/timmy/sprintreport/internal/approval"
	"github.com/timmy/sprintreport/internal/config"
	"github.com/timmy/sprintreport/internal/distribute"
	"github.com/timmy/sprintreport/internal/jobstore"
	"github.com/timmy/sprintreport/internal/logger"
	"github.com/timmy/sprintreport/internal/metrics"
	"github.com/timmy/sprintreport/internal/orchestrator"
	"github.com/timmy/sprintreport/internal/render"
	"github.com/timmy/sprintreport/internal/repository"
	"github.com/timmy/sprintreport/internal/service"
	"github.com/timmy/sprintreport/internal/source"
	"github.com/timmy/sprintreport/internal/source/fathom"
	"github.com/timmy/sprintreport/internal/source/jira"
	"github.com/timmy/sprintreport/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetDefaultLogger(logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Log.Environment,
		File:        cfg.Log.File,
		FileOnly:    cfg.Log.FileOnly,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Compress:    cfg.Log.Compress,
	}))
	defer logger.Sync()

	for _, w := range cfg.Validate() {
		logger.Warn("Config: %s", w)
	}
	metrics.MustRegister()

	ctx := context.Background()

	persister, closePersister, err := buildPersister(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize job persistence: %v", err)
	}
	defer closePersister()

	storeOpts := []jobstore.Option{jobstore.WithTransitionHook(orchestrator.ObserveTransition)}
	if persister != nil {
		storeOpts = append(storeOpts, jobstore.WithPersister(persister))
	}
	store := jobstore.New(storeOpts...)

	artifacts, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize artifact storage: %v", err)
	}

	policy := service.RetryPolicy{
		MaxAttempts:    cfg.Pipeline.RetryAttempts,
		InitialBackoff: cfg.Pipeline.RetryInitialBackoff,
		MaxBackoff:     cfg.Pipeline.RetryMaxBackoff,
		CallTimeout:    cfg.Pipeline.CallTimeout,
	}

	sprints := jira.NewAdapter(jira.Config{
		BaseURL:  cfg.Jira.BaseURL,
		Email:    cfg.Jira.Email,
		APIToken: cfg.Jira.APIToken,
		PageSize: cfg.Jira.PageSize,
		Timeout:  cfg.Pipeline.CallTimeout,
	})
	var meetings source.MeetingSource
	if cfg.Fathom.Enabled() {
		meetings = fathom.NewAdapter(fathom.Config{
			BaseURL:     cfg.Fathom.BaseURL,
			APIKey:      cfg.Fathom.APIKey,
			SearchTerms: cfg.Fathom.SearchTerms,
			Timeout:     cfg.Pipeline.CallTimeout,
		})
	}
	aggregator := service.NewAggregator(sprints, meetings, policy, service.AggregatorOptions{
		Concurrency:       cfg.Pipeline.MeetingConcurrency,
		WindowPaddingDays: cfg.Pipeline.WindowPaddingDays,
		OnlyRelevant:      cfg.Fathom.OnlyRelevant,
		MaxMeetings:       cfg.Fathom.MaxMeetings,
	})

	model, err := service.NewReportModel(ctx, &cfg.Synthesis)
	if err != nil {
		logger.Fatal("Failed to initialize synthesis model: %v", err)
	}
	contract, err := service.LoadContract(cfg.Report.ContractPath)
	if err != nil {
		logger.Fatal("Failed to load report contract: %v", err)
	}
	synthesizer := service.NewSynthesizer(model, contract, policy, service.NewTokenCounter("cl100k_base"), service.SynthesizerConfig{
		TeamName:        cfg.Report.TeamName,
		Guide:           service.LoadGuide(cfg.Report.GuidePath),
		MaxTokens:       cfg.Synthesis.MaxTokens,
		Temperature:     cfg.Synthesis.Temperature,
		MaxPromptTokens: cfg.Synthesis.MaxPromptTokens,
	})
	logger.Info("Synthesis provider %s, model %s", model.Provider(), model.Model())

	distributors, err := distribute.FromConfig(&cfg.Distribution)
	if err != nil {
		logger.Fatal("Failed to configure distribution: %v", err)
	}
	finalizer := distribute.NewChain(policy, cfg.Server.PublicBaseURL, distributors...)
	logger.Info("Approved reports are delivered via %v", finalizer.Names())

	orch := orchestrator.New(orchestrator.Deps{
		Store:       store,
		Gate:        approval.NewGate(store),
		Aggregator:  aggregator,
		Synthesizer: synthesizer,
		Renderer:    render.NewPDFRenderer(),
		Artifacts:   artifacts,
		Finalizer:   finalizer,
	}, orchestrator.Config{
		ApprovalDeadline: cfg.Pipeline.ApprovalDeadline,
		TeamName:         cfg.Report.TeamName,
	})
	if _, err := orch.Restore(ctx); err != nil {
		logger.Fatal("Failed to restore jobs: %v", err)
	}

	reports := service.NewReportService(orch, store, artifacts, service.ReportServiceConfig{
		DefaultBoardID: cfg.Jira.DefaultBoardID,
		PublicBaseURL:  cfg.Server.PublicBaseURL,
	})
	router := api.SetupRouter(reports, cfg.Server)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting API server on port %d (mode=%s)", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
	// Running jobs fail as interrupted; parked jobs are re-armed on next start.
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("Jobs did not stop in time: %v", err)
	}

	logger.Info("Server exited")
}

// buildPersister selects the durable job mirror. The memory driver returns
// a nil persister.
func buildPersister(ctx context.Context, cfg *config.Config) (jobstore.Persister, func(), error) {
	noop := func() {}
	switch cfg.Database.Driver {
	case "", "memory":
		logger.Info("Job persistence disabled; jobs live in memory only")
		return nil, noop, nil
	case "redis":
		repo, err := repository.NewRedisJobRepository(ctx, &cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewJobRepository(db), closeDB, nil
	}
}
