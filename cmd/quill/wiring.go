package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"quill/internal/config"
	"quill/internal/document"
	"quill/internal/generation"
	"quill/internal/illustration"
	"quill/internal/logging"
	"quill/internal/publishing"
	"quill/internal/queue"
	"quill/internal/reporting"
	"quill/internal/scheduler"
	"quill/internal/services/cms"
	"quill/internal/services/imagegen"
	"quill/internal/services/indexing"
	"quill/internal/services/research"
	"quill/internal/workflow"
)

// app holds the long-lived collaborators one command needs.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *queue.Store
	library      *document.Library
	orchestrator *workflow.Orchestrator
	reporter     *reporting.Reporter
}

// openApp loads config, opens the store and builds the orchestrator with the
// configured stage handlers.
func (c *commandContext) openApp() (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, time.Now(),
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*.log", Exclude: []string{"quill.log"}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.OutputDir, "html"), Pattern: "*.json"},
	)

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, err
	}
	library := document.NewLibrary(cfg.Paths.ContentDir)
	if err := library.EnsureDirs(); err != nil {
		store.Close()
		return nil, err
	}

	stages := buildStages(cfg, library, store, logger)
	return &app{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		library:      library,
		orchestrator: workflow.NewOrchestrator(cfg, store, library, stages, logger),
		reporter:     reporting.NewReporter(cfg, store, nil, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// scheduler builds the continuous runner over the app's orchestrator.
func (a *app) scheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(a.cfg, a.store, a.orchestrator, a.logger, scheduler.WithReporter(a.reporter))
}

// buildStages wires every stage to its external collaborator. A generate
// stage without usable provider credentials is left nil so runs fail with a
// configuration error instead of the command refusing to start.
func buildStages(cfg *config.Config, library *document.Library, store *queue.Store, logger *slog.Logger) workflow.StageSet {
	var generate *generation.Handler
	provider, err := generation.NewProvider(cfg, logger)
	if err != nil {
		logging.WarnWithContext(logger, "generation provider unavailable", "provider_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "runs that reach the generate stage will fail"),
		)
	} else {
		var researcher generation.Researcher
		if cfg.Generation.ResearchEnabled {
			client := research.NewClient(cfg.Research, research.WithLogger(logger))
			if client.Enabled() {
				researcher = client
			}
		}
		generate = generation.NewHandler(cfg, library, store, provider, researcher)
	}

	images := imagegen.NewClient(cfg.Images, nil)
	destination := cms.NewClient(cfg.CMS,
		cms.WithLimiter(cms.NewLimiter(cfg.CMS.RequestsPerMinute, cfg.CMS.Burst)),
		cms.WithLogger(logger),
	)

	stages := workflow.StageSet{
		Illustrate: illustration.NewHandler(cfg, library, images),
		Gate:       publishing.NewGateHandler(cfg, library, store),
		Publish:    publishing.NewPublishHandler(cfg, library, destination, store),
		Announce:   publishing.NewAnnounceHandler(indexing.NewConfiguredService(cfg)),
	}
	if generate != nil {
		stages.Generate = generate
	}
	return stages
}

// withApp opens the app for the duration of fn.
func (c *commandContext) withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	a, err := c.openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
