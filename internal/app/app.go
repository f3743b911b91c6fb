// Package app provides application-level wiring for the lake pipeline and
// its control plane.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"shoplake/internal/bronze"
	"shoplake/internal/catalog"
	"shoplake/internal/config"
	"shoplake/internal/pipeline"
	"shoplake/internal/quality"
	"shoplake/internal/schema"
	"shoplake/internal/silver"
	"shoplake/internal/storage"
	"shoplake/internal/warehouse"
)

// Deps holds the external dependencies that main() must provide: config, the
// metastore handles, and the logger.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Registry   *schema.Registry
	Rules      *quality.RuleSet
	Store      *storage.LocalStore
	Runner     *pipeline.Runner
	Scheduler  *pipeline.Scheduler
	Warehouse  *warehouse.Warehouse
	Partitions *catalog.PartitionRepo
	Runs       *catalog.RunRepo
	Bookmarks  *catalog.BookmarkRepo
	Syncer     *storage.Syncer // nil when no object store is configured
}

// New wires repositories, the pipeline, and the warehouse from the provided
// deps. The caller owns the database handles and the warehouse close.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("load table schemas: %w", err)
	}
	rules, err := loadRules(cfg)
	if err != nil {
		return nil, fmt.Errorf("load quality rules: %w", err)
	}

	// === Repositories ===
	partitionRepo := catalog.NewPartitionRepo(deps.WriteDB, deps.ReadDB)
	keyRepo := catalog.NewKeyRepo(deps.WriteDB)
	bookmarkRepo := catalog.NewBookmarkRepo(deps.WriteDB, deps.ReadDB)
	runRepo := catalog.NewRunRepo(deps.WriteDB, deps.ReadDB)

	// === Lake storage and stages ===
	store := storage.NewLocalStore(cfg.LakeRoot)
	ingestor := bronze.NewIngestor(cfg.LandingDir, registry, store, bookmarkRepo,
		deps.Logger.With("component", "bronze"))
	transformer := silver.NewTransformer(registry, rules, store,
		deps.Logger.With("component", "silver"))

	// === Warehouse ===
	wh, err := warehouse.Open(cfg.LakeRoot, partitionRepo,
		deps.Logger.With("component", "warehouse"))
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}

	// === Pipeline ===
	runner := pipeline.NewRunner(pipeline.RunnerDeps{
		Registry:         registry,
		Rules:            rules,
		Store:            store,
		Ingestor:         ingestor,
		Transformer:      transformer,
		Keys:             keyRepo,
		Partitions:       partitionRepo,
		Runs:             runRepo,
		Refresher:        wh,
		Logger:           deps.Logger.With("component", "pipeline"),
		Workers:          cfg.Workers,
		DimDateStartYear: cfg.DimDateStart,
		DimDateEndYear:   cfg.DimDateEnd,
	})
	scheduler := pipeline.NewScheduler(runner, deps.Logger.With("component", "scheduler"))

	// === Optional object-store sync ===
	syncer, err := newSyncer(ctx, cfg, deps.Logger)
	if err != nil {
		wh.Close()
		return nil, err
	}

	return &App{
		Registry:   registry,
		Rules:      rules,
		Store:      store,
		Runner:     runner,
		Scheduler:  scheduler,
		Warehouse:  wh,
		Partitions: partitionRepo,
		Runs:       runRepo,
		Bookmarks:  bookmarkRepo,
		Syncer:     syncer,
	}, nil
}

// Close releases resources owned by the app.
func (a *App) Close() error {
	a.Scheduler.Stop()
	return a.Warehouse.Close()
}

func loadRegistry(cfg *config.Config) (*schema.Registry, error) {
	if cfg.SchemaFile != "" {
		return schema.NewRegistryFromFile(cfg.SchemaFile)
	}
	return schema.NewRegistry()
}

func loadRules(cfg *config.Config) (*quality.RuleSet, error) {
	if cfg.RulesFile != "" {
		return quality.NewRuleSetFromFile(cfg.RulesFile)
	}
	return quality.NewRuleSet()
}

// newSyncer picks the first configured object store, S3 then GCS then Azure.
// Returns nil when none is configured.
func newSyncer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Syncer, error) {
	var store storage.ObjectStore
	var err error
	switch {
	case cfg.HasS3Config():
		store, err = storage.NewS3Store(cfg)
	case cfg.HasGCSConfig():
		store, err = storage.NewGCSStore(ctx, cfg)
	case cfg.HasAzureConfig():
		store, err = storage.NewAzureStore(cfg)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("configure object store: %w", err)
	}
	logger.Info("object store sync enabled", "store", store.Name())
	return storage.NewSyncer(store, logger.With("component", "sync")), nil
}
