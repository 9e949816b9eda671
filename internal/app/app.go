// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	gcpstorage "cloud.google.com/go/storage"
	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/JakeFAU/quake-catalog-crawler/internal/api"
	"github.com/JakeFAU/quake-catalog-crawler/internal/backfill"
	"github.com/JakeFAU/quake-catalog-crawler/internal/config"
	collyfetcher "github.com/JakeFAU/quake-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/quake-catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/quake-catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/quake-catalog-crawler/internal/metrics"
	kafkapublisher "github.com/JakeFAU/quake-catalog-crawler/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/quake-catalog-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/quake-catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
	"github.com/JakeFAU/quake-catalog-crawler/internal/ratelimit"
	"github.com/JakeFAU/quake-catalog-crawler/internal/snapshot"
	"github.com/JakeFAU/quake-catalog-crawler/internal/source"
	"github.com/JakeFAU/quake-catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/quake-catalog-crawler/internal/storage/local"
	"github.com/JakeFAU/quake-catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/quake-catalog-crawler/internal/storage/postgres"
)

// App holds all the shared, long-lived services for the application.
// It is built once at startup from Config and handed to the CLI commands.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  clockwork.Clock

	pages     quake.PageFetcher
	limiter   *ratelimit.Limiter
	snapshot  *snapshot.Service
	shards    quake.ShardStore
	missing   quake.MissingLog
	publisher quake.Publisher
	records   quake.RecordStore
	runs      *memory.RunStore
	hasher    *sha256.Hasher
	ids       *uuid.Generator

	closers []func() error
}

// Option customizes App construction.
type Option func(*App)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(a *App) {
		a.clock = c
	}
}

// WithPageFetcher replaces the colly page fetcher.
func WithPageFetcher(p quake.PageFetcher) Option {
	return func(a *App) {
		a.pages = p
	}
}

// New creates and initializes an App. It fails fast if any configured backend
// cannot be reached; services opened before the failure are closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  clockwork.NewRealClock(),
		runs:   memory.NewRunStore(),
		hasher: sha256.New(),
		ids:    uuid.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	metrics.Init()

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("notify", cfg.Notify.Backend),
		zap.Bool("catalog_db", a.records != nil),
	)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if a.pages == nil {
		a.pages = collyfetcher.New(collyfetcher.Config{
			UserAgent:          a.cfg.Source.UserAgent,
			Timeout:            a.cfg.Source.Timeout,
			InsecureSkipVerify: a.cfg.Source.InsecureSkipVerify,
		})
	}
	a.limiter = ratelimit.New(ratelimit.Config{Delay: a.cfg.Backfill.Delay, Burst: 1})

	// No limiter: API requests must not queue behind backfill fetches.
	live, err := a.periodFetcher(a.CurrentPeriod())
	if err != nil {
		return err
	}
	a.snapshot, err = snapshot.New(live, snapshot.BreakerConfig{
		FailureThreshold: a.cfg.Source.BreakerFailures,
		OpenTimeout:      a.cfg.Source.BreakerOpenTimeout,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("init snapshot: %w", err)
	}

	if err := a.initStorage(ctx); err != nil {
		return err
	}
	if err := a.initPublisher(ctx); err != nil {
		return err
	}
	return a.initRecords(ctx)
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		a.shards = store
	case config.BackendGCS:
		client, err := gcpstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.GCSPrefix})
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		a.shards = store
	case config.BackendMemory:
		a.shards = memory.NewShardStore()
		a.missing = memory.NewMissingLog()
		a.logger.Warn("using in-memory shard storage; shards are lost on exit")
		return nil
	default:
		return fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
	missing, err := local.NewMissingLog(a.cfg.Backfill.MissingLog)
	if err != nil {
		return fmt.Errorf("init missing log: %w", err)
	}
	a.missing = missing
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.cfg.Notify.Backend {
	case config.BackendNone:
	case config.BackendMemory:
		a.publisher = memorypublisher.New()
	case config.BackendPubSub:
		client, err := gcppubsub.NewClient(ctx, a.cfg.Notify.PubSubProject)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client)
		a.closers = append(a.closers, client.Close, func() error {
			pub.Close()
			return nil
		})
		a.publisher = pub
	case config.BackendKafka:
		pub, err := kafkapublisher.New(kafkapublisher.Config{Brokers: a.cfg.Notify.KafkaBrokers})
		if err != nil {
			return fmt.Errorf("init kafka publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.publisher = pub
	default:
		return fmt.Errorf("unknown notify backend: %s", a.cfg.Notify.Backend)
	}
	return nil
}

func (a *App) initRecords(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		return nil
	}
	store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("init catalog db: %w", err)
	}
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure catalog schema: %w", err)
	}
	a.records = store
	return nil
}

func (a *App) periodFetcher(current quake.Period, opts ...source.Option) (*source.Fetcher, error) {
	f, err := source.NewFetcher(source.Resolver{
		LiveURL:         a.cfg.Source.LiveURL,
		ArchiveTemplate: a.cfg.Source.ArchiveTemplate,
		Current:         current,
	}, a.pages, a.logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("init source: %w", err)
	}
	return f, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// CurrentPeriod is the month the clock is in now.
func (a *App) CurrentPeriod() quake.Period {
	return quake.Of(a.clock.Now())
}

// Shards exposes the configured shard store.
func (a *App) Shards() quake.ShardStore {
	return a.shards
}

// Snapshot exposes the live snapshot service.
func (a *App) Snapshot() api.SnapshotService {
	return a.snapshot
}

// Orchestrator builds a backfill orchestrator whose current period is taken
// from the clock at call time.
func (a *App) Orchestrator() (*backfill.Orchestrator, error) {
	start, err := a.cfg.StartPeriod()
	if err != nil {
		return nil, err
	}
	current := a.CurrentPeriod()
	fetcher, err := a.periodFetcher(current, source.WithLimiter(a.limiter))
	if err != nil {
		return nil, err
	}
	o, err := backfill.New(backfill.Config{
		Start:       start,
		Current:     current,
		Concurrency: a.cfg.Backfill.Concurrency,
		Topic:       a.cfg.Notify.Topic,
	}, backfill.Deps{
		Fetcher:   fetcher,
		Shards:    a.shards,
		Missing:   a.missing,
		Publisher: a.publisher,
		Records:   a.records,
		Hasher:    a.hasher,
		Clock:     a.clock,
		IDs:       a.ids,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init backfill: %w", err)
	}
	return o, nil
}

// Backfill runs one backfill under runID. It satisfies api.BackfillRunner.
func (a *App) Backfill(ctx context.Context, runID string) (backfill.Report, error) {
	o, err := a.Orchestrator()
	if err != nil {
		return backfill.Report{}, err
	}
	return o.RunWithID(ctx, runID)
}

// RunBackfill runs one backfill under a fresh run ID.
func (a *App) RunBackfill(ctx context.Context) (backfill.Report, error) {
	o, err := a.Orchestrator()
	if err != nil {
		return backfill.Report{}, err
	}
	return o.Run(ctx)
}

// APIServer builds the HTTP API over the App's services.
func (a *App) APIServer() (*api.Server, error) {
	srv, err := api.NewServer(api.Deps{
		Snapshot:  a.snapshot,
		Runner:    a,
		Runs:      a.runs,
		IDs:       a.ids,
		Clock:     a.clock,
		SourceURL: a.cfg.Source.LiveURL,
	}, a.cfg.API, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init api: %w", err)
	}
	return srv, nil
}

// Close releases every backend client in reverse order of creation.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
	}
}
