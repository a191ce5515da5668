package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nik-6348/sss-projects-payments/pkg/config"
	"github.com/nik-6348/sss-projects-payments/pkg/documents"
	"github.com/nik-6348/sss-projects-payments/pkg/lifecycle"
	"github.com/nik-6348/sss-projects-payments/pkg/notify"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/payments"
	"github.com/nik-6348/sss-projects-payments/pkg/sequence"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
	"github.com/nik-6348/sss-projects-payments/pkg/storage/memory"
	"github.com/nik-6348/sss-projects-payments/pkg/storage/postgres"
)

const (
	replicaCheckInterval = 30 * time.Second
	poolStatsInterval    = 15 * time.Second
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// App holds the components shared by the API server and the sweeper,
// built from one Config
type App struct {
	Config    *config.Config
	Logger    *observability.Logger
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Health    *observability.HealthChecker
	Store     storage.Store
	Lifecycle *lifecycle.Manager
	Notifier  *notify.Service
	Templates *notify.TemplateStore

	pg      *postgres.Store
	closers []closer
}

// Options tunes what New builds
type Options struct {
	Version string
	// SkipSequence leaves the lifecycle without a number issuer, for
	// processes that never create invoices
	SkipSequence bool
}

// New connects storage, the sequence backend and the notification channels.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts Options) (a *App, err error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a = &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  observability.NewMetrics(registry),
		Health:   observability.NewHealthChecker(opts.Version),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
			a = nil
		}
	}()

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	var numbers lifecycle.NumberIssuer
	if !opts.SkipSequence {
		counter, err := a.openCounter(ctx)
		if err != nil {
			return nil, err
		}
		numbers = sequence.NewNumberer(counter, cfg.Billing)
	}

	if err := a.openNotifier(); err != nil {
		return nil, err
	}

	deps := lifecycle.Deps{
		Projects: a.Store,
		Invoices: a.Store,
		Numbers:  numbers,
		Settings: cfg.Billing,
		Logger:   logger.WithComponent("lifecycle"),
		Metrics:  a.Metrics,
	}
	if a.Notifier != nil {
		deps.Notifier = a.Notifier
	}
	a.Lifecycle = lifecycle.NewManager(deps)
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	switch a.Config.Storage.Type {
	case "postgres":
		store, err := postgres.Open(ctx, a.Config.Storage, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.pg = store
		a.Store = store
		a.onClose("postgres", func(context.Context) error { return store.Close() })

		if err := postgres.Migrate(ctx, store.DB()); err != nil {
			return err
		}
		a.Health.AddCheck("postgres", true, store.HealthCheck)
		a.Logger.Info("Connected to PostgreSQL")
	default:
		a.Store = memory.New()
		a.Health.AddCheck("storage", true, a.Store.HealthCheck)
		a.Logger.Warn("Using in-memory storage; data is lost on restart")
	}
	return nil
}

func (a *App) openCounter(ctx context.Context) (sequence.Counter, error) {
	cfg := a.Config
	switch cfg.Sequence.Backend {
	case config.SequenceRedis:
		client, err := postgres.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.onClose("redis", func(context.Context) error { return client.Close() })
		a.Health.AddRedis("sequence", true, client)
		return sequence.NewRedisCounter(client, cfg.Sequence.RedisKey), nil
	case config.SequencePostgres:
		if a.pg == nil {
			return nil, errors.New("postgres sequence requires postgres storage")
		}
		return sequence.NewSQLCounter(a.pg.DB()), nil
	case config.SequenceSQLite:
		counter, err := sequence.OpenSQLiteCounter(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.onClose("sqlite sequence", func(context.Context) error { return counter.Close() })
		return counter, nil
	default:
		return sequence.NewMemoryCounter(0), nil
	}
}

func (a *App) openNotifier() error {
	ncfg := a.Config.Notifications
	if !ncfg.EmailEnabled() && !ncfg.MessagingEnabled() {
		a.Logger.Info("No notification channel configured")
		return nil
	}

	templates, err := notify.NewTemplateStore(ncfg.TemplatesPath, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to load notification templates: %w", err)
	}
	a.Templates = templates

	deps := notify.ServiceDeps{
		Invoices:       a.Store,
		Projects:       a.Store,
		Refs:           a.Store,
		Templates:      templates,
		Logger:         a.Logger,
		Metrics:        a.Metrics,
		ChannelTimeout: ncfg.ChannelTimeout,
	}
	if ncfg.EmailEnabled() {
		sender, err := notify.NewSMTPSender(ncfg.SMTP)
		if err != nil {
			return err
		}
		deps.Email = sender
	}
	if ncfg.MessagingEnabled() {
		sender, err := notify.NewMessagingSender(ncfg.Messaging)
		if err != nil {
			return err
		}
		deps.Messaging = sender
	}
	a.Notifier = notify.NewService(deps)
	return nil
}

// WatchTemplates hot-reloads the templates file until ctx is done
func (a *App) WatchTemplates(ctx context.Context) error {
	if a.Templates == nil || !a.Config.Notifications.WatchTemplates {
		return nil
	}
	return a.Templates.StartWatching(ctx)
}

// Documents builds the document service with the configured archive
func (a *App) Documents(ctx context.Context) (*documents.Service, error) {
	dcfg := a.Config.Documents

	var archive storage.ObjectStore
	switch dcfg.Archive {
	case config.ArchiveFilesystem:
		fs, err := storage.NewFileSystemArchive(dcfg.FilesystemRoot)
		if err != nil {
			return nil, err
		}
		archive = fs
	case config.ArchiveS3:
		bucket, err := postgres.NewS3Archive(ctx, a.Config.Storage)
		if err != nil {
			return nil, err
		}
		a.Health.AddCheck("archive", false, bucket.HealthCheck)
		archive = bucket
	}

	return documents.NewService(documents.Deps{
		Invoices: a.Store,
		Projects: a.Store,
		Refs:     a.Store,
		Archive:  archive,
		Logger:   a.Logger,
		Metrics:  a.Metrics,
		Config: documents.Config{
			CacheEntries: dcfg.CacheEntries,
			CacheTTL:     dcfg.CacheTTL,
		},
	}), nil
}

// Payments builds the payment ledger
func (a *App) Payments() *payments.Ledger {
	return payments.NewLedger(a.Store, a.Store, a.Store, a.Config.Billing.Location, a.Logger)
}

// StartPoolStats keeps the database pool gauges and replica health current
// until ctx is done. It is a no-op on memory storage.
func (a *App) StartPoolStats(ctx context.Context) {
	if a.pg == nil {
		return
	}
	a.pg.Connections().StartHealthCheckRoutine(ctx, replicaCheckInterval)
	go func() {
		ticker := time.NewTicker(poolStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Metrics.UpdateDBStats(a.pg.DB().Stats())
			}
		}
	}()
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// RegisterShutdown hands every opened resource to the shutdown manager
func (a *App) RegisterShutdown(sm *observability.ShutdownManager) {
	for _, c := range a.closers {
		sm.Register(c.name, c.fn)
	}
	a.closers = nil
}

// Close releases resources in reverse opening order
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.closers[i].name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
