package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/nik-6348/sss-projects-payments/pkg/app"
	"github.com/nik-6348/sss-projects-payments/pkg/config"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/sweep"
)

var version = "dev"

var (
	runOnce  = flag.Bool("run-once", false, "Run one sweep and exit")
	schedule = flag.String("schedule", "", "Cron schedule overriding BILLING_SWEEP_SCHEDULE")
	logLevel = flag.String("log-level", "", "Log level (debug, info, warn, error); defaults to BILLING_LOG_LEVEL")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	level := *logLevel
	if level == "" {
		level = cfg.Observability.LogLevel.String()
	}
	logger := setupLogger(level)

	if *schedule != "" {
		if _, err := cron.ParseStandard(*schedule); err != nil {
			logger.Fatalf("Invalid schedule %q: %v", *schedule, err)
		}
		cfg.Sweep.Schedule = *schedule
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := app.New(ctx, cfg, observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "overdue-sweeper"),
		app.Options{Version: version, SkipSequence: true})
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}

	sweeper := sweep.NewSweeper(components.Store, components.Lifecycle, sweep.Config{
		PageSize:    cfg.Sweep.PageSize,
		Concurrency: cfg.Sweep.Concurrency,
		Location:    cfg.Billing.Location,
	}, logger, components.Metrics)

	if *runOnce {
		err := runSweep(ctx, sweeper, cfg.Sweep, logger)
		if closeErr := components.Close(context.Background()); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close resources")
		}
		if err != nil {
			logger.Fatalf("Sweep failed: %v", err)
		}
		return
	}

	sm := observability.NewShutdownManager(components.Logger, cfg.Server.ShutdownTimeout)
	components.RegisterShutdown(sm)

	c := cron.New(
		cron.WithLocation(cfg.Billing.Location),
		cron.WithLogger(cron.PrintfLogger(logger)),
		cron.WithChain(
			cron.Recover(cron.PrintfLogger(logger)),
			cron.SkipIfStillRunning(cron.PrintfLogger(logger)),
		),
	)
	if _, err := c.AddFunc(cfg.Sweep.Schedule, func() {
		if err := runSweep(ctx, sweeper, cfg.Sweep, logger); err != nil {
			logger.WithError(err).Error("Overdue sweep failed")
		}
	}); err != nil {
		logger.Fatalf("Failed to schedule overdue sweep: %v", err)
	}

	sm.Register("cron", func(shutdownCtx context.Context) error {
		cancel()
		select {
		case <-c.Stop().Done():
			return nil
		case <-shutdownCtx.Done():
			return shutdownCtx.Err()
		}
	})

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, components.Health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, components.Registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}
	sm.AddServer("health", healthServer)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	c.Start()
	logger.WithFields(logrus.Fields{
		"schedule": cfg.Sweep.Schedule,
		"timezone": cfg.Billing.Location.String(),
	}).Info("Overdue sweeper started")

	if err := sm.Wait(context.Background()); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("Overdue sweeper stopped")
}

func runSweep(ctx context.Context, sweeper *sweep.Sweeper, cfg config.SweepConfig, logger *logrus.Logger) error {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	res, err := sweeper.Run(ctx)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		logger.WithField("failed", res.Failed).Warn("Some invoices could not be marked overdue; they will be retried next run")
	}
	return nil
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
