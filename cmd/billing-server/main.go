package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nik-6348/sss-projects-payments/pkg/api"
	"github.com/nik-6348/sss-projects-payments/pkg/app"
	"github.com/nik-6348/sss-projects-payments/pkg/config"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "billing-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	sm := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	sm.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	components, err := app.New(ctx, cfg, logger, app.Options{Version: version})
	if err != nil {
		_ = sm.Shutdown()
		return err
	}
	components.RegisterShutdown(sm)
	sm.Register("background", func(context.Context) error {
		cancel()
		return nil
	})

	if err := components.WatchTemplates(ctx); err != nil {
		logger.WithError(err).Warn("Template hot reload disabled")
	}
	components.StartPoolStats(ctx)

	docs, err := components.Documents(ctx)
	if err != nil {
		_ = sm.Shutdown()
		return fmt.Errorf("failed to initialize documents: %w", err)
	}

	apiServer := api.NewServer(api.Deps{
		Invoices:       components.Lifecycle,
		Documents:      docs,
		Payments:       components.Payments(),
		Logger:         logger,
		Metrics:        components.Metrics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	var handler http.Handler = apiServer
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(apiServer, "billing-api")
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, components.Health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, components.Registry)
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sm.AddServer("api", httpServer)
	sm.AddServer("health", healthServer)

	serveErr := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		logger.WithField("addr", srv.Addr).Infof("Starting %s server", name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go serve("health", healthServer)
	go serve("api", httpServer)

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()

	failed := make(chan error, 1)
	go func() {
		select {
		case err := <-serveErr:
			logger.WithError(err).Error("Server failed")
			failed <- err
			stopWaiting()
		case <-waitCtx.Done():
		}
	}()

	err = sm.Wait(waitCtx)
	select {
	case serverErr := <-failed:
		return serverErr
	default:
		return err
	}
}
