// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health probes and graceful shutdown for the billing
// services.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithInvoice(inv.ID, inv.InvoiceNumber).Info("Invoice created")
//
// Request handlers pick up the request-scoped logger, which carries the
// request ID and, inside a span, the trace and span IDs:
//
//	observability.FromContext(r.Context()).WithError(err).Error("Request failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	observability.RegisterMetricsEndpoint(healthMux, registry)
//
// Recording helpers such as InvoiceCreated and SweepRun accept a nil
// receiver.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("storage", true, store.HealthCheck)
//	checker.AddRedis("sequence", true, redisClient)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{...}, logger)
//	ctx, span := observability.StartSpan(ctx, "documents.Get")
//	defer func() { observability.EndSpan(span, err) }()
//
// # Shutdown
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second)
//	sm.AddServer("api", apiServer)
//	sm.Register("storage", func(context.Context) error { return store.Close() })
//	err := sm.Wait(ctx)
package observability
