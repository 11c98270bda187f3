// Package telemetry provides observability instrumentation for provio.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging provio deployments.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Event system for audit and progress reporting
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "provio"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("sequencer")
//	logger = logger.WithRunID("run-123").WithStep("create-vnet")
//	logger.Info("Probing for existing resource")
//	logger.WithError(err).Error("Step failed")
//
// Log levels: trace, debug, info, warn, error, fatal. Logs go to stderr by
// default so stdout stays clean for manifest output.
//
// Secret values must never reach a log line. Use SecretPreview to render a
// bounded prefix when a diagnostic needs to reference a value:
//
//	logger.WithField("value", telemetry.SecretPreview(secret)).Debug("Published secret")
//
// # Distributed Tracing
//
// Tracing provides visibility into deployment flow and timing:
//
//	ctx, span := tel.Tracer.StartStepSpan(ctx, "create-vnet", "vnet", "network vnet create")
//	defer span.End()
//
//	span.SetAttributes(
//	    telemetry.AttrDecision.String("create"),
//	)
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track deployment behavior and performance:
//
//	tel.Metrics.RecordRunStarted("webapp-prod")
//	tel.Metrics.RecordRunCompleted("completed", duration)
//
//	tel.Metrics.RecordStep("success", "create", duration)
//	tel.Metrics.RecordProbe("found")
//
//	tel.Metrics.RecordProviderCall("azure", "network vnet create", duration)
//
//	tel.Metrics.RecordError("transient", "PROVIDER_FAILED")
//
// Metrics are exposed via HTTP at /metrics when enabled (default: :9090/metrics)
//
// # Event Publishing
//
// The event system reports run progress with buffering and filtering:
//
//	tel.Events.PublishRunStarted(runID, stack, stepCount)
//	tel.Events.PublishStepReused(runID, step, resource, resourceID)
//	tel.Events.PublishPollTimedOut(runID, step, remediation, attempts)
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByRunID, FilterByStep
//
// In synchronous mode (the CLI default) subscribers run inline so progress
// output stays ordered; async mode batches and delivers on goroutines.
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Run context
//	ctx = telemetry.WithRunContext(ctx, runID, stack, len(steps))
//	defer telemetry.EndRunContext(ctx, runID, status, duration, err)
//
//	// Step context
//	ctx = telemetry.WithStepContext(ctx, runID, step, resource, action)
//	defer telemetry.EndStepContext(ctx, runID, step, resource, outcome, decision, err)
//
//	// Provider invocation
//	err := telemetry.RecordProviderOperation(ctx, "azure", action, func() error {
//	    _, err := provider.Invoke(ctx, action, args)
//	    return err
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - provio_runs_started_total{stack}
//   - provio_runs_completed_total{status}
//   - provio_run_duration_seconds{status}
//   - provio_steps_executed_total{outcome,decision}
//   - provio_step_duration_seconds{outcome}
//   - provio_probes_executed_total{result}
//   - provio_poll_timeouts_total{stack}
//   - provio_provider_calls_total{provider,action}
//   - provio_secrets_published_total{mode,reused}
//   - provio_credential_resolutions_total{source}
//   - provio_errors_by_class_total{class}
//   - provio_active_runs
//
// # Security Considerations
//
//   - Never log credential or secret values; SecretPreview caps diagnostics
//     at an eight character prefix
//   - Span attributes and events carry secret names only, never values
//   - Use secure connections (TLS) for trace exporters in production
//   - Limit metrics endpoint access via network policies
package telemetry
