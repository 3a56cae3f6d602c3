// Package telemetry provides logging, tracing and metrics for evaluations.
//
// The package combines structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus). An Observer plugs all three
// into an engine.SystemsModel.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	model, err := engine.New(transforms,
//	    engine.WithLogger(tel.Logger.Zerolog()),
//	    engine.WithObserver(tel.Observer()))
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("api")
//	logger.WithOutput("required_global_fleet").Info("Evaluating")
//	logger.WithError(err).Warn("Evaluation failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Each evaluation is an "engine.evaluate" span with one child span per
// transform invocation ("transform.<name>"). Inputs served from the inputs map
// are recorded as "input_hit" span events.
//
// Supported exporters: "otlp" (OTLP/gRPC), "stdout" and "none".
//
// # Metrics
//
// Key metrics exposed:
//
//   - aviation_evaluations_total{output,status}
//   - aviation_evaluation_duration_seconds{output}
//   - aviation_active_evaluations
//   - aviation_transform_invocations_total{transform,status}
//   - aviation_transform_duration_seconds{transform}
//   - aviation_input_hits_total{name}
//   - aviation_errors_total{kind}
//   - aviation_http_requests_total{route,code}
//
// Metrics.Handler serves them in the Prometheus exposition format.
//
// # Configuration
//
//	// Development (debug logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
package telemetry
