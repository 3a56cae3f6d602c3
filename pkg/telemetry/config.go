package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for the evaluator.
type Config struct {
	// ServiceName is the name of the service for telemetry identification.
	ServiceName string `koanf:"service_name"`

	// ServiceVersion is the version of the service.
	ServiceVersion string `koanf:"service_version"`

	// Environment specifies the deployment environment (dev, staging, prod).
	Environment string `koanf:"environment"`

	// Logging contains logging configuration.
	Logging LoggingConfig `koanf:"logging"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `koanf:"tracing"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `koanf:"metrics"`

	// ResourceAttributes are additional resource attributes for telemetry.
	ResourceAttributes map[string]string `koanf:"resource_attributes"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string `koanf:"level"`

	// Format specifies the log format (console, json).
	Format string `koanf:"format"`

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string `koanf:"output"`

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool `koanf:"enable_caller"`

	// TimeFormat specifies the timestamp format (unix, unixms, rfc3339).
	TimeFormat string `koanf:"time_format"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool `koanf:"enabled"`

	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string `koanf:"exporter"`

	// Endpoint is the OTLP collector endpoint, e.g. "localhost:4317".
	Endpoint string `koanf:"endpoint"`

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64 `koanf:"sampling_rate"`

	// MaxExportBatchSize is the maximum batch size for export.
	MaxExportBatchSize int `koanf:"max_export_batch_size"`

	// ExportTimeout is the timeout for trace export.
	ExportTimeout time.Duration `koanf:"export_timeout"`

	// Headers are additional headers for OTLP exporter.
	Headers map[string]string `koanf:"headers"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `koanf:"insecure"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool `koanf:"enabled"`

	// Namespace is the metrics namespace prefix.
	Namespace string `koanf:"namespace"`

	// DefaultHistogramBuckets are the latency buckets in seconds.
	DefaultHistogramBuckets []float64 `koanf:"buckets"`
}

// DefaultConfig returns a default telemetry configuration. Logs go to
// stderr so command output on stdout stays machine-readable; tracing is off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "aviation",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			Output:       "stderr",
			EnableCaller: false,
			TimeFormat:   "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            false,
			Exporter:           "none",
			Endpoint:           "localhost:4317",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            make(map[string]string),
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "aviation",
			DefaultHistogramBuckets: []float64{
				0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0,
			},
		},
		ResourceAttributes: make(map[string]string),
	}
}

// ProductionConfig returns a production-optimized telemetry configuration.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1 // Sample 10% in production
	cfg.Tracing.Insecure = false
	return cfg
}

// DevelopmentConfig returns a development-optimized telemetry configuration.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "development"
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "console"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	cfg.Tracing.SamplingRate = 1.0 // Sample all traces in development
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if c.ServiceVersion == "" {
		return fmt.Errorf("service version is required")
	}

	// Validate logging level
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate logging format
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	// Validate tracing exporter
	validExporters := map[string]bool{
		"otlp": true, "stdout": true, "none": true,
	}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}

	// Validate sampling rate
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("otlp exporter requires an endpoint")
	}

	return nil
}
