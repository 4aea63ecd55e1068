package telemetry

// Config contains the telemetry configuration for the Loom dev loop.
type Config struct {
	// ServiceName identifies the service in telemetry output.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Environment labels the deployment environment (dev, staging, prod).
	Environment string

	// Logging configures structured logging.
	Logging LoggingConfig

	// Tracing configures span export.
	Tracing TracingConfig

	// Metrics configures the Prometheus collectors.
	Metrics MetricsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format specifies the log format (console, json).
	Format string

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool

	// Exporter selects the span exporter (stdout, otlp, none).
	Exporter string

	// Endpoint is the OTLP collector endpoint, used when Exporter is otlp.
	Endpoint string

	// SampleRate is the trace sampling rate in [0, 1].
	SampleRate float64
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	Enabled bool

	// Namespace prefixes all metric names.
	Namespace string
}

// DefaultConfig returns the configuration used by `loom dev` unless
// overridden by flags.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "loom",
		ServiceVersion: "dev",
		Environment:    "dev",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "stdout",
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "loom",
		},
	}
}
