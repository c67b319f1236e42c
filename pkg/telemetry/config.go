package telemetry

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error, fatal.
	Level string `yaml:"level"`

	// Format is "console" for human-readable output or "json" for structured.
	Format string `yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `yaml:"output"`

	// EnableCaller adds the caller file:line to every entry.
	EnableCaller bool `yaml:"enable_caller"`
}

// DefaultLoggingConfig returns the logging defaults used by the CLI.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// MetricsConfig configures the Prometheus metrics collector.
type MetricsConfig struct {
	// Enabled turns metric collection on. When false all recording methods
	// are no-ops.
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace"`

	// ListenAddr, when non-empty, serves /metrics on this address.
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultMetricsConfig returns the metrics defaults.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "openhutch",
	}
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	// Enabled turns span export on. When false a no-op tracer is returned.
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this process in exported spans.
	ServiceName string `yaml:"service_name"`

	// PrettyPrint formats stdout spans for human reading.
	PrettyPrint bool `yaml:"pretty_print"`
}

// DefaultTracingConfig returns the tracing defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:     false,
		ServiceName: "openhutch",
	}
}
