package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openhutch/openhutch/pkg/engine"
	"github.com/openhutch/openhutch/pkg/telemetry"
)

var validate = validator.New()

// Load reads and validates a cluster file. Every failure is a configuration
// error: malformed input must surface before any provisioning work starts.
func Load(path string) (*ClusterSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("cluster file %s unreadable", path), err).
			WithCode(engine.ErrCodeNotFound)
	}
	return Parse(data)
}

// Parse decodes and validates cluster file content. Unknown fields are
// rejected so typos fail loudly instead of silently dropping settings.
func Parse(data []byte) (*ClusterSpec, error) {
	spec := &ClusterSpec{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(spec); err != nil {
		return nil, engine.NewConfigurationError("cluster file is not valid YAML", err).
			WithCode(engine.ErrCodeValidation)
	}

	spec.applyDefaults()

	if err := validate.Struct(spec); err != nil {
		return nil, engine.NewConfigurationError("cluster file failed validation", err).
			WithCode(engine.ErrCodeValidation)
	}

	seen := make(map[string]bool, len(spec.Containers))
	for _, ct := range spec.Containers {
		if seen[ct.ID] {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("duplicate container id %s", ct.ID), nil).
				WithCode(engine.ErrCodeValidation)
		}
		seen[ct.ID] = true
	}

	stageIDs := make(map[string]bool, len(spec.HostStages))
	for _, hs := range spec.HostStages {
		if stageIDs[hs.ID] {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("duplicate host stage id %s", hs.ID), nil).
				WithCode(engine.ErrCodeValidation)
		}
		stageIDs[hs.ID] = true
	}

	return spec, nil
}

// applyDefaults fills zero-valued sections with working defaults.
func (s *ClusterSpec) applyDefaults() {
	if s.MarkerRoot == "" {
		s.MarkerRoot = DefaultMarkerRoot
	}
	if s.Telemetry.Logging == (telemetry.LoggingConfig{}) {
		s.Telemetry.Logging = telemetry.DefaultLoggingConfig()
	}
	if s.Telemetry.Metrics == (telemetry.MetricsConfig{}) {
		s.Telemetry.Metrics = telemetry.DefaultMetricsConfig()
	}
	if s.Telemetry.Tracing == (telemetry.TracingConfig{}) {
		s.Telemetry.Tracing = telemetry.DefaultTracingConfig()
	}
}

// Container returns the container spec with the given id, if declared.
func (s *ClusterSpec) Container(id string) (ContainerSpec, bool) {
	for _, ct := range s.Containers {
		if ct.ID == id {
			return ct, true
		}
	}
	return ContainerSpec{}, false
}
