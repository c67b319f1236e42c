package config

import (
	"time"

	"github.com/openhutch/openhutch/pkg/engine"
	"github.com/openhutch/openhutch/pkg/telemetry"
)

// ClusterSpec is the full declarative input for one provisioning run.
type ClusterSpec struct {
	// MarkerRoot is the directory holding the marker store and locks.
	MarkerRoot string `yaml:"marker_root"`

	// Retry bounds stage retries for the whole run.
	Retry RetrySpec `yaml:"retry"`

	// HostStages are host-scope stages run once before any container work.
	HostStages []HostStageSpec `yaml:"host_stages" validate:"dive"`

	// Containers are the declared containers, provisioned in order.
	Containers []ContainerSpec `yaml:"containers" validate:"required,min=1,dive"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetrySpec `yaml:"telemetry"`
}

// RetrySpec declares the retry policy in configuration-friendly units.
type RetrySpec struct {
	// MaxAttempts is the total attempts per stage action, including the first.
	MaxAttempts int `yaml:"max_attempts" validate:"omitempty,min=1"`

	// DelaySeconds is the fixed pause between attempts.
	DelaySeconds int `yaml:"delay_seconds" validate:"omitempty,min=0"`
}

// Policy converts the spec into an engine retry policy, falling back to the
// engine default when unset.
func (r RetrySpec) Policy() engine.RetryPolicy {
	if r.MaxAttempts == 0 {
		return engine.DefaultRetryPolicy
	}
	return engine.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		Delay:       time.Duration(r.DelaySeconds) * time.Second,
	}
}

// HostStageSpec is one host-scope stage: an ordered command sequence wrapping
// external tools (runtime install, driver install, toolkit install). The
// commands themselves are opaque to the orchestrator.
type HostStageSpec struct {
	// ID names the stage; it doubles as the marker key suffix.
	ID string `yaml:"id" validate:"required"`

	// Commands are run on the host in order; any non-zero exit fails the stage.
	Commands []string `yaml:"commands" validate:"required,min=1,dive,required"`
}

// ContainerSpec declares one compute container. Loaded once per run and
// immutable thereafter.
type ContainerSpec struct {
	// ID is the numeric container identifier on the host control plane.
	ID string `yaml:"id" validate:"required,numeric"`

	// Name is the container hostname.
	Name string `yaml:"name" validate:"required,hostname_rfc1123"`

	// Cores is the CPU core count.
	Cores int `yaml:"cores" validate:"required,min=1"`

	// MemoryMB is the memory limit in megabytes.
	MemoryMB int `yaml:"memory_mb" validate:"required,min=16"`

	// Template is the OS template volume used at create time.
	Template string `yaml:"template" validate:"required"`

	// RootFS is the root filesystem volume spec.
	RootFS string `yaml:"rootfs" validate:"required"`

	// Network is the primary network interface spec.
	Network string `yaml:"network"`

	// GPUs is the ordered accelerator index assignment, possibly empty.
	GPUs []int `yaml:"gpus" validate:"dive,min=0"`

	// Runtime are commands executed inside the container after passthrough,
	// e.g. the accelerator runtime and toolkit setup sequence. Opaque.
	Runtime []string `yaml:"runtime" validate:"dive,required"`

	// Service configures the workload service inside the container.
	Service ServiceSpec `yaml:"service"`
}

// ServiceSpec configures the workload running inside a container. Parameters
// are opaque to the orchestrator.
type ServiceSpec struct {
	// Setup are commands executed inside the container to install and
	// configure the workload service.
	Setup []string `yaml:"setup" validate:"dive,required"`

	// HealthCheck is a command whose zero exit confirms the service is up.
	HealthCheck string `yaml:"health_check"`

	// Credential is an opaque credential value handed to the service setup
	// via the HUTCH_CREDENTIAL environment variable. Never logged.
	Credential string `yaml:"credential"`
}

// TelemetrySpec groups the telemetry configuration sections.
type TelemetrySpec struct {
	Logging telemetry.LoggingConfig `yaml:"logging"`
	Metrics telemetry.MetricsConfig `yaml:"metrics"`
	Tracing telemetry.TracingConfig `yaml:"tracing"`
}

// DefaultMarkerRoot is used when the cluster file does not set marker_root.
const DefaultMarkerRoot = "/var/lib/openhutch"
