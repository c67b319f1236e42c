package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openhutch/openhutch/pkg/config"
	"github.com/openhutch/openhutch/pkg/devices"
	"github.com/openhutch/openhutch/pkg/engine"
	"github.com/openhutch/openhutch/pkg/lxc"
	"github.com/openhutch/openhutch/pkg/markers"
	"github.com/openhutch/openhutch/pkg/telemetry"
)

// Stage identifiers; each doubles as the marker key suffix for its scope.
const (
	StageCreate      = "create"
	StagePassthrough = "passthrough"
	StageRuntime     = "runtime"
	StageService     = "service"
	StageHealth      = "health"
)

// credentialEnv is the environment variable carrying the opaque service
// credential into container commands.
const credentialEnv = "HUTCH_CREDENTIAL"

// Lifecycle is the container control plane the builder needs: the engine
// contract plus restart and config-file addressing. *lxc.PctClient satisfies
// it.
type Lifecycle interface {
	lxc.Lifecycle
	Restart(ctx context.Context, id string) error
	ConfigPath(id string) string
}

// Builder turns a cluster spec into engine stages. All stage actions it
// produces are safe to repeat; the marker store decides whether they run.
type Builder struct {
	lifecycle Lifecycle
	planner   *devices.Planner
	runner    lxc.CommandRunner
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
}

// NewBuilder creates a builder. The runner executes host stage commands;
// container commands go through the lifecycle.
func NewBuilder(lifecycle Lifecycle, planner *devices.Planner, runner lxc.CommandRunner, metrics *telemetry.Metrics, logger zerolog.Logger) *Builder {
	return &Builder{
		lifecycle: lifecycle,
		planner:   planner,
		runner:    runner,
		metrics:   metrics,
		logger:    logger.With().Str("component", "provision").Logger(),
	}
}

// HostStages builds the host-scope stages declared in the spec, in order.
func (b *Builder) HostStages(spec *config.ClusterSpec) []engine.Stage {
	stages := make([]engine.Stage, 0, len(spec.HostStages))
	for _, hs := range spec.HostStages {
		hs := hs
		stages = append(stages, engine.Stage{
			ID:        hs.ID,
			Scope:     engine.ScopeHost,
			MarkerKey: markers.HostKey(hs.ID),
			Run: func(ctx context.Context) error {
				return b.runHostCommands(ctx, hs.ID, hs.Commands)
			},
		})
	}
	return stages
}

// Pipelines builds one pipeline per declared container, in declaration order.
func (b *Builder) Pipelines(spec *config.ClusterSpec) []engine.Pipeline {
	pipelines := make([]engine.Pipeline, 0, len(spec.Containers))
	for _, ct := range spec.Containers {
		pipelines = append(pipelines, engine.Pipeline{
			ContainerID: ct.ID,
			Stages:      b.containerStages(ct),
		})
	}
	return pipelines
}

// containerStages builds the fixed stage sequence for one container:
// create, passthrough, runtime, service, health. The health stage is omitted
// when no health check is declared.
func (b *Builder) containerStages(ct config.ContainerSpec) []engine.Stage {
	stages := []engine.Stage{
		{
			ID:        StageCreate,
			Scope:     engine.ScopeContainer,
			MarkerKey: markers.ContainerKey(ct.ID, StageCreate),
			Run: func(ctx context.Context) error {
				return b.createContainer(ctx, ct)
			},
		},
		{
			ID:        StagePassthrough,
			Scope:     engine.ScopeContainer,
			MarkerKey: markers.ContainerKey(ct.ID, StagePassthrough),
			Run: func(ctx context.Context) error {
				return b.applyPassthrough(ctx, ct)
			},
		},
		{
			ID:        StageRuntime,
			Scope:     engine.ScopeContainer,
			MarkerKey: markers.ContainerKey(ct.ID, StageRuntime),
			Run: func(ctx context.Context) error {
				return b.execSequence(ctx, ct.ID, ct.Runtime, "")
			},
		},
		{
			ID:        StageService,
			Scope:     engine.ScopeContainer,
			MarkerKey: markers.ContainerKey(ct.ID, StageService),
			Run: func(ctx context.Context) error {
				return b.execSequence(ctx, ct.ID, ct.Service.Setup, ct.Service.Credential)
			},
		},
	}

	if ct.Service.HealthCheck != "" {
		stages = append(stages, engine.Stage{
			ID:        StageHealth,
			Scope:     engine.ScopeContainer,
			MarkerKey: markers.ContainerKey(ct.ID, StageHealth),
			Run: func(ctx context.Context) error {
				return b.checkHealth(ctx, ct)
			},
		})
	}

	return stages
}

// runHostCommands executes a host stage's command sequence via the shell.
func (b *Builder) runHostCommands(ctx context.Context, stageID string, commands []string) error {
	for _, cmd := range commands {
		result, err := b.runner.Run(ctx, "/bin/sh", "-c", cmd)
		if err != nil {
			return engine.NewTransientError(
				fmt.Sprintf("host stage %s command did not run", stageID), err).
				WithStage(stageID)
		}
		if result.ExitCode != 0 {
			return engine.NewTransientError(
				fmt.Sprintf("host stage %s command exited %d: %s",
					stageID, result.ExitCode, strings.TrimSpace(result.Stderr)), nil).
				WithStage(stageID)
		}
	}
	return nil
}

// createContainer creates and starts the container. Create is repeat-safe at
// the lifecycle layer; an already-running container makes Start a no-op on
// pct-compatible control planes.
func (b *Builder) createContainer(ctx context.Context, ct config.ContainerSpec) error {
	opts := lxc.CreateOptions{
		Name:     ct.Name,
		Cores:    ct.Cores,
		MemoryMB: ct.MemoryMB,
		Template: ct.Template,
		RootFS:   ct.RootFS,
		Network:  ct.Network,
	}
	if err := b.lifecycle.Create(ctx, ct.ID, opts); err != nil {
		return err
	}

	status, err := b.lifecycle.Status(ctx, ct.ID)
	if err != nil {
		return err
	}
	if status == lxc.StatusRunning {
		return nil
	}
	return b.lifecycle.Start(ctx, ct.ID)
}

// applyPassthrough computes the device plan and rewrites the container
// configuration. It runs for every container: with no declared accelerators
// the empty plan strips any stale passthrough directives. A content change
// restarts the container so the new device grants take effect.
func (b *Builder) applyPassthrough(ctx context.Context, ct config.ContainerSpec) error {
	plan, err := b.planner.Build(ct.GPUs)
	if err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.DevicesResolved(ct.ID, len(plan.Mounts))
	}

	changed, err := b.planner.Apply(b.lifecycle.ConfigPath(ct.ID), plan)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	b.logger.Info().Str("container", ct.ID).
		Int("rules", len(plan.Rules)).
		Int("mounts", len(plan.Mounts)).
		Msg("Restarting container for new device grants")
	return b.lifecycle.Restart(ctx, ct.ID)
}

// execSequence runs commands inside the container in order. A non-empty
// credential is exported into each command's environment and never logged.
func (b *Builder) execSequence(ctx context.Context, id string, commands []string, credential string) error {
	for _, cmd := range commands {
		run := cmd
		if credential != "" {
			run = credentialEnv + "=" + shellQuote(credential) + " " + cmd
		}
		stdout, exitCode, err := b.lifecycle.Execute(ctx, id, run)
		if err != nil {
			return err
		}
		if exitCode != 0 {
			return engine.NewTransientError(
				fmt.Sprintf("container command %q exited %d", cmd, exitCode), nil).
				WithContainer(id)
		}
		b.logger.Debug().Str("container", id).Str("command", cmd).
			Int("stdout_bytes", len(stdout)).Msg("Container command completed")
	}
	return nil
}

// checkHealth runs the declared health check inside the container. A non-zero
// exit is transient so the check is retried while the service comes up.
func (b *Builder) checkHealth(ctx context.Context, ct config.ContainerSpec) error {
	stdout, exitCode, err := b.lifecycle.Execute(ctx, ct.ID, ct.Service.HealthCheck)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return engine.NewTransientError(
			fmt.Sprintf("health check exited %d: %s", exitCode, strings.TrimSpace(stdout)), nil).
			WithContainer(ct.ID).WithStage(StageHealth)
	}
	b.logger.Info().Str("container", ct.ID).Msg("Service healthy")
	return nil
}

// shellQuote single-quotes a value for safe interpolation into a shell
// command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
