package lxc

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openhutch/openhutch/pkg/engine"
)

// Status is the observed container state.
type Status string

const (
	// StatusRunning indicates the container is running.
	StatusRunning Status = "running"

	// StatusStopped indicates the container exists but is not running.
	StatusStopped Status = "stopped"

	// StatusUnknown indicates the state could not be determined.
	StatusUnknown Status = "unknown"
)

// CreateOptions are the declared parameters for creating a container.
type CreateOptions struct {
	// Name is the container hostname.
	Name string

	// Cores is the CPU core count.
	Cores int

	// MemoryMB is the memory limit in megabytes.
	MemoryMB int

	// Template is the OS template volume, e.g. "local:vztmpl/ubuntu-22.04.tar.zst".
	Template string

	// RootFS is the root filesystem volume spec, e.g. "local-lvm:32".
	RootFS string

	// Network is the primary network interface spec.
	Network string
}

// Lifecycle is the container control plane contract the orchestrator consumes.
type Lifecycle interface {
	Create(ctx context.Context, id string, opts CreateOptions) error
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Destroy(ctx context.Context, id string) error
	Execute(ctx context.Context, id, command string) (stdout string, exitCode int, err error)
	Status(ctx context.Context, id string) (Status, error)
}

// DefaultConfigDir is where the control plane keeps per-container config files.
const DefaultConfigDir = "/etc/pve/lxc"

// PctClient drives a pct-compatible container CLI.
type PctClient struct {
	binary    string
	configDir string
	runner    CommandRunner
	logger    zerolog.Logger
}

// PctOptions configures a PctClient. Zero values select the defaults:
// binary "pct", config dir DefaultConfigDir, ExecRunner.
type PctOptions struct {
	Binary    string
	ConfigDir string
	Runner    CommandRunner
}

// NewPctClient creates a client for the host's pct CLI.
func NewPctClient(opts PctOptions, logger zerolog.Logger) *PctClient {
	binary := opts.Binary
	if binary == "" {
		binary = "pct"
	}
	configDir := opts.ConfigDir
	if configDir == "" {
		configDir = DefaultConfigDir
	}
	var runner CommandRunner = opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PctClient{
		binary:    binary,
		configDir: configDir,
		runner:    runner,
		logger:    logger.With().Str("component", "lxc").Logger(),
	}
}

// CheckAvailable verifies the control plane CLI is on PATH. A missing binary
// is environmental: fatal to the whole run, never retried.
func (c *PctClient) CheckAvailable() error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return engine.NewEnvironmentalError(
			fmt.Sprintf("container control plane CLI %q not found", c.binary), err).
			WithCode(engine.ErrCodeToolMissing)
	}
	return nil
}

// ConfigPath returns the container's configuration file path.
func (c *PctClient) ConfigPath(id string) string {
	return filepath.Join(c.configDir, id+".conf")
}

// Create creates the container. Safe to repeat: an already-existing container
// is left untouched.
func (c *PctClient) Create(ctx context.Context, id string, opts CreateOptions) error {
	status, err := c.Status(ctx, id)
	if err == nil && status != StatusUnknown {
		c.logger.Debug().Str("container", id).Msg("Container already exists, skipping create")
		return nil
	}

	args := []string{
		"create", id, opts.Template,
		"--hostname", opts.Name,
		"--cores", strconv.Itoa(opts.Cores),
		"--memory", strconv.Itoa(opts.MemoryMB),
		"--rootfs", opts.RootFS,
	}
	if opts.Network != "" {
		args = append(args, "--net0", opts.Network)
	}

	result, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		return engine.NewTransientError("container create did not run", err).WithContainer(id)
	}
	if result.ExitCode != 0 {
		return engine.NewTransientError(
			fmt.Sprintf("container create exited %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr)), nil).
			WithContainer(id)
	}

	c.logger.Info().Str("container", id).Str("template", opts.Template).Msg("Container created")
	return nil
}

// Start starts the container.
func (c *PctClient) Start(ctx context.Context, id string) error {
	return c.simple(ctx, id, "start")
}

// Stop stops the container.
func (c *PctClient) Stop(ctx context.Context, id string) error {
	return c.simple(ctx, id, "stop")
}

// Destroy destroys the container and its storage.
func (c *PctClient) Destroy(ctx context.Context, id string) error {
	return c.simple(ctx, id, "destroy")
}

// Restart stops then starts the container so changed device grants take
// effect; a running container's device cgroup is not hot-reloaded.
func (c *PctClient) Restart(ctx context.Context, id string) error {
	if err := c.Stop(ctx, id); err != nil {
		return err
	}
	return c.Start(ctx, id)
}

// Execute runs a shell command inside the container and returns its output
// and exit code.
func (c *PctClient) Execute(ctx context.Context, id, command string) (string, int, error) {
	result, err := c.runner.Run(ctx, c.binary, "exec", id, "--", "/bin/sh", "-c", command)
	if err != nil {
		return "", -1, engine.NewTransientError("container exec did not run", err).WithContainer(id)
	}
	return result.Stdout, result.ExitCode, nil
}

// Status reports the observed container state.
func (c *PctClient) Status(ctx context.Context, id string) (Status, error) {
	result, err := c.runner.Run(ctx, c.binary, "status", id)
	if err != nil {
		return StatusUnknown, engine.NewTransientError("container status did not run", err).WithContainer(id)
	}
	if result.ExitCode != 0 {
		return StatusUnknown, nil
	}

	// Output shape: "status: running"
	out := strings.TrimSpace(result.Stdout)
	if _, value, found := strings.Cut(out, ":"); found {
		switch strings.TrimSpace(value) {
		case "running":
			return StatusRunning, nil
		case "stopped":
			return StatusStopped, nil
		}
	}
	return StatusUnknown, nil
}

// simple runs a single-argument container subcommand.
func (c *PctClient) simple(ctx context.Context, id, verb string) error {
	result, err := c.runner.Run(ctx, c.binary, verb, id)
	if err != nil {
		return engine.NewTransientError(fmt.Sprintf("container %s did not run", verb), err).WithContainer(id)
	}
	if result.ExitCode != 0 {
		return engine.NewTransientError(
			fmt.Sprintf("container %s exited %d: %s", verb, result.ExitCode, strings.TrimSpace(result.Stderr)), nil).
			WithContainer(id)
	}
	return nil
}
