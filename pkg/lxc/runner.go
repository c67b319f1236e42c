// Package lxc wraps the host's LXC container control plane behind the
// ContainerLifecycle interface. The concrete client shells out to a
// pct-compatible CLI; the command runner is injectable for tests.
package lxc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// CommandResult captures one external command invocation.
type CommandResult struct {
	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string

	// ExitCode is the command's exit code; zero on success.
	ExitCode int

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// CommandRunner executes external commands. Every call is synchronous and
// blocking; it runs to the external tool's own completion or timeout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner runs commands through os/exec with captured output.
type ExecRunner struct{}

// Run executes name with args, capturing stdout and stderr. A non-zero exit
// code is reported in the result, not as an error; errors mean the command
// could not be started or was killed.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to execute %s: %w", name, err)
	}

	return result, nil
}
