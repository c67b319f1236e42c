package engine

import (
	"context"
	"fmt"
	"time"
)

// StageScope identifies whether a stage runs once per host or once per container.
type StageScope string

const (
	// ScopeHost stages run exactly once per host before any container work starts.
	ScopeHost StageScope = "host"

	// ScopeContainer stages run once per declared container, in declared order.
	ScopeContainer StageScope = "container"
)

// Validate checks if the stage scope is valid.
func (s StageScope) Validate() error {
	switch s {
	case ScopeHost, ScopeContainer:
		return nil
	default:
		return fmt.Errorf("invalid stage scope: %s", s)
	}
}

// StageStatus represents the terminal status of a stage execution.
type StageStatus string

const (
	// StageStatusSucceeded indicates the stage action completed and its marker was recorded.
	StageStatusSucceeded StageStatus = "succeeded"

	// StageStatusFailed indicates the stage exhausted its attempts or hit a permanent error.
	StageStatusFailed StageStatus = "failed"

	// StageStatusSkipped indicates a marker already existed and the action did not run.
	StageStatusSkipped StageStatus = "skipped"
)

// Validate checks if the stage status is valid.
func (s StageStatus) Validate() error {
	switch s {
	case StageStatusSucceeded, StageStatusFailed, StageStatusSkipped:
		return nil
	default:
		return fmt.Errorf("invalid stage status: %s", s)
	}
}

// StageAction is the unit of work a stage performs. Actions must be safe to
// repeat: a crash between a successful action and its marker write means the
// action runs again on the next invocation.
type StageAction func(ctx context.Context) error

// Stage is one named, markable unit of orchestrated work.
type Stage struct {
	// ID is the stage identifier, unique within its pipeline.
	ID string

	// Scope is the stage scope (host or container).
	Scope StageScope

	// MarkerKey is the durable idempotency key recorded on success.
	MarkerKey string

	// Run is the stage action.
	Run StageAction
}

// Validate checks the stage for structural correctness.
func (s *Stage) Validate() error {
	if s.ID == "" {
		return NewConfigurationError("stage has empty ID", nil).WithCode(ErrCodeValidation)
	}
	if err := s.Scope.Validate(); err != nil {
		return NewConfigurationError("stage has invalid scope", err).WithStage(s.ID)
	}
	if s.MarkerKey == "" {
		return NewConfigurationError("stage has empty marker key", nil).WithStage(s.ID)
	}
	if s.Run == nil {
		return NewConfigurationError("stage has nil action", nil).WithStage(s.ID)
	}
	return nil
}

// RetryPolicy bounds how often a failing stage action is re-attempted.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// Delay is the fixed pause between attempts.
	Delay time.Duration `json:"delay" yaml:"delay"`
}

// DefaultRetryPolicy is used when the cluster spec does not declare one.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Second}

// Validate checks the retry policy for sane bounds.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return NewConfigurationError("retry policy needs at least one attempt", nil).
			WithCode(ErrCodeValidation)
	}
	if p.Delay < 0 {
		return NewConfigurationError("retry policy has negative delay", nil).
			WithCode(ErrCodeValidation)
	}
	return nil
}

// StageResult records the outcome of one stage execution.
type StageResult struct {
	// StageID is the stage this result belongs to.
	StageID string `json:"stage_id"`

	// Status is the terminal status of the stage.
	Status StageStatus `json:"status"`

	// Attempts is how many times the action ran. Zero for skipped stages.
	Attempts int `json:"attempts"`

	// Duration is the total stage execution time including retry delays.
	Duration time.Duration `json:"duration"`

	// Err is the last error, set only for failed stages.
	Err error `json:"-"`
}

// ContainerResult aggregates the stage results of one container pipeline.
type ContainerResult struct {
	// ContainerID is the declared container this pipeline provisioned.
	ContainerID string `json:"container_id"`

	// Stages are the per-stage results in execution order. A pipeline that
	// fails stops at the failed stage; later stages have no result.
	Stages []StageResult `json:"stages"`

	// RolledBack reports whether the rollback action ran for this container.
	RolledBack bool `json:"rolled_back"`

	// Err is the error that terminated the pipeline, if any.
	Err error `json:"-"`
}

// Succeeded reports whether every stage of the pipeline reached a non-failed
// terminal status.
func (r *ContainerResult) Succeeded() bool {
	if r.Err != nil {
		return false
	}
	for _, s := range r.Stages {
		if s.Status == StageStatusFailed {
			return false
		}
	}
	return true
}

// RunSummary provides aggregate statistics for a provisioning run.
type RunSummary struct {
	// Containers is the number of declared containers processed.
	Containers int `json:"containers"`

	// Succeeded is the number of container pipelines that fully completed.
	Succeeded int `json:"succeeded"`

	// Failed is the number of container pipelines that failed and rolled back.
	Failed int `json:"failed"`

	// HostStages is the number of host-scope stages executed or skipped.
	HostStages int `json:"host_stages"`
}

// RunReport is the full outcome of one orchestrator run.
type RunReport struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// Host holds the host-scope stage results.
	Host []StageResult `json:"host"`

	// Containers holds one result per declared container.
	Containers []ContainerResult `json:"containers"`

	// Summary provides aggregate statistics.
	Summary RunSummary `json:"summary"`
}

// Ok reports whether the run succeeded for the host and every container.
// A run that is not ok must exit non-zero.
func (r *RunReport) Ok() bool {
	for _, s := range r.Host {
		if s.Status == StageStatusFailed {
			return false
		}
	}
	return r.Summary.Failed == 0
}
