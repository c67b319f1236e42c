package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/openhutch/openhutch/pkg/telemetry"
)

// Pipeline is the ordered stage sequence for one declared container.
type Pipeline struct {
	// ContainerID is the container this pipeline provisions.
	ContainerID string

	// Stages are executed in order; the pipeline stops at the first failure.
	Stages []Stage
}

// Orchestrator drives host-scope stages and per-container pipelines against
// the marker store. Execution is single-threaded and strictly sequential: no
// stage runs concurrently with another, and each container pipeline reaches a
// terminal state before the next begins.
type Orchestrator struct {
	markers  MarkerStore
	retry    *RetryExecutor
	policy   RetryPolicy
	rollback RollbackAction
	locks    *LockDir
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	logger   zerolog.Logger

	// owner is the base marker-owner identity, e.g. "root@pve1"; the run ID
	// is appended per run.
	owner string
}

// OrchestratorOptions configures an Orchestrator. Markers and Logger are
// required; the rest have working defaults.
type OrchestratorOptions struct {
	Markers  MarkerStore
	Rollback RollbackAction
	Locks    *LockDir
	Policy   RetryPolicy
	Metrics  *telemetry.Metrics
	Tracer   trace.Tracer
	Logger   zerolog.Logger
	Owner    string
}

// NewOrchestrator creates an orchestrator from the given options.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Markers == nil {
		return nil, NewConfigurationError("orchestrator requires a marker store", nil).
			WithCode(ErrCodeValidation)
	}
	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("engine")
	}
	return &Orchestrator{
		markers:  opts.Markers,
		retry:    NewRetryExecutor(opts.Logger),
		policy:   policy,
		rollback: opts.Rollback,
		locks:    opts.Locks,
		metrics:  opts.Metrics,
		tracer:   tracer,
		logger:   opts.Logger.With().Str("component", "orchestrator").Logger(),
		owner:    opts.Owner,
	}, nil
}

// Run executes all host stages, then every container pipeline. Host stages are
// fatal: the first host failure aborts the run before any container work. A
// container pipeline failure triggers rollback for that container only; the
// run still processes every remaining container and reports the aggregate.
func (o *Orchestrator) Run(ctx context.Context, host []Stage, pipelines []Pipeline) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	logger := o.logger.With().Str("run_id", report.RunID).Logger()
	owner := fmt.Sprintf("%s:%s", o.owner, report.RunID)

	ctx, span := o.tracer.Start(ctx, "engine.Run",
		trace.WithAttributes(attribute.String("run_id", report.RunID)))
	defer span.End()

	logger.Info().
		Int("host_stages", len(host)).
		Int("containers", len(pipelines)).
		Msg("Provisioning run started")

	for _, stage := range host {
		result := o.runStage(ctx, logger, stage, "", owner)
		report.Host = append(report.Host, result)
		report.Summary.HostStages++
		if result.Status == StageStatusFailed {
			report.CompletedAt = time.Now()
			o.observeRun(report, "failed")
			return report, fmt.Errorf("host stage %s failed: %w", stage.ID, result.Err)
		}
	}

	for _, p := range pipelines {
		result := o.runPipeline(ctx, logger, p, owner)
		report.Containers = append(report.Containers, result)
		report.Summary.Containers++
		if result.Succeeded() {
			report.Summary.Succeeded++
		} else {
			report.Summary.Failed++
		}
	}

	report.CompletedAt = time.Now()
	status := "succeeded"
	if !report.Ok() {
		status = "partial"
	}
	o.observeRun(report, status)

	logger.Info().
		Int("succeeded", report.Summary.Succeeded).
		Int("failed", report.Summary.Failed).
		Dur("duration", report.CompletedAt.Sub(report.StartedAt)).
		Msg("Provisioning run finished")

	return report, nil
}

// runPipeline runs one container's stage sequence to a terminal state,
// rolling back the container on unrecoverable failure.
func (o *Orchestrator) runPipeline(ctx context.Context, logger zerolog.Logger, p Pipeline, owner string) ContainerResult {
	result := ContainerResult{ContainerID: p.ContainerID}
	ctLogger := logger.With().Str("container", p.ContainerID).Logger()

	ctx, span := o.tracer.Start(ctx, "engine.Pipeline",
		trace.WithAttributes(attribute.String("container", p.ContainerID)))
	defer span.End()

	if o.locks != nil {
		unlock, err := o.locks.Acquire(p.ContainerID)
		if err != nil {
			result.Err = err
			ctLogger.Error().Err(err).Msg("Container pipeline lock not acquired")
			return result
		}
		defer unlock()
	}

	for _, stage := range p.Stages {
		sr := o.runStage(ctx, ctLogger, stage, p.ContainerID, owner)
		result.Stages = append(result.Stages, sr)
		if sr.Status == StageStatusFailed {
			result.Err = sr.Err
			if o.rollback != nil {
				o.rollback.Rollback(ctx, p.ContainerID)
				result.RolledBack = true
				if o.metrics != nil {
					o.metrics.RollbackPerformed()
				}
			}
			return result
		}
	}

	return result
}

// runStage executes a single stage: marker check, retried action, marker write.
func (o *Orchestrator) runStage(ctx context.Context, logger zerolog.Logger, stage Stage, containerID, owner string) StageResult {
	start := time.Now()
	result := StageResult{StageID: stage.ID}
	stLogger := logger.With().Str("stage", stage.ID).Str("scope", string(stage.Scope)).Logger()

	if err := stage.Validate(); err != nil {
		result.Status = StageStatusFailed
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	exists, err := o.markers.Exists(ctx, stage.MarkerKey)
	if err != nil {
		result.Status = StageStatusFailed
		result.Err = NewEnvironmentalError("marker lookup failed", err).WithStage(stage.ID)
		result.Duration = time.Since(start)
		return result
	}
	if exists {
		stLogger.Debug().Str("marker", stage.MarkerKey).Msg("Marker present, skipping stage")
		result.Status = StageStatusSkipped
		result.Duration = time.Since(start)
		o.observeStage(stage, result)
		return result
	}

	ctx, span := o.tracer.Start(ctx, "engine.Stage",
		trace.WithAttributes(
			attribute.String("stage", stage.ID),
			attribute.String("scope", string(stage.Scope)),
		))
	defer span.End()

	attempts, actionErr := o.retry.Execute(ctx, stage.Run, o.policy)
	result.Attempts = attempts
	if o.metrics != nil && attempts > 1 {
		o.metrics.StageRetries(string(stage.Scope), attempts-1)
	}

	if actionErr != nil {
		result.Status = StageStatusFailed
		result.Err = o.wrapStageError(actionErr, stage, containerID)
		result.Duration = time.Since(start)
		stLogger.Error().Err(actionErr).Int("attempts", attempts).Msg("Stage failed")
		o.observeStage(stage, result)
		return result
	}

	// Marker written only after confirmed success. A crash before this write
	// re-runs the action next time, which actions must tolerate.
	if err := o.markers.Record(ctx, stage.MarkerKey, owner); err != nil {
		result.Status = StageStatusFailed
		result.Err = NewEnvironmentalError("marker write failed", err).WithStage(stage.ID)
		result.Duration = time.Since(start)
		o.observeStage(stage, result)
		return result
	}

	result.Status = StageStatusSucceeded
	result.Duration = time.Since(start)
	stLogger.Info().Int("attempts", attempts).Dur("duration", result.Duration).Msg("Stage completed")
	o.observeStage(stage, result)
	return result
}

// wrapStageError attaches stage and container context to an action error.
func (o *Orchestrator) wrapStageError(err error, stage Stage, containerID string) error {
	var e *Error
	if AsError(err, &e) {
		if e.Stage == "" {
			e.Stage = stage.ID
		}
		if e.Container == "" {
			e.Container = containerID
		}
		return e
	}
	wrapped := &Error{
		Class:     ErrorClassTransient,
		Message:   "stage action failed",
		Code:      ErrCodeStageFailed,
		Stage:     stage.ID,
		Container: containerID,
		Err:       err,
	}
	return wrapped
}

func (o *Orchestrator) observeStage(stage Stage, result StageResult) {
	if o.metrics == nil {
		return
	}
	o.metrics.StageExecuted(string(stage.Scope), string(result.Status), result.Duration)
}

func (o *Orchestrator) observeRun(report *RunReport, status string) {
	if o.metrics == nil {
		return
	}
	o.metrics.RunCompleted(status, report.CompletedAt.Sub(report.StartedAt))
	o.metrics.ContainersProvisioned(report.Summary.Succeeded)
}
