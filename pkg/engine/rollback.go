package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openhutch/openhutch/pkg/markers"
)

// ContainerRollback is the default RollbackAction: stop and destroy the
// partially provisioned container, then revoke every marker recorded for it so
// a future run treats the container as never started.
type ContainerRollback struct {
	lifecycle ContainerTerminator
	markers   MarkerStore
	logger    zerolog.Logger
}

// NewContainerRollback creates the default rollback action.
func NewContainerRollback(lifecycle ContainerTerminator, markers MarkerStore, logger zerolog.Logger) *ContainerRollback {
	return &ContainerRollback{
		lifecycle: lifecycle,
		markers:   markers,
		logger:    logger.With().Str("component", "rollback").Logger(),
	}
}

// Rollback tears the container down best-effort. Each step's failure is logged
// as a warning and never escalates; the original pipeline failure stays the
// reported error.
func (r *ContainerRollback) Rollback(ctx context.Context, containerID string) {
	logger := r.logger.With().Str("container", containerID).Logger()
	logger.Warn().Msg("Rolling back partially provisioned container")

	if err := r.lifecycle.Stop(ctx, containerID); err != nil {
		logger.Warn().Err(err).Msg("Rollback stop failed")
	}
	if err := r.lifecycle.Destroy(ctx, containerID); err != nil {
		logger.Warn().Err(err).Msg("Rollback destroy failed")
	}

	revoked, err := r.markers.RevokeByPrefix(ctx, markers.ContainerPrefix(containerID))
	if err != nil {
		logger.Warn().Err(err).Msg("Rollback marker revoke failed")
		return
	}
	logger.Info().Int64("revoked", revoked).Msg("Container markers revoked")
}
