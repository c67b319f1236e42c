package engine

import "context"

// MarkerStore is the durable record of which stages have already succeeded.
// A marker is written only after its action is confirmed successful and is
// removed only by rollback or explicit teardown.
type MarkerStore interface {
	// Exists reports whether a marker has been recorded for key.
	Exists(ctx context.Context, key string) (bool, error)

	// Record durably stores a marker for key on behalf of owner.
	Record(ctx context.Context, key, owner string) error

	// Revoke removes the marker for key. Revoking an absent key is not an error.
	Revoke(ctx context.Context, key string) error

	// RevokeByPrefix removes every marker whose key starts with prefix and
	// returns the number removed.
	RevokeByPrefix(ctx context.Context, prefix string) (int64, error)
}

// ContainerTerminator is the slice of the container lifecycle the rollback
// action needs: stopping and destroying a partially provisioned container.
type ContainerTerminator interface {
	Stop(ctx context.Context, id string) error
	Destroy(ctx context.Context, id string) error
}

// RollbackAction undoes a partially provisioned container after an
// unrecoverable pipeline failure. Best-effort: failures are logged, not
// escalated, and the action is never retried.
type RollbackAction interface {
	Rollback(ctx context.Context, containerID string)
}
