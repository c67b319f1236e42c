package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// LockDir hands out per-container advisory locks backed by flock(2) on files
// under a single directory. The shared mutable resource is the on-host
// container configuration file; the lock serializes concurrent orchestrator
// invocations against the same container ID.
type LockDir struct {
	dir string
}

// NewLockDir creates the lock directory if needed and returns a LockDir.
func NewLockDir(dir string) (*LockDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewEnvironmentalError("lock directory not writable", err).
			WithCode(ErrCodeUnwritable)
	}
	return &LockDir{dir: dir}, nil
}

// Acquire takes the exclusive lock for containerID without blocking. It
// returns an unlock function, or a lock-held error when another invocation is
// already provisioning the same container.
func (l *LockDir) Acquire(containerID string) (func(), error) {
	path := filepath.Join(l.dir, fmt.Sprintf("ct-%s.lock", containerID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, NewEnvironmentalError("lock file not writable", err).
			WithCode(ErrCodeUnwritable).WithContainer(containerID)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, NewEnvironmentalError("container is locked by another invocation", err).
			WithCode(ErrCodeLockHeld).WithContainer(containerID)
	}

	unlock := func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}
	return unlock, nil
}
