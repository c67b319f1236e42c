package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcherReloadsValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.yaml")
	if err := os.WriteFile(path, []byte(validCluster), 0o644); err != nil {
		t.Fatalf("failed to write cluster file: %v", err)
	}

	specs := make(chan *ClusterSpec, 1)
	watcher, err := NewWatcher(path, func(spec *ClusterSpec) {
		select {
		case specs <- spec:
		default:
		}
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	// An invalid intermediate state must not be delivered.
	if err := os.WriteFile(path, []byte("containers: ["), 0o644); err != nil {
		t.Fatalf("failed to write invalid content: %v", err)
	}
	select {
	case spec := <-specs:
		t.Fatalf("invalid cluster file must not reload, got %+v", spec)
	case <-time.After(2 * time.Second):
	}

	// A valid change is delivered after the debounce window.
	updated := validCluster + `
  - id: "903"
    name: cpu-node-903
    cores: 2
    memory_mb: 4096
    template: local:vztmpl/ubuntu-22.04.tar.zst
    rootfs: local-lvm:16
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("failed to write updated content: %v", err)
	}

	select {
	case spec := <-specs:
		if len(spec.Containers) != 3 {
			t.Errorf("expected 3 containers after reload, got %d", len(spec.Containers))
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}
