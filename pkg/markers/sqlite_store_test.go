package markers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T, root string) *SQLiteStore {
	t.Helper()
	store, err := Open(context.Background(), root)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return store
}

func TestExistsRecordRevoke(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	key := ContainerKey("901", "create")

	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if exists {
		t.Fatal("fresh store must not contain the marker")
	}

	if err := store.Record(ctx, key, "root@pve1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	exists, err = store.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("expected marker present, exists=%v err=%v", exists, err)
	}

	// Recording the same key again refreshes, not errors.
	if err := store.Record(ctx, key, "root@pve2"); err != nil {
		t.Fatalf("re-record failed: %v", err)
	}

	if err := store.Revoke(ctx, key); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	exists, _ = store.Exists(ctx, key)
	if exists {
		t.Error("revoked marker must be absent")
	}

	// Revoking an absent key is not an error.
	if err := store.Revoke(ctx, key); err != nil {
		t.Errorf("revoke of absent key failed: %v", err)
	}
}

func TestRevokeByPrefixRemovesOnlyMatching(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	recorded := []string{
		HostKey("driver-install"),
		ContainerKey("901", "create"),
		ContainerKey("901", "passthrough"),
		ContainerKey("9011", "create"),
	}
	for _, key := range recorded {
		if err := store.Record(ctx, key, "test"); err != nil {
			t.Fatalf("record %s failed: %v", key, err)
		}
	}

	n, err := store.RevokeByPrefix(ctx, ContainerPrefix("901"))
	if err != nil {
		t.Fatalf("revoke by prefix failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 markers revoked, got %d", n)
	}

	// The host marker and the lexically adjacent container survive.
	for _, key := range []string{HostKey("driver-install"), ContainerKey("9011", "create")} {
		exists, _ := store.Exists(ctx, key)
		if !exists {
			t.Errorf("marker %s must survive prefix revoke", key)
		}
	}
}

func TestListOrdersByKey(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	for _, key := range []string{ContainerKey("902", "create"), HostKey("runtime"), ContainerKey("901", "create")} {
		if err := store.Record(ctx, key, "test"); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	records, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i-1].Key > records[i].Key {
			t.Errorf("records out of order: %s before %s", records[i-1].Key, records[i].Key)
		}
	}

	scoped, err := store.List(ctx, ContainerPrefix("901"))
	if err != nil {
		t.Fatalf("scoped list failed: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Key != ContainerKey("901", "create") {
		t.Errorf("unexpected scoped records: %v", scoped)
	}
}

func TestMarkersPersistAcrossReopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	store := openTestStore(t, root)
	key := ContainerKey("901", "create")
	if err := store.Record(ctx, key, "root@pve1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened := openTestStore(t, root)
	defer reopened.Close()
	exists, err := reopened.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("marker must survive reopen, exists=%v err=%v", exists, err)
	}
}

func TestTeardownRemovesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "markers")
	store := openTestStore(t, root)

	if err := store.Record(context.Background(), HostKey("runtime"), "test"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := store.Teardown(); err != nil {
		t.Fatalf("teardown failed: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("store root must be removed, stat err=%v", err)
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := HostKey("driver-install"); got != "host/driver-install" {
		t.Errorf("unexpected host key %s", got)
	}
	if got := ContainerKey("901", "create"); got != "ct/901/create" {
		t.Errorf("unexpected container key %s", got)
	}
	if got := ContainerPrefix("901"); got != "ct/901/" {
		t.Errorf("unexpected container prefix %s", got)
	}
}
