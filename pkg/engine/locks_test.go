package engine

import (
	"testing"
)

func TestLockDirSerializesPerContainer(t *testing.T) {
	locks, err := NewLockDir(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create lock dir: %v", err)
	}

	unlock, err := locks.Acquire("901")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := locks.Acquire("901"); err == nil {
		t.Fatal("second acquire of the same container must fail")
	} else {
		var e *Error
		if !AsError(err, &e) || e.Code != ErrCodeLockHeld {
			t.Errorf("expected lock-held error, got %v", err)
		}
	}

	// A different container is unaffected.
	unlock902, err := locks.Acquire("902")
	if err != nil {
		t.Fatalf("acquire of another container failed: %v", err)
	}
	unlock902()

	unlock()
	unlock2, err := locks.Acquire("901")
	if err != nil {
		t.Fatalf("reacquire after unlock failed: %v", err)
	}
	unlock2()
}
