package session

import (
	"fmt"
	"testing"
	"time"
)

func TestRegistryPutGetForget(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get("alice"); ok {
		t.Fatalf("expected no session before Put")
	}

	r.Put("alice", Session{WorkspaceDir: "/projects/alice"})
	s, ok := r.Get("alice")
	if !ok || s.WorkspaceDir != "/projects/alice" {
		t.Fatalf("unexpected session: %+v ok=%t", s, ok)
	}

	r.Forget("alice")
	if _, ok := r.Get("alice"); ok {
		t.Fatalf("expected session removed after Forget")
	}
}

func TestDeduperSuppressesInsideWindow(t *testing.T) {
	d := NewDeduper(100, 10*time.Second)
	current := time.Unix(1000, 0)
	d.now = func() time.Time { return current }

	if d.ShouldSuppress("alice-./qubic-cli", time.Second) {
		t.Fatalf("first occurrence must not be suppressed")
	}
	current = current.Add(500 * time.Millisecond)
	if !d.ShouldSuppress("alice-./qubic-cli", time.Second) {
		t.Fatalf("repeat inside the window must be suppressed")
	}

	// Once the window elapses the key is accepted again.
	current = current.Add(2 * time.Second)
	if d.ShouldSuppress("alice-./qubic-cli", time.Second) {
		t.Fatalf("repeat after the window must pass")
	}
}

func TestDeduperTracksKeysIndependently(t *testing.T) {
	d := NewDeduper(100, 10*time.Second)

	if d.ShouldSuppress("alice-msg", 3*time.Second) {
		t.Fatalf("first alice message suppressed")
	}
	if d.ShouldSuppress("bob-msg", 3*time.Second) {
		t.Fatalf("bob must not be affected by alice's entry")
	}
}

func TestDeduperEvictsOldEntriesPastBound(t *testing.T) {
	d := NewDeduper(10, 10*time.Second)
	current := time.Unix(1000, 0)
	d.now = func() time.Time { return current }

	for i := 0; i < 10; i++ {
		d.ShouldSuppress(fmt.Sprintf("old-%d", i), time.Second)
	}

	// Push past the eviction horizon, then past the size bound: the stale
	// entries must be pruned.
	current = current.Add(11 * time.Second)
	d.ShouldSuppress("fresh", time.Second)

	if got := d.size(); got != 1 {
		t.Fatalf("expected 1 entry after eviction, got %d", got)
	}
}
