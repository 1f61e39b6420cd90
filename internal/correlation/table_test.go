package correlation

import (
	"testing"
	"time"

	"github.com/spec-kit/deskbot/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTakeReturnsOwnEntryUnderConcurrentOwners(t *testing.T) {
	clk := clock.Fake(epoch)
	table := NewTable[string](clk, 10*time.Minute)

	keyA := table.Put("alice", "role-a")
	keyB := table.Put("bob", "role-b")

	got, ok := table.Take(keyB)
	if !ok || got != "role-b" {
		t.Fatalf("Take(B) = %q, %v", got, ok)
	}
	got, ok = table.Take(keyA)
	if !ok || got != "role-a" {
		t.Fatalf("Take(A) = %q, %v", got, ok)
	}
}

func TestTakeIsSingleUse(t *testing.T) {
	table := NewTable[int](clock.Fake(epoch), time.Minute)
	key := table.Put("alice", 7)
	if _, ok := table.Take(key); !ok {
		t.Fatal("first Take missed")
	}
	if _, ok := table.Take(key); ok {
		t.Error("second Take hit")
	}
}

func TestTakeRejectsForeignOwner(t *testing.T) {
	table := NewTable[int](clock.Fake(epoch), time.Minute)
	key := table.Put("alice", 7)
	if _, ok := table.Take(Key{Owner: "mallory", Token: key.Token}); ok {
		t.Error("token accepted for another owner")
	}
	if _, ok := table.Take(key); !ok {
		t.Error("owner's entry was consumed by the foreign lookup")
	}
}

func TestExpiry(t *testing.T) {
	clk := clock.Fake(epoch)
	table := NewTable[int](clk, 5*time.Minute)
	stale := table.Put("alice", 1)
	clk.Advance(5 * time.Minute)
	fresh := table.Put("bob", 2)

	if _, ok := table.Take(stale); ok {
		t.Error("expired entry returned")
	}
	if n := table.Sweep(); n != 0 {
		t.Errorf("Sweep removed %d, want 0 (stale already taken)", n)
	}
	clk.Advance(5 * time.Minute)
	if n := table.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if _, ok := table.Take(fresh); ok {
		t.Error("swept entry returned")
	}
}

func TestAcquireHoldsUntilReleased(t *testing.T) {
	clk := clock.Fake(epoch)
	table := NewTable[int](clk, 5*time.Minute)
	key := table.Put("alice", 7)

	got, ok := table.Acquire(key)
	if !ok || got != 7 {
		t.Fatalf("Acquire = %d, %v", got, ok)
	}
	if _, ok := table.Acquire(key); ok {
		t.Error("held entry acquired twice")
	}
	table.Release(key)
	if table.Len() != 1 {
		t.Fatalf("Len = %d after Release, want 1", table.Len())
	}
	if _, ok := table.Acquire(key); !ok {
		t.Fatal("released entry not acquirable")
	}
	if got, ok := table.Take(key); !ok || got != 7 {
		t.Errorf("Take of held entry = %d, %v", got, ok)
	}
	if _, ok := table.Acquire(key); ok {
		t.Error("taken entry acquired")
	}
}

func TestReleaseKeepsExpiry(t *testing.T) {
	clk := clock.Fake(epoch)
	table := NewTable[int](clk, 5*time.Minute)
	key := table.Put("alice", 7)
	if _, ok := table.Acquire(key); !ok {
		t.Fatal("Acquire missed")
	}
	clk.Advance(5 * time.Minute)
	table.Release(key)
	if _, ok := table.Acquire(key); ok {
		t.Error("expired entry acquired after Release")
	}
}
