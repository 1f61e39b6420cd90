// Package correlation binds a form shown to a user to the submission that
// later arrives for it. Entries are keyed by the user and a random token,
// both of which travel inside the form's identifier, so concurrent users
// never share a slot.
package correlation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/deskbot/internal/clock"
)

// Key identifies one pending entry.
type Key struct {
	Owner string
	Token string
}

type entry[T any] struct {
	value     T
	expiresAt time.Time
	held      bool
}

// Table holds pending values of type T until they are taken or expire.
type Table[T any] struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	entries map[Key]entry[T]
}

// NewTable returns a Table whose entries live for ttl.
func NewTable[T any](clk clock.Clock, ttl time.Duration) *Table[T] {
	return &Table[T]{
		clock:   clk,
		ttl:     ttl,
		entries: make(map[Key]entry[T]),
	}
}

// Put stores value for owner under a fresh token and returns the key.
func (t *Table[T]) Put(owner string, value T) Key {
	key := Key{Owner: owner, Token: NewToken()}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = entry[T]{value: value, expiresAt: t.clock.Now().Add(t.ttl)}
	return key
}

// Take removes and returns the value stored under key. Expired entries
// are discarded and reported as missing.
func (t *Table[T]) Take(key Key) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	e, ok := t.entries[key]
	if !ok {
		return zero, false
	}
	delete(t.entries, key)
	if !t.clock.Now().Before(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Acquire returns the value stored under key and holds the entry so a
// concurrent Acquire of the same key misses. The entry stays stored: the
// caller finishes with Take on success or Release on failure.
func (t *Table[T]) Acquire(key Key) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	e, ok := t.entries[key]
	if !ok || e.held {
		return zero, false
	}
	if !t.clock.Now().Before(e.expiresAt) {
		delete(t.entries, key)
		return zero, false
	}
	e.held = true
	t.entries[key] = e
	return e.value, true
}

// Release makes a held entry available again. Its expiry is unchanged.
func (t *Table[T]) Release(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		e.held = false
		t.entries[key] = e
	}
}

// Sweep drops expired entries and returns how many were removed.
func (t *Table[T]) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	removed := 0
	for key, e := range t.entries {
		if !now.Before(e.expiresAt) {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// NewToken returns a short random token safe to embed in identifiers.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
