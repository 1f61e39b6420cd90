// Package scheduler runs the bot's deferred work: per-ticket timers that
// can be cancelled by key, and a cron janitor for periodic sweeps.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/deskbot/internal/clock"
)

// Kind separates the timers a single ticket may hold at once.
type Kind string

const (
	KindInactivity Kind = "inactivity"
	KindTeardown   Kind = "teardown"
)

// Key addresses one pending task.
type Key struct {
	TicketID string
	Kind     Kind
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Kind, k.TicketID)
}

type task struct {
	timer *clock.Timer
}

// Timers holds at most one pending task per key. Scheduling a key that is
// already pending replaces the earlier task.
type Timers struct {
	mu     sync.Mutex
	clock  clock.Clock
	logger *zap.Logger
	tasks  map[Key]*task
}

// NewTimers builds an empty timer table on clk.
func NewTimers(clk clock.Clock, logger *zap.Logger) *Timers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timers{
		clock:  clk,
		logger: logger,
		tasks:  make(map[Key]*task),
	}
}

// Schedule runs fn after d unless the key is cancelled or rescheduled first.
// A panic in fn is logged and swallowed.
func (t *Timers) Schedule(key Key, d time.Duration, fn func()) {
	t.mu.Lock()
	if prev, ok := t.tasks[key]; ok {
		prev.timer.Stop()
	}
	pending := &task{}
	t.tasks[key] = pending
	t.mu.Unlock()

	timer := t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if t.tasks[key] != pending {
			t.mu.Unlock()
			return
		}
		delete(t.tasks, key)
		t.mu.Unlock()
		t.run(key, fn)
	})

	t.mu.Lock()
	pending.timer = timer
	t.mu.Unlock()
}

func (t *Timers) run(key Key, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("scheduled task panicked", zap.Stringer("task", key), zap.Any("panic", r))
		}
	}()
	fn()
}

// Cancel stops the task under key. It reports whether one was pending.
func (t *Timers) Cancel(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.tasks[key]
	if !ok {
		return false
	}
	current.timer.Stop()
	delete(t.tasks, key)
	return true
}

// CancelTicket stops every task held for ticketID.
func (t *Timers) CancelTicket(ticketID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cancelled := 0
	for key, current := range t.tasks {
		if key.TicketID == ticketID {
			current.timer.Stop()
			delete(t.tasks, key)
			cancelled++
		}
	}
	return cancelled
}

// Pending reports whether a task is scheduled under key.
func (t *Timers) Pending(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tasks[key]
	return ok
}

// Len reports the number of pending tasks.
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// Stop cancels every pending task. Used on shutdown.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, current := range t.tasks {
		current.timer.Stop()
		delete(t.tasks, key)
	}
}
