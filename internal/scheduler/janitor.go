package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweepFunc drops expired state and reports how many entries it removed.
type SweepFunc func(ctx context.Context) (int, error)

// Janitor runs named sweeps on a cron schedule.
type Janitor struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]cron.EntryID
	sweeps map[string]SweepFunc
	logger *zap.Logger
}

// NewJanitor creates an idle janitor.
func NewJanitor(logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		cron:   cron.New(),
		jobs:   make(map[string]cron.EntryID),
		sweeps: make(map[string]SweepFunc),
		logger: logger,
	}
}

// AddSweep registers fn under name. The schedule is a cron expression or a
// descriptor such as "@every 1m".
func (j *Janitor) AddSweep(name, schedule string, fn SweepFunc) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.jobs[name]; exists {
		return fmt.Errorf("janitor: sweep %q already registered", name)
	}
	id, err := j.cron.AddFunc(schedule, func() {
		j.runSweep(context.Background(), name, fn)
	})
	if err != nil {
		return fmt.Errorf("janitor: invalid schedule %q: %w", schedule, err)
	}
	j.jobs[name] = id
	j.sweeps[name] = fn
	j.logger.Info("sweep registered", zap.String("sweep", name), zap.String("schedule", schedule))
	return nil
}

// Start runs the cron loop until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.cron.Start()
	j.logger.Info("janitor started")

	<-ctx.Done()
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
	return ctx.Err()
}

// RunNow executes every registered sweep once, in the caller's goroutine.
func (j *Janitor) RunNow(ctx context.Context) int {
	j.mu.Lock()
	sweeps := make(map[string]SweepFunc, len(j.sweeps))
	for name, fn := range j.sweeps {
		sweeps[name] = fn
	}
	j.mu.Unlock()

	total := 0
	for name, fn := range sweeps {
		total += j.runSweep(ctx, name, fn)
	}
	return total
}

func (j *Janitor) runSweep(ctx context.Context, name string, fn SweepFunc) int {
	removed, err := fn(ctx)
	if err != nil {
		j.logger.Warn("sweep failed", zap.String("sweep", name), zap.Error(err))
		return 0
	}
	if removed > 0 {
		j.logger.Debug("sweep removed entries", zap.String("sweep", name), zap.Int("removed", removed))
	}
	return removed
}

// JobCount returns the number of registered sweeps.
func (j *Janitor) JobCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.jobs)
}
