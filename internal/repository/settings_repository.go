package repository

import (
	"sync"
	"sync/atomic"

	"github.com/spec-kit/deskbot/internal/domain"
)

// SettingsRepository holds the process-wide configuration snapshot.
// Readers never block; writers copy, mutate and publish a new version.
type SettingsRepository struct {
	writeMu sync.Mutex
	current atomic.Pointer[domain.Settings]
}

// NewSettingsRepository publishes initial as version 1.
func NewSettingsRepository(initial domain.Settings) *SettingsRepository {
	r := &SettingsRepository{}
	snapshot := initial.Clone()
	snapshot.Version = 1
	r.current.Store(&snapshot)
	return r
}

// Snapshot returns the current settings. Callers must not mutate slices.
func (r *SettingsRepository) Snapshot() domain.Settings {
	return *r.current.Load()
}

// Update applies mutate to a copy of the current settings and publishes it.
func (r *SettingsRepository) Update(mutate func(*domain.Settings)) domain.Settings {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	next := r.current.Load().Clone()
	mutate(&next)
	next.Version++
	r.current.Store(&next)
	return next
}
