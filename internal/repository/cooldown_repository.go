package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownRepository maps an identity to the moment before which a new
// application is refused.
type CooldownRepository interface {
	// Acquire writes a cooldown ending at now+window unless one is active.
	// When one is active it returns the time left and acquired=false.
	Acquire(ctx context.Context, identity string, now time.Time, window time.Duration) (remaining time.Duration, acquired bool, err error)
	// Remaining reports the time left on identity's cooldown, zero when none.
	Remaining(ctx context.Context, identity string, now time.Time) (time.Duration, error)
	// Sweep drops entries that expired before now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type memoryCooldownRepository struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

// NewCooldownRepository returns a process-local cooldown table.
func NewCooldownRepository() CooldownRepository {
	return &memoryCooldownRepository{expires: make(map[string]time.Time)}
}

func (r *memoryCooldownRepository) Acquire(_ context.Context, identity string, now time.Time, window time.Duration) (time.Duration, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if until, ok := r.expires[identity]; ok && until.After(now) {
		return until.Sub(now), false, nil
	}
	r.expires[identity] = now.Add(window)
	return 0, true, nil
}

func (r *memoryCooldownRepository) Remaining(_ context.Context, identity string, now time.Time) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if until, ok := r.expires[identity]; ok && until.After(now) {
		return until.Sub(now), nil
	}
	return 0, nil
}

func (r *memoryCooldownRepository) Sweep(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for identity, until := range r.expires {
		if !until.After(now) {
			delete(r.expires, identity)
			removed++
		}
	}
	return removed, nil
}

const cooldownKeyPrefix = "deskbot:cooldown:"

type redisCooldownRepository struct {
	client *redis.Client
}

// NewRedisCooldownRepository keeps cooldowns in Redis so they are shared
// with anything else reading the same keys. Expiry is enforced by Redis
// key TTLs, so the now argument only matters for the memory variant.
func NewRedisCooldownRepository(client *redis.Client) CooldownRepository {
	return &redisCooldownRepository{client: client}
}

func (r *redisCooldownRepository) Acquire(ctx context.Context, identity string, now time.Time, window time.Duration) (time.Duration, bool, error) {
	key := cooldownKeyPrefix + identity
	ok, err := r.client.SetNX(ctx, key, now.Add(window).UnixMilli(), window).Result()
	if err != nil {
		return 0, false, err
	}
	if ok {
		return 0, true, nil
	}
	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	if ttl <= 0 {
		// Expired between SETNX and PTTL; take the slot.
		if err := r.client.Set(ctx, key, now.Add(window).UnixMilli(), window).Err(); err != nil {
			return 0, false, err
		}
		return 0, true, nil
	}
	return ttl, false, nil
}

func (r *redisCooldownRepository) Remaining(ctx context.Context, identity string, _ time.Time) (time.Duration, error) {
	ttl, err := r.client.PTTL(ctx, cooldownKeyPrefix+identity).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *redisCooldownRepository) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
