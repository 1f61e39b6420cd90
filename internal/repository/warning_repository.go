package repository

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/deskbot/internal/domain"
)

// WarningRepository stores append-only moderation warnings per identity.
type WarningRepository interface {
	// Append records a warning and returns the identity's new total.
	Append(ctx context.Context, identity string, warning domain.Warning) (int, error)
	// ListByIdentity returns warnings in insertion order.
	ListByIdentity(ctx context.Context, identity string) ([]domain.Warning, error)
}

type memoryWarningRepository struct {
	mu       sync.RWMutex
	warnings map[string][]domain.Warning
}

// NewWarningRepository returns a process-local warning ledger.
func NewWarningRepository() WarningRepository {
	return &memoryWarningRepository{warnings: make(map[string][]domain.Warning)}
}

func (r *memoryWarningRepository) Append(_ context.Context, identity string, warning domain.Warning) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings[identity] = append(r.warnings[identity], warning)
	return len(r.warnings[identity]), nil
}

func (r *memoryWarningRepository) ListByIdentity(_ context.Context, identity string) ([]domain.Warning, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Warning{}, r.warnings[identity]...), nil
}

type warningRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresWarningRepository persists warnings in the warnings table.
func NewPostgresWarningRepository(pool *pgxpool.Pool) WarningRepository {
	return &warningRepository{pool: pool}
}

func (r *warningRepository) Append(ctx context.Context, identity string, warning domain.Warning) (int, error) {
	const query = `
        WITH inserted AS (
            INSERT INTO warnings (identity, reason, issuer, issued_at)
            VALUES ($1,$2,$3,$4)
            RETURNING identity
        )
        SELECT COUNT(*) + 1 FROM warnings WHERE identity=$1`
	var count int
	if err := r.pool.QueryRow(ctx, query, identity, warning.Reason, warning.Issuer, warning.IssuedAt).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *warningRepository) ListByIdentity(ctx context.Context, identity string) ([]domain.Warning, error) {
	const query = `
        SELECT reason, issuer, issued_at
        FROM warnings WHERE identity=$1 ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Warning{}
	for rows.Next() {
		var w domain.Warning
		if err := rows.Scan(&w.Reason, &w.Issuer, &w.IssuedAt); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}
