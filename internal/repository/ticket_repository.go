package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/deskbot/internal/domain"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

// TicketRepository is the authoritative table of ticket instances keyed by
// channel id. Every Mark* method re-checks its guard flag and mutates in
// one critical section, so interleaved handlers cannot both pass a guard.
type TicketRepository interface {
	// ReserveOwner claims the owner's single open-ticket slot before the
	// channel is created. It fails with DuplicateTicket while the owner
	// has an open ticket or another reservation in flight.
	ReserveOwner(ctx context.Context, ownerID string) error
	// ReleaseOwner drops a reservation that never became a ticket.
	ReleaseOwner(ctx context.Context, ownerID string)
	// Create stores a ticket, converting the owner's reservation.
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetOpenByOwner(ctx context.Context, ownerID string) (*domain.Ticket, error)
	List(ctx context.Context) ([]domain.Ticket, error)
	// Touch records activity; it reports false for unknown or closed tickets.
	Touch(ctx context.Context, id string, at time.Time) bool
	MarkClaimed(ctx context.Context, id, actorID string) (*domain.Ticket, error)
	MarkLocked(ctx context.Context, id string) (*domain.Ticket, error)
	MarkClosed(ctx context.Context, id, actorID string, at time.Time) (*domain.Ticket, error)
	// Delete removes the record; it reports whether one existed.
	Delete(ctx context.Context, id string) bool
}

type memoryTicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	// openByOwner maps owner id to the open ticket id, or "" while a
	// reservation is in flight.
	openByOwner map[string]string
}

// NewTicketRepository instantiates the in-memory ticket table.
func NewTicketRepository() TicketRepository {
	return &memoryTicketRepository{
		tickets:     make(map[string]*domain.Ticket),
		openByOwner: make(map[string]string),
	}
}

func (r *memoryTicketRepository) ReserveOwner(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.openByOwner[ownerID]; ok {
		return apperrors.NewDuplicateTicket(existing)
	}
	r.openByOwner[ownerID] = ""
	return nil
}

func (r *memoryTicketRepository) ReleaseOwner(_ context.Context, ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.openByOwner[ownerID]; ok && id == "" {
		delete(r.openByOwner, ownerID)
	}
}

func (r *memoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[ticket.ID]; exists {
		return apperrors.NewValidationError("ticket channel already tracked", map[string]any{"ticket_id": ticket.ID})
	}
	if id, ok := r.openByOwner[ticket.Owner.ID]; ok && id != "" {
		return apperrors.NewDuplicateTicket(id)
	}
	stored := *ticket
	r.tickets[ticket.ID] = &stored
	if !ticket.Closed {
		r.openByOwner[ticket.Owner.ID] = ticket.ID
	}
	return nil
}

func (r *memoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, notFoundTicket(id)
	}
	out := *t
	return &out, nil
}

func (r *memoryTicketRepository) GetOpenByOwner(_ context.Context, ownerID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.openByOwner[ownerID]
	t, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"owner_id": ownerID})
	}
	out := *t
	return &out, nil
}

func (r *memoryTicketRepository) List(_ context.Context) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryTicketRepository) Touch(_ context.Context, id string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok || t.Closed {
		return false
	}
	if at.After(t.LastActivity) {
		t.LastActivity = at
	}
	return true
}

func (r *memoryTicketRepository) MarkClaimed(_ context.Context, id, actorID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, notFoundTicket(id)
	}
	if t.Closed {
		return nil, apperrors.NewAlreadyClosed()
	}
	if t.Claimed {
		return nil, apperrors.NewAlreadyClaimed(t.ClaimedBy)
	}
	t.Claimed = true
	t.ClaimedBy = actorID
	out := *t
	return &out, nil
}

func (r *memoryTicketRepository) MarkLocked(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, notFoundTicket(id)
	}
	if t.Closed {
		return nil, apperrors.NewAlreadyClosed()
	}
	if t.Locked {
		return nil, apperrors.NewAlreadyLocked()
	}
	t.Locked = true
	out := *t
	return &out, nil
}

func (r *memoryTicketRepository) MarkClosed(_ context.Context, id, actorID string, at time.Time) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, notFoundTicket(id)
	}
	if t.Closed {
		return nil, apperrors.NewAlreadyClosed()
	}
	t.Closed = true
	t.ClosedBy = actorID
	closedAt := at
	t.ClosedAt = &closedAt
	if r.openByOwner[t.Owner.ID] == id {
		delete(r.openByOwner, t.Owner.ID)
	}
	out := *t
	return &out, nil
}

func (r *memoryTicketRepository) Delete(_ context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return false
	}
	if r.openByOwner[t.Owner.ID] == id {
		delete(r.openByOwner, t.Owner.ID)
	}
	delete(r.tickets, id)
	return true
}

func notFoundTicket(id string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
}
