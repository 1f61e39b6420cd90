package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/deskbot/internal/domain"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

var epoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newTicket(id, owner string) *domain.Ticket {
	return &domain.Ticket{
		ID:           id,
		Owner:        domain.User{ID: owner, Username: owner},
		Category:     "billing",
		CreatedAt:    epoch,
		LastActivity: epoch,
	}
}

func TestOwnerHoldsSingleOpenTicket(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository()

	if err := repo.ReserveOwner(ctx, "U1"); err != nil {
		t.Fatalf("ReserveOwner: %v", err)
	}
	if err := repo.ReserveOwner(ctx, "U1"); apperrors.ReasonOf(err) != apperrors.ReasonDuplicateTicket {
		t.Fatalf("second reservation err = %v, want DuplicateTicket", err)
	}
	if err := repo.Create(ctx, newTicket("C1", "U1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := repo.ReserveOwner(ctx, "U1")
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Details["ticket_id"] != "C1" {
		t.Fatalf("reservation with open ticket err = %v", err)
	}

	if _, err := repo.MarkClosed(ctx, "C1", "U1", epoch); err != nil {
		t.Fatalf("MarkClosed: %v", err)
	}
	if err := repo.ReserveOwner(ctx, "U1"); err != nil {
		t.Fatalf("reservation after close: %v", err)
	}
}

func TestReleaseOwnerOnlyDropsReservations(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository()
	_ = repo.ReserveOwner(ctx, "U1")
	_ = repo.Create(ctx, newTicket("C1", "U1"))

	repo.ReleaseOwner(ctx, "U1")
	if err := repo.ReserveOwner(ctx, "U1"); err == nil {
		t.Fatal("ReleaseOwner dropped a live ticket's slot")
	}

	_ = repo.ReserveOwner(ctx, "U2")
	repo.ReleaseOwner(ctx, "U2")
	if err := repo.ReserveOwner(ctx, "U2"); err != nil {
		t.Fatalf("reservation after release: %v", err)
	}
}

func TestMarkGuards(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository()
	_ = repo.Create(ctx, newTicket("C1", "U1"))

	if _, err := repo.MarkClaimed(ctx, "C1", "staff1"); err != nil {
		t.Fatalf("MarkClaimed: %v", err)
	}
	_, err := repo.MarkClaimed(ctx, "C1", "staff2")
	if !errors.Is(err, &apperrors.DomainError{Code: apperrors.CodeStateConflict, Reason: apperrors.ReasonAlreadyClaimed}) {
		t.Fatalf("second claim err = %v", err)
	}
	got, _ := repo.GetByID(ctx, "C1")
	if got.ClaimedBy != "staff1" {
		t.Errorf("ClaimedBy = %q", got.ClaimedBy)
	}

	if _, err := repo.MarkLocked(ctx, "C1"); err != nil {
		t.Fatalf("MarkLocked: %v", err)
	}
	if _, err := repo.MarkLocked(ctx, "C1"); apperrors.ReasonOf(err) != apperrors.ReasonAlreadyLocked {
		t.Fatalf("second lock err = %v", err)
	}
	if _, err := repo.MarkClosed(ctx, "C1", "staff1", epoch); err != nil {
		t.Fatalf("MarkClosed: %v", err)
	}
	if _, err := repo.MarkClosed(ctx, "C1", "staff1", epoch); apperrors.ReasonOf(err) != apperrors.ReasonAlreadyClosed {
		t.Fatalf("second close err = %v", err)
	}
	if repo.Touch(ctx, "C1", epoch.Add(time.Minute)) {
		t.Error("Touch succeeded on closed ticket")
	}
}

func TestDeleteAndUnknown(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository()
	_ = repo.Create(ctx, newTicket("C1", "U1"))
	if !repo.Delete(ctx, "C1") {
		t.Fatal("Delete reported missing")
	}
	if repo.Delete(ctx, "C1") {
		t.Error("second Delete reported present")
	}
	if _, err := repo.GetByID(ctx, "C1"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Errorf("GetByID err = %v", err)
	}
	if err := repo.ReserveOwner(ctx, "U1"); err != nil {
		t.Errorf("owner slot survived delete: %v", err)
	}
}

func TestCooldownWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewCooldownRepository()
	window := 15 * time.Minute

	if _, ok, _ := repo.Acquire(ctx, "C", epoch, window); !ok {
		t.Fatal("first Acquire refused")
	}
	remaining, ok, _ := repo.Acquire(ctx, "C", epoch.Add(10*time.Minute), window)
	if ok || remaining != 5*time.Minute {
		t.Fatalf("Acquire at T+10m = %v, %v", remaining, ok)
	}
	if _, ok, _ := repo.Acquire(ctx, "C", epoch.Add(16*time.Minute), window); !ok {
		t.Fatal("Acquire at T+16m refused")
	}
	if got, _ := repo.Remaining(ctx, "C", epoch.Add(16*time.Minute)); got != 15*time.Minute {
		t.Errorf("Remaining = %v", got)
	}
	if n, _ := repo.Sweep(ctx, epoch.Add(time.Hour)); n != 1 {
		t.Errorf("Sweep = %d", n)
	}
}

func TestWarningsAppendInOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewWarningRepository()

	list, _ := repo.ListByIdentity(ctx, "U1")
	if len(list) != 0 {
		t.Fatalf("fresh identity has %d warnings", len(list))
	}
	if n, _ := repo.Append(ctx, "U1", domain.Warning{Reason: "spam", Issuer: "mod", IssuedAt: epoch}); n != 1 {
		t.Errorf("count after first = %d", n)
	}
	if n, _ := repo.Append(ctx, "U1", domain.Warning{Reason: "flood", Issuer: "mod", IssuedAt: epoch.Add(time.Minute)}); n != 2 {
		t.Errorf("count after second = %d", n)
	}
	list, _ = repo.ListByIdentity(ctx, "U1")
	if len(list) != 2 || list[0].Reason != "spam" || list[1].Reason != "flood" {
		t.Errorf("warnings = %+v", list)
	}
}

func TestSettingsVersioning(t *testing.T) {
	repo := NewSettingsRepository(domain.Settings{})
	before := repo.Snapshot()
	after := repo.Update(func(s *domain.Settings) {
		s.Tickets.Options = append(s.Tickets.Options, "billing")
	})
	if after.Version != before.Version+1 {
		t.Errorf("version %d -> %d", before.Version, after.Version)
	}
	if len(before.Tickets.Options) != 0 {
		t.Error("earlier snapshot was mutated")
	}
	if got := repo.Snapshot().Tickets.Options; len(got) != 1 || got[0] != "billing" {
		t.Errorf("options = %v", got)
	}
}
