package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/repository"
	"github.com/spec-kit/deskbot/internal/scheduler"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

func mustCreate(t *testing.T, h *harness, owner domain.User, category string) *domain.Ticket {
	t.Helper()
	ticket, err := h.ticketSvc.Create(context.Background(), owner, category)
	if err != nil {
		t.Fatalf("Create(%s): %v", owner.ID, err)
	}
	return ticket
}

func TestCreateTicket(t *testing.T) {
	h := newHarness(t)
	ticket := mustCreate(t, h, userX, "billing")

	if ticket.ChannelName != "ticket-userx" {
		t.Errorf("ChannelName = %q", ticket.ChannelName)
	}
	if ticket.Claimed || ticket.Locked || ticket.Closed {
		t.Errorf("fresh ticket flags = %+v", ticket)
	}
	if !ticket.CreatedAt.Equal(t0) || !ticket.LastActivity.Equal(t0) {
		t.Errorf("timestamps = %v / %v", ticket.CreatedAt, ticket.LastActivity)
	}
	if len(h.platform.CreatedChannels) != 1 {
		t.Fatalf("channels created = %d", len(h.platform.CreatedChannels))
	}
	if got := h.platform.CreatedChannels[0].Members; len(got) != 1 || got[0] != userX.ID {
		t.Errorf("members = %v", got)
	}
	if len(h.platform.Messages) != 1 || len(h.platform.Messages[0].Msg.Buttons) != 4 {
		t.Fatalf("control panel not posted: %+v", h.platform.Messages)
	}
	if !h.timers.Pending(scheduler.Key{TicketID: ticket.ID, Kind: scheduler.KindInactivity}) {
		t.Error("inactivity check not armed")
	}
	if n, err := testutil.GatherAndCount(h.metrics.Registry(), "deskbot_workflow_transitions_total"); err != nil || n != 1 {
		t.Errorf("transition series = %d, %v", n, err)
	}
}

func TestCreateRejectsSecondOpenTicket(t *testing.T) {
	h := newHarness(t)
	first := mustCreate(t, h, userX, "billing")

	_, err := h.ticketSvc.Create(context.Background(), userX, "bugs")
	if apperrors.ReasonOf(err) != apperrors.ReasonDuplicateTicket {
		t.Fatalf("second Create err = %v, want DuplicateTicket", err)
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) && domainErr.Details["ticket_id"] != first.ID {
		t.Errorf("details = %v", domainErr.Details)
	}
	if len(h.platform.CreatedChannels) != 1 {
		t.Errorf("channels created = %d, want 1", len(h.platform.CreatedChannels))
	}
}

func TestCreateValidatesCategory(t *testing.T) {
	h := newHarness(t)
	for _, category := range []string{"", "refunds"} {
		if _, err := h.ticketSvc.Create(context.Background(), userX, category); apperrors.CodeOf(err) != apperrors.CodeValidation {
			t.Errorf("Create(%q) err = %v", category, err)
		}
	}
}

func TestCreateChannelFailureReleasesOwner(t *testing.T) {
	h := newHarness(t)
	h.platform.FailCreateChannel = true
	_, err := h.ticketSvc.Create(context.Background(), userX, "billing")
	if apperrors.ReasonOf(err) != apperrors.ReasonChannelCreateFailed {
		t.Fatalf("err = %v", err)
	}
	h.platform.FailCreateChannel = false
	mustCreate(t, h, userX, "billing")
}

func TestClaimScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := mustCreate(t, h, userX, "billing")

	if _, err := h.ticketSvc.Claim(ctx, ticket.ID, staff1); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := h.ticketSvc.Claim(ctx, ticket.ID, staff2)
	if !errors.Is(err, &apperrors.DomainError{Code: apperrors.CodeStateConflict, Reason: apperrors.ReasonAlreadyClaimed}) {
		t.Fatalf("second claim err = %v", err)
	}
	if msg := apperrors.UserMessage(err); !strings.Contains(msg, "<@"+staff1.ID+">") {
		t.Errorf("user message %q does not reference staff1", msg)
	}
	if got := h.platform.PermissionsFor(staff1.ID); len(got) != 1 || !got[0].Perm.Write {
		t.Errorf("staff1 permission calls = %+v", got)
	}
	if got := h.platform.PermissionsFor(staff2.ID); len(got) != 0 {
		t.Errorf("staff2 permission calls = %+v", got)
	}
	stored, _ := h.ticketSvc.Get(ctx, ticket.ID)
	if stored.ClaimedBy != staff1.ID {
		t.Errorf("ClaimedBy = %q", stored.ClaimedBy)
	}
}

func TestClaimRequiresStaff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := mustCreate(t, h, userX, "billing")

	if _, err := h.ticketSvc.Claim(ctx, ticket.ID, userX); apperrors.CodeOf(err) != apperrors.CodePermission {
		t.Fatalf("owner claim err = %v", err)
	}

	viewer := domain.User{ID: "V1", Username: "viewer"}
	h.settings.Update(func(s *domain.Settings) { s.Tickets.ViewerRole = "ROLE_VIEW" })
	h.platform.Roles[viewer.ID] = []string{"ROLE_VIEW"}
	if _, err := h.ticketSvc.Claim(ctx, ticket.ID, viewer); err != nil {
		t.Fatalf("viewer-role claim: %v", err)
	}
	if _, err := h.ticketSvc.Claim(ctx, "C999", staff1); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Errorf("claim unknown ticket err = %v", err)
	}
}

func TestLockRevokesOwnerOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := mustCreate(t, h, userX, "billing")

	if _, err := h.ticketSvc.Lock(ctx, ticket.ID, staff1); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := h.ticketSvc.Lock(ctx, ticket.ID, staff2); apperrors.ReasonOf(err) != apperrors.ReasonAlreadyLocked {
		t.Fatalf("second Lock err = %v", err)
	}
	got := h.platform.PermissionsFor(userX.ID)
	if len(got) != 1 || got[0].Perm.Write || !got[0].Perm.View {
		t.Errorf("owner permission calls = %+v", got)
	}
}

func TestCloseSchedulesTeardownOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := mustCreate(t, h, userX, "billing")

	if _, err := h.ticketSvc.Close(ctx, ticket.ID, userX); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := h.ticketSvc.Close(ctx, ticket.ID, staff1); apperrors.ReasonOf(err) != apperrors.ReasonAlreadyClosed {
		t.Fatalf("second Close err = %v", err)
	}
	if h.timers.Pending(scheduler.Key{TicketID: ticket.ID, Kind: scheduler.KindInactivity}) {
		t.Error("inactivity check survived close")
	}

	h.clock.Advance(9 * time.Second)
	if len(h.platform.DeletedChannels) != 0 {
		t.Fatal("channel deleted before the grace period")
	}
	h.clock.Advance(time.Second)
	if len(h.platform.DeletedChannels) != 1 || h.platform.DeletedChannels[0] != ticket.ID {
		t.Fatalf("deleted = %v", h.platform.DeletedChannels)
	}
	if _, err := h.ticketSvc.Get(ctx, ticket.ID); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Errorf("ticket still tracked after teardown: %v", err)
	}
	h.clock.Advance(time.Hour)
	if len(h.platform.DeletedChannels) != 1 {
		t.Errorf("teardown ran %d times", len(h.platform.DeletedChannels))
	}

	history, _ := h.history.ListByTicket(ctx, ticket.ID)
	var kinds []domain.TicketChangeType
	for _, entry := range history {
		kinds = append(kinds, entry.ChangeType)
	}
	want := []domain.TicketChangeType{domain.ChangeTypeCreated, domain.ChangeTypeClosed, domain.ChangeTypeDeleted}
	if len(kinds) != len(want) {
		t.Fatalf("history = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}

	mustCreate(t, h, userX, "bugs")
}

func TestCloseRequiresOwnerOrStaff(t *testing.T) {
	h := newHarness(t)
	ticket := mustCreate(t, h, userX, "billing")
	stranger := domain.User{ID: "U9", Username: "stranger"}
	if _, err := h.ticketSvc.Close(context.Background(), ticket.ID, stranger); apperrors.CodeOf(err) != apperrors.CodePermission {
		t.Fatalf("stranger Close err = %v", err)
	}
}

func TestTeardownFailureStillRemovesRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := mustCreate(t, h, userX, "billing")
	h.platform.FailDeleteChannel = true

	if _, err := h.ticketSvc.Close(ctx, ticket.ID, staff1); err != nil {
		t.Fatalf("Close: %v", err)
	}
	h.clock.Advance(10 * time.Second)

	if _, err := h.ticketSvc.Get(ctx, ticket.ID); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Errorf("record kept after failed delete: %v", err)
	}
	if h.timers.Len() != 0 {
		t.Errorf("timers left = %d", h.timers.Len())
	}
	mustCreate(t, h, userX, "billing")
}

func seedTicket(t *testing.T, h *harness, id string, lastActivity time.Time) {
	t.Helper()
	err := h.tickets.Create(context.Background(), &domain.Ticket{
		ID:           id,
		ChannelName:  "ticket-seed",
		Owner:        domain.User{ID: "U-" + id},
		Category:     "billing",
		CreatedAt:    lastActivity,
		LastActivity: lastActivity,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestInactivityThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Advance(time.Hour)
	now := h.clock.Now()

	seedTicket(t, h, "C-29", now.Add(-29*time.Minute))
	seedTicket(t, h, "C-31", now.Add(-31*time.Minute))

	if h.ticketSvc.CheckInactivity(ctx, "C-29") {
		t.Error("ticket idle for 29 minutes was closed")
	}
	if !h.timers.Pending(scheduler.Key{TicketID: "C-29", Kind: scheduler.KindInactivity}) {
		t.Error("recheck not armed for the busy ticket")
	}
	if !h.ticketSvc.CheckInactivity(ctx, "C-31") {
		t.Fatal("ticket idle for 31 minutes was not closed")
	}
	closed, _ := h.ticketSvc.Get(ctx, "C-31")
	if !closed.Closed || closed.ClosedBy != domain.SystemUser.ID {
		t.Errorf("closed ticket = %+v", closed)
	}
	notices := 0
	for _, m := range h.platform.Messages {
		if m.Target == "C-31" && m.Msg.Body == InactivityNotice {
			notices++
		}
	}
	if notices != 1 {
		t.Errorf("inactivity notices = %d", notices)
	}
	if h.ticketSvc.CheckInactivity(ctx, "C-31") || h.ticketSvc.CheckInactivity(ctx, "missing") {
		t.Error("check acted on a closed or unknown ticket")
	}
}

func TestInactivityTimerChain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := mustCreate(t, h, userX, "billing")

	h.clock.Advance(time.Minute)
	h.ticketSvc.RecordActivity(ctx, ticket.ID, h.clock.Now())

	h.clock.Advance(29 * time.Minute)
	if got, _ := h.ticketSvc.Get(ctx, ticket.ID); got.Closed {
		t.Fatal("closed at the first check despite activity 29 minutes ago")
	}

	h.clock.Advance(time.Minute)
	got, _ := h.ticketSvc.Get(ctx, ticket.ID)
	if !got.Closed || got.ClosedBy != domain.SystemUser.ID {
		t.Fatalf("ticket not auto-closed after 30 idle minutes: %+v", got)
	}

	h.clock.Advance(10 * time.Second)
	if len(h.platform.DeletedChannels) != 1 {
		t.Errorf("deleted = %v", h.platform.DeletedChannels)
	}
}

func TestBusyTicketNeverAutoCloses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := mustCreate(t, h, userX, "billing")

	for i := 0; i < 24; i++ {
		h.clock.Advance(5 * time.Minute)
		if !h.ticketSvc.RecordActivity(ctx, ticket.ID, h.clock.Now()) {
			t.Fatalf("activity rejected at step %d", i)
		}
	}
	if got, _ := h.ticketSvc.Get(ctx, ticket.ID); got.Closed {
		t.Fatal("busy ticket was auto-closed")
	}
	if h.ticketSvc.RecordActivity(ctx, "C-other", h.clock.Now()) {
		t.Error("activity in an unrelated channel was recorded")
	}
}

func TestRequestTranscript(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := mustCreate(t, h, userX, "billing")
	h.platform.History[ticket.ID] = []domain.HistoryMessage{
		{Timestamp: t0, Author: "UserX", Text: "my invoice is wrong"},
		{Timestamp: t0.Add(time.Minute), Author: "staff1", Text: "looking"},
	}

	transcript, err := h.ticketSvc.RequestTranscript(ctx, ticket.ID, userX)
	if err != nil {
		t.Fatalf("RequestTranscript: %v", err)
	}
	if transcript.File.Name != "transcript-ticket-userx.txt" {
		t.Errorf("file name = %q", transcript.File.Name)
	}
	wantFirst := "[2026-05-04T09:00:00Z] UserX: my invoice is wrong"
	if lines := strings.Split(strings.TrimSpace(string(transcript.File.Content)), "\n"); len(lines) != 2 || lines[0] != wantFirst {
		t.Errorf("lines = %q", lines)
	}
	if len(transcript.Digest) != 64 {
		t.Errorf("digest = %q", transcript.Digest)
	}
	if len(h.platform.Uploads) != 1 || h.platform.Uploads[0].Target != "LOGT" {
		t.Errorf("log uploads = %+v", h.platform.Uploads)
	}
	if len(h.platform.DirectFiles) != 1 || h.platform.DirectFiles[0].Target != userX.ID {
		t.Errorf("owner copies = %+v", h.platform.DirectFiles)
	}
}

func TestTranscriptDeliveryRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := mustCreate(t, h, userX, "billing")
	h.platform.FailDirect = true
	h.settings.Update(func(s *domain.Settings) { s.Tickets.LogChannel = "" })

	if _, err := h.ticketSvc.RequestTranscript(ctx, ticket.ID, staff1); err != nil {
		t.Fatalf("RequestTranscript with DMs closed: %v", err)
	}
	if len(h.platform.Uploads) != 0 {
		t.Errorf("uploaded with no log channel: %+v", h.platform.Uploads)
	}
	stranger := domain.User{ID: "U9"}
	if _, err := h.ticketSvc.RequestTranscript(ctx, ticket.ID, stranger); apperrors.CodeOf(err) != apperrors.CodePermission {
		t.Errorf("stranger transcript err = %v", err)
	}
}

func TestRenderTranscriptKeepsOrder(t *testing.T) {
	history := []domain.HistoryMessage{
		{Timestamp: t0, Author: "a", Text: "one"},
		{Timestamp: t0.Add(time.Second), Author: "b", Text: "two"},
	}
	got := string(RenderTranscript("ticket-a", history).File.Content)
	want := "[2026-05-04T09:00:00Z] a: one\n[2026-05-04T09:00:01Z] b: two\n"
	if got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}
}

// closedAfterReadRepo closes the ticket right after the first read, as if
// the owner's Close landed between the idle check and the automatic close.
type closedAfterReadRepo struct {
	repository.TicketRepository
	closer domain.User
	at     time.Time
	done   bool
}

func (r *closedAfterReadRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := r.TicketRepository.GetByID(ctx, id)
	if err == nil && !r.done {
		r.done = true
		if _, err := r.TicketRepository.MarkClosed(ctx, id, r.closer.ID, r.at); err != nil {
			return nil, err
		}
	}
	return ticket, err
}

func TestInactivityLosesRaceToUserClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Advance(time.Hour)
	seedTicket(t, h, "C-race", h.clock.Now().Add(-45*time.Minute))
	h.ticketSvc.tickets = &closedAfterReadRepo{
		TicketRepository: h.tickets,
		closer:           domain.User{ID: "U-C-race"},
		at:               h.clock.Now(),
	}

	if h.ticketSvc.CheckInactivity(ctx, "C-race") {
		t.Fatal("automatic close reported success after the owner closed")
	}
	for _, m := range h.platform.Messages {
		if m.Target == "C-race" {
			t.Errorf("notice posted to a ticket closed by its owner: %q", m.Msg.Body)
		}
	}
	ticket, _ := h.tickets.GetByID(ctx, "C-race")
	if ticket.ClosedBy != "U-C-race" {
		t.Errorf("closed by = %q", ticket.ClosedBy)
	}
}
