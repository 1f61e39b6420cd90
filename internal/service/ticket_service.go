package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/deskbot/internal/clock"
	"github.com/spec-kit/deskbot/internal/config"
	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/events"
	"github.com/spec-kit/deskbot/internal/interaction"
	"github.com/spec-kit/deskbot/internal/observability"
	"github.com/spec-kit/deskbot/internal/platform"
	"github.com/spec-kit/deskbot/internal/repository"
	"github.com/spec-kit/deskbot/internal/scheduler"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

// InactivityNotice is posted before a ticket is closed for inactivity.
const InactivityNotice = "This ticket is being closed due to 30 minutes of inactivity."

// TicketService coordinates the ticket lifecycle.
type TicketService struct {
	tickets  repository.TicketRepository
	settings *repository.SettingsRepository
	platform platform.Platform
	timers   *scheduler.Timers
	clock    clock.Clock
	events   eventPublisher
	metrics  *observability.Metrics
	logger   *zap.Logger
	cfg      config.TicketConfig
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Settings   *repository.SettingsRepository
	Platform   platform.Platform
	Timers     *scheduler.Timers
	Clock      clock.Clock
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     config.TicketConfig
}

// Transcript is a rendered channel history export.
type Transcript struct {
	File   platform.File
	Lines  int
	Digest string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:  deps.TicketRepo,
		settings: deps.Settings,
		platform: deps.Platform,
		timers:   deps.Timers,
		clock:    deps.Clock,
		events:   eventPublisher{dispatcher: deps.Dispatcher, clock: deps.Clock, logger: logger},
		metrics:  deps.Metrics,
		logger:   logger.Named("tickets"),
		cfg:      deps.Config,
	}
}

// Create opens a ticket channel for requester in the given category.
func (s *TicketService) Create(ctx context.Context, requester domain.User, category string) (*domain.Ticket, error) {
	category = strings.TrimSpace(category)
	settings := s.settings.Snapshot()
	if category == "" {
		return nil, apperrors.NewValidationError("select a ticket category", nil)
	}
	if len(settings.Tickets.Options) > 0 && !slices.Contains(settings.Tickets.Options, category) {
		return nil, apperrors.NewValidationError("unknown ticket category", map[string]any{"category": category})
	}

	if err := s.tickets.ReserveOwner(ctx, requester.ID); err != nil {
		return nil, err
	}

	name := ChannelName(requester)
	channelID, err := s.platform.CreateChannel(ctx, platform.ChannelSpec{
		Name:       name,
		Category:   settings.Tickets.Category,
		Topic:      fmt.Sprintf("Ticket for %s (%s)", requester.Username, category),
		Members:    []string{requester.ID},
		ViewerRole: settings.Tickets.ViewerRole,
	})
	if err != nil {
		s.tickets.ReleaseOwner(ctx, requester.ID)
		return nil, apperrors.NewExternalActionFailed(apperrors.ReasonChannelCreateFailed,
			"failed to create the ticket channel", err)
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		ID:           channelID,
		ChannelName:  name,
		Owner:        requester,
		Category:     category,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.tickets.ReleaseOwner(ctx, requester.ID)
		return nil, err
	}

	if _, err := s.platform.SendMessage(ctx, channelID, controlPanel(ticket)); err != nil {
		s.logger.Warn("failed to post control panel", zap.String("ticket_id", channelID), zap.Error(err))
	}
	s.armInactivity(channelID, s.cfg.InactivityTimeout)

	s.metrics.RecordTransition("ticket", "created")
	s.refreshOpenGauge(ctx)
	s.events.publish(ctx, events.Event{
		Type:    events.EventTicketCreated,
		Subject: channelID,
		Actor:   requester,
		Payload: events.TicketCreatedPayload{OwnerID: requester.ID, Category: category, ChannelName: name},
	})
	s.logger.Info("ticket created",
		zap.String("ticket_id", channelID),
		zap.String("owner_id", requester.ID),
		zap.String("category", category))
	return ticket, nil
}

// Claim assigns the ticket to a staff member and grants them write access.
func (s *TicketService) Claim(ctx context.Context, ticketID string, actor domain.User) (*domain.Ticket, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, err
	}
	if err := s.requireStaff(ctx, actor); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.MarkClaimed(ctx, ticketID, actor.ID)
	if err != nil {
		return nil, err
	}

	if err := s.platform.SetChannelPermission(ctx, ticketID, actor.ID, platform.Permission{View: true, Write: true}); err != nil {
		return ticket, apperrors.NewExternalActionFailed(apperrors.ReasonDeliveryFailed,
			"ticket claimed, but granting channel access failed", err)
	}
	s.notify(ctx, ticketID, platform.Message{
		Body: fmt.Sprintf("Ticket claimed by <@%s>", actor.ID),
		Tone: platform.ToneSuccess,
	})

	s.metrics.RecordTransition("ticket", "claimed")
	s.events.publish(ctx, events.Event{Type: events.EventTicketClaimed, Subject: ticketID, Actor: actor})
	return ticket, nil
}

// Lock revokes the owner's write access.
func (s *TicketService) Lock(ctx context.Context, ticketID string, actor domain.User) (*domain.Ticket, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, err
	}
	if err := s.requireStaff(ctx, actor); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.MarkLocked(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if err := s.platform.SetChannelPermission(ctx, ticketID, ticket.Owner.ID, platform.Permission{View: true, Write: false}); err != nil {
		return ticket, apperrors.NewExternalActionFailed(apperrors.ReasonDeliveryFailed,
			"ticket locked, but revoking the owner's access failed", err)
	}
	s.notify(ctx, ticketID, platform.Message{
		Body: fmt.Sprintf("Ticket locked by <@%s>", actor.ID),
		Tone: platform.ToneWarning,
	})

	s.metrics.RecordTransition("ticket", "locked")
	s.events.publish(ctx, events.Event{Type: events.EventTicketLocked, Subject: ticketID, Actor: actor})
	return ticket, nil
}

// Close marks the ticket closed and schedules channel teardown.
func (s *TicketService) Close(ctx context.Context, ticketID string, actor domain.User) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Owner.ID != actor.ID {
		if err := s.requireStaff(ctx, actor); err != nil {
			return nil, err
		}
	}
	return s.close(ctx, ticketID, actor)
}

// close marks the ticket closed and arms teardown. Notices are posted only
// when this call won the close.
func (s *TicketService) close(ctx context.Context, ticketID string, actor domain.User, notices ...platform.Message) (*domain.Ticket, error) {
	ticket, err := s.tickets.MarkClosed(ctx, ticketID, actor.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.timers.Cancel(scheduler.Key{TicketID: ticketID, Kind: scheduler.KindInactivity})

	for _, notice := range notices {
		s.notify(ctx, ticketID, notice)
	}

	s.notify(ctx, ticketID, platform.Message{
		Body: fmt.Sprintf("This ticket will be deleted in %s.", humanDuration(s.cfg.TeardownDelay)),
		Tone: platform.ToneDanger,
	})
	s.timers.Schedule(scheduler.Key{TicketID: ticketID, Kind: scheduler.KindTeardown}, s.cfg.TeardownDelay, func() {
		s.teardown(ticketID)
	})

	s.metrics.RecordTransition("ticket", "closed")
	s.refreshOpenGauge(ctx)
	s.events.publish(ctx, events.Event{
		Type:    events.EventTicketClosed,
		Subject: ticketID,
		Actor:   actor,
		Payload: events.TicketClosedPayload{OwnerID: ticket.Owner.ID, Automatic: actor.IsSystem()},
	})
	s.logger.Info("ticket closed", zap.String("ticket_id", ticketID), zap.String("closed_by", actor.ID))
	return ticket, nil
}

// teardown deletes the channel and forgets the ticket. A failed delete is
// logged and not retried; the record is removed either way.
func (s *TicketService) teardown(ticketID string) {
	ctx := context.Background()
	deleted := true
	if err := s.platform.DeleteChannel(ctx, ticketID); err != nil {
		deleted = false
		s.logger.Error("failed to delete ticket channel", zap.String("ticket_id", ticketID), zap.Error(err))
		s.metrics.RecordError("teardown", apperrors.CodeExternalAction)
	}
	s.tickets.Delete(ctx, ticketID)
	s.timers.CancelTicket(ticketID)

	s.metrics.RecordTransition("ticket", "deleted")
	s.events.publish(ctx, events.Event{
		Type:    events.EventTicketDeleted,
		Subject: ticketID,
		Actor:   domain.SystemUser,
		Payload: events.TicketDeletedPayload{ChannelDeleted: deleted},
	})
}

// RequestTranscript exports the channel history to the log channel and,
// best-effort, to the owner.
func (s *TicketService) RequestTranscript(ctx context.Context, ticketID string, actor domain.User) (*Transcript, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Owner.ID != actor.ID {
		if err := s.requireStaff(ctx, actor); err != nil {
			return nil, err
		}
	}

	history, err := s.platform.FetchHistory(ctx, ticketID, s.cfg.TranscriptLimit)
	if err != nil {
		return nil, apperrors.NewExternalActionFailed(apperrors.ReasonDeliveryFailed,
			"failed to read the ticket history", err)
	}
	transcript := RenderTranscript(ticket.ChannelName, history)

	if logChannel := s.settings.Snapshot().Tickets.LogChannel; logChannel != "" {
		if err := s.platform.UploadFile(ctx, logChannel, transcript.File); err != nil {
			return nil, apperrors.NewExternalActionFailed(apperrors.ReasonDeliveryFailed,
				"failed to deliver the transcript to the log channel", err)
		}
	}
	if err := s.platform.DirectFile(ctx, ticket.Owner.ID, transcript.File); err != nil {
		s.logger.Debug("owner transcript delivery skipped", zap.String("owner_id", ticket.Owner.ID), zap.Error(err))
	}

	s.metrics.RecordTransition("ticket", "transcript")
	s.events.publish(ctx, events.Event{
		Type:    events.EventTranscriptExported,
		Subject: ticketID,
		Actor:   actor,
		Payload: events.TranscriptExportedPayload{
			FileName: transcript.File.Name,
			Lines:    transcript.Lines,
			Digest:   transcript.Digest,
		},
	})
	return transcript, nil
}

// RecordActivity resets the idle clock of the ticket living in channelID.
// Messages in other channels are ignored.
func (s *TicketService) RecordActivity(ctx context.Context, channelID string, at time.Time) bool {
	return s.tickets.Touch(ctx, channelID, at)
}

// CheckInactivity closes the ticket when it has been idle for the configured
// timeout and otherwise re-arms the check. It reports whether it closed the
// ticket. Unknown and closed tickets are ignored.
func (s *TicketService) CheckInactivity(ctx context.Context, ticketID string) bool {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil || ticket.Closed {
		return false
	}
	if ticket.IdleFor(s.clock.Now()) < s.cfg.InactivityTimeout {
		s.armInactivity(ticketID, s.cfg.RecheckInterval)
		return false
	}

	notice := platform.Message{Body: InactivityNotice, Tone: platform.ToneWarning}
	if _, err := s.close(ctx, ticketID, domain.SystemUser, notice); err != nil {
		s.logger.Warn("inactivity close failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return false
	}
	return true
}

// Get returns one ticket.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.tickets.GetByID(ctx, ticketID)
}

// List returns every tracked ticket, oldest first.
func (s *TicketService) List(ctx context.Context) ([]domain.Ticket, error) {
	return s.tickets.List(ctx)
}

func (s *TicketService) armInactivity(ticketID string, after time.Duration) {
	s.timers.Schedule(scheduler.Key{TicketID: ticketID, Kind: scheduler.KindInactivity}, after, func() {
		s.CheckInactivity(context.Background(), ticketID)
	})
}

// IsStaff reports whether user may act as ticket staff: they hold the
// manage-messages capability or the configured viewer role.
func (s *TicketService) IsStaff(ctx context.Context, user domain.User) (bool, error) {
	ok, err := s.platform.HasCapability(ctx, user.ID, domain.CapabilityManageMessages)
	if err != nil || ok {
		return ok, err
	}
	if role := s.settings.Snapshot().Tickets.ViewerRole; role != "" {
		return s.platform.HasRole(ctx, user.ID, role)
	}
	return false, nil
}

func (s *TicketService) requireStaff(ctx context.Context, actor domain.User) error {
	ok, err := s.IsStaff(ctx, actor)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !ok {
		return apperrors.NewPermissionDenied("only staff can do that")
	}
	return nil
}

func (s *TicketService) notify(ctx context.Context, channelID string, msg platform.Message) {
	if _, err := s.platform.SendMessage(ctx, channelID, msg); err != nil {
		s.logger.Warn("failed to post ticket notice", zap.String("ticket_id", channelID), zap.Error(err))
	}
}

func (s *TicketService) refreshOpenGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	tickets, err := s.tickets.List(ctx)
	if err != nil {
		return
	}
	open := 0
	for _, t := range tickets {
		if t.Open() {
			open++
		}
	}
	s.metrics.SetOpenTickets(open)
}

// ChannelName derives the ticket channel name from the requester.
func ChannelName(requester domain.User) string {
	name := strings.ToLower(strings.TrimSpace(requester.Username))
	if name == "" {
		name = strings.ToLower(requester.ID)
	}
	return "ticket-" + strings.ReplaceAll(name, " ", "-")
}

func controlPanel(ticket *domain.Ticket) platform.Message {
	return platform.Message{
		Title: fmt.Sprintf("Ticket: %s", ticket.Category),
		Body:  fmt.Sprintf("Welcome <@%s>! Support will be with you shortly.", ticket.Owner.ID),
		Tone:  platform.ToneInfo,
		Buttons: []platform.Button{
			{ID: interaction.TicketClaimID(), Label: "Claim", Style: platform.ButtonPrimary},
			{ID: interaction.TicketLockID(), Label: "Lock", Style: platform.ButtonSecondary},
			{ID: interaction.TicketCloseID(), Label: "Close", Style: platform.ButtonDanger},
			{ID: interaction.TicketTranscriptID(), Label: "Transcript", Style: platform.ButtonSuccess},
		},
	}
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 && d >= time.Minute {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return fmt.Sprintf("%d seconds", int(d.Round(time.Second)/time.Second))
}
