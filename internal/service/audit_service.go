package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/events"
	"github.com/spec-kit/deskbot/internal/repository"
)

// AuditService records workflow events. Ticket transitions go to the
// history repository; everything is logged.
type AuditService struct {
	dispatcher events.Dispatcher
	history    repository.TicketHistoryRepository
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, history repository.TicketHistoryRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		history:    history,
		logger:     logger.Named("audit"),
	}
}

var ticketChangeTypes = map[events.EventType]domain.TicketChangeType{
	events.EventTicketCreated:      domain.ChangeTypeCreated,
	events.EventTicketClaimed:      domain.ChangeTypeClaimed,
	events.EventTicketLocked:       domain.ChangeTypeLocked,
	events.EventTicketClosed:       domain.ChangeTypeClosed,
	events.EventTicketDeleted:      domain.ChangeTypeDeleted,
	events.EventTranscriptExported: domain.ChangeTypeTranscript,
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for eventType := range ticketChangeTypes {
		a.dispatcher.Subscribe(eventType, a.handleTicketEvent)
	}
	a.dispatcher.Subscribe(events.EventApplicationSubmitted, a.handleApplicationEvent)
	a.dispatcher.Subscribe(events.EventApplicationDecided, a.handleApplicationEvent)
	a.dispatcher.Subscribe(events.EventWarningIssued, a.handleWarningIssued)
}

// TicketHistory returns the recorded transitions of a ticket.
func (a *AuditService) TicketHistory(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if a.history == nil {
		return nil, nil
	}
	return a.history.ListByTicket(ctx, ticketID)
}

func (a *AuditService) handleTicketEvent(ctx context.Context, event events.Event) error {
	a.logger.Info(string(event.Type),
		zap.String("ticket_id", event.Subject),
		zap.String("actor_id", event.Actor.ID),
		zap.Any("payload", event.Payload))
	if a.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:   event.Subject,
		ChangedBy:  event.Actor.ID,
		ChangeType: ticketChangeTypes[event.Type],
		CreatedAt:  event.Timestamp,
	}
	if event.Payload != nil {
		entry.Detail = map[string]any{"payload": event.Payload}
	}
	if err := a.history.Create(ctx, entry); err != nil {
		a.logger.Warn("failed to record ticket history", zap.String("ticket_id", event.Subject), zap.Error(err))
		return err
	}
	return nil
}

func (a *AuditService) handleApplicationEvent(_ context.Context, event events.Event) error {
	a.logger.Info(string(event.Type),
		zap.String("candidate_id", event.Subject),
		zap.String("actor_id", event.Actor.ID),
		zap.Any("payload", event.Payload))
	return nil
}

func (a *AuditService) handleWarningIssued(_ context.Context, event events.Event) error {
	a.logger.Info(string(event.Type),
		zap.String("user_id", event.Subject),
		zap.String("issuer_id", event.Actor.ID),
		zap.Any("payload", event.Payload))
	return nil
}
