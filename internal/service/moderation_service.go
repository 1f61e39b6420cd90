package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/deskbot/internal/clock"
	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/events"
	"github.com/spec-kit/deskbot/internal/platform"
	"github.com/spec-kit/deskbot/internal/repository"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

// ModerationService keeps the warning ledger.
type ModerationService struct {
	warnings repository.WarningRepository
	platform platform.Platform
	clock    clock.Clock
	events   eventPublisher
	logger   *zap.Logger
}

// NewModerationService constructs the service.
func NewModerationService(warnings repository.WarningRepository, p platform.Platform, clk clock.Clock, dispatcher events.Dispatcher, logger *zap.Logger) *ModerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModerationService{
		warnings: warnings,
		platform: p,
		clock:    clk,
		events:   eventPublisher{dispatcher: dispatcher, clock: clk, logger: logger},
		logger:   logger.Named("moderation"),
	}
}

// Warn appends a warning for target and returns their new total.
func (s *ModerationService) Warn(ctx context.Context, issuer, target domain.User, reason string) (int, error) {
	if err := s.requireModerator(ctx, issuer); err != nil {
		return 0, err
	}
	if target.ID == "" {
		return 0, apperrors.NewValidationError("mention the user to warn", nil)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultReason
	}

	count, err := s.warnings.Append(ctx, target.ID, domain.Warning{
		Reason:   reason,
		Issuer:   issuer.ID,
		IssuedAt: s.clock.Now(),
	})
	if err != nil {
		return 0, apperrors.NewInternalError(err)
	}

	if err := s.platform.DirectMessage(ctx, target.ID, platform.Message{
		Title: "You have been warned",
		Body:  reason,
		Tone:  platform.ToneWarning,
	}); err != nil {
		s.logger.Info("warning notice not delivered", zap.String("user_id", target.ID), zap.Error(err))
	}
	s.events.publish(ctx, events.Event{
		Type:    events.EventWarningIssued,
		Subject: target.ID,
		Actor:   issuer,
		Payload: events.WarningIssuedPayload{Reason: reason, Count: count},
	})
	return count, nil
}

// Warnings lists target's warnings for a moderator.
func (s *ModerationService) Warnings(ctx context.Context, actor, target domain.User) ([]domain.Warning, error) {
	if err := s.requireModerator(ctx, actor); err != nil {
		return nil, err
	}
	if target.ID == "" {
		return nil, apperrors.NewValidationError("mention the user to look up", nil)
	}
	return s.ListWarnings(ctx, target.ID)
}

// ListWarnings returns the warnings for identity in insertion order.
func (s *ModerationService) ListWarnings(ctx context.Context, identity string) ([]domain.Warning, error) {
	list, err := s.warnings.ListByIdentity(ctx, identity)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return list, nil
}

func (s *ModerationService) requireModerator(ctx context.Context, actor domain.User) error {
	ok, err := s.platform.HasCapability(ctx, actor.ID, domain.CapabilityModerateMembers)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !ok {
		return apperrors.NewPermissionDenied("you don't have permission to moderate members")
	}
	return nil
}

// FormatWarnings renders a warning list as message fields.
func FormatWarnings(list []domain.Warning) []platform.Field {
	fields := make([]platform.Field, len(list))
	for i, w := range list {
		fields[i] = platform.Field{
			Name:  fmt.Sprintf("Warning %d", i+1),
			Value: fmt.Sprintf("%s\nby <@%s> on %s", w.Reason, w.Issuer, w.IssuedAt.UTC().Format("2006-01-02 15:04")),
		}
	}
	return fields
}
