package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/interaction"
	"github.com/spec-kit/deskbot/internal/platform"
	"github.com/spec-kit/deskbot/internal/repository"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

// SettingsService applies administrator configuration commands and
// deploys the ticket and application panels.
type SettingsService struct {
	settings *repository.SettingsRepository
	platform platform.Platform
	logger   *zap.Logger
}

// NewSettingsService constructs the service.
func NewSettingsService(settings *repository.SettingsRepository, p platform.Platform, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{settings: settings, platform: p, logger: logger.Named("settings")}
}

// Snapshot returns the current settings.
func (s *SettingsService) Snapshot() domain.Settings {
	return s.settings.Snapshot()
}

// SetTicketPanel sets the ticket panel text; the channel it is issued in
// becomes the ticket log channel.
func (s *SettingsService) SetTicketPanel(ctx context.Context, actor domain.User, text, logChannel string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.NewValidationError("provide the ticket panel message", nil)
	}
	return s.update(ctx, actor, func(st *domain.Settings) {
		st.Tickets.PanelMessage = text
		st.Tickets.LogChannel = logChannel
	})
}

// SetTicketOptions replaces the ticket categories.
func (s *SettingsService) SetTicketOptions(ctx context.Context, actor domain.User, options []string) error {
	cleaned := make([]string, 0, len(options))
	for _, o := range options {
		if o = strings.TrimSpace(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	if len(cleaned) == 0 {
		return apperrors.NewValidationError("provide at least one ticket option", nil)
	}
	return s.update(ctx, actor, func(st *domain.Settings) {
		st.Tickets.Options = cleaned
	})
}

// SetViewerRole sets the role allowed to see and act on every ticket.
func (s *SettingsService) SetViewerRole(ctx context.Context, actor domain.User, roleID string) error {
	if roleID == "" {
		return apperrors.NewValidationError("mention the viewer role", nil)
	}
	return s.update(ctx, actor, func(st *domain.Settings) {
		st.Tickets.ViewerRole = roleID
	})
}

// SetCategory sets where ticket channels are created.
func (s *SettingsService) SetCategory(ctx context.Context, actor domain.User, category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return apperrors.NewValidationError("provide the category id", nil)
	}
	return s.update(ctx, actor, func(st *domain.Settings) {
		st.Tickets.Category = category
	})
}

// SetApplicationPanel sets the application panel text; the channel it is
// issued in becomes the application log channel.
func (s *SettingsService) SetApplicationPanel(ctx context.Context, actor domain.User, text, logChannel string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.NewValidationError("provide the application panel message", nil)
	}
	return s.update(ctx, actor, func(st *domain.Settings) {
		st.Applications.PanelMessage = text
		st.Applications.LogChannel = logChannel
	})
}

// AddRoleOptions adds roles candidates may apply for. Known roles are
// renamed in place rather than duplicated.
func (s *SettingsService) AddRoleOptions(ctx context.Context, actor domain.User, roles []domain.RoleOption) error {
	if len(roles) == 0 {
		return apperrors.NewValidationError("mention at least one role", nil)
	}
	return s.update(ctx, actor, func(st *domain.Settings) {
		for _, r := range roles {
			replaced := false
			for i := range st.Applications.Roles {
				if st.Applications.Roles[i].ID == r.ID {
					st.Applications.Roles[i] = r
					replaced = true
				}
			}
			if !replaced {
				st.Applications.Roles = append(st.Applications.Roles, r)
			}
		}
	})
}

// SetQuestion sets question slot 1..MaxQuestions. An empty text clears it.
func (s *SettingsService) SetQuestion(ctx context.Context, actor domain.User, slot int, text string) error {
	if slot < 1 || slot > domain.MaxQuestions {
		return apperrors.NewValidationError(fmt.Sprintf("question number must be between 1 and %d", domain.MaxQuestions),
			map[string]any{"slot": slot})
	}
	return s.update(ctx, actor, func(st *domain.Settings) {
		st.Applications.Questions[slot-1] = strings.TrimSpace(text)
	})
}

// DeployTicketPanel posts the ticket category menu to channelID.
func (s *SettingsService) DeployTicketPanel(ctx context.Context, actor domain.User, channelID string) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	tickets := s.settings.Snapshot().Tickets
	if tickets.PanelMessage == "" || len(tickets.Options) == 0 {
		return apperrors.NewValidationError("set the ticket message and options first", nil)
	}
	menu := &platform.Select{ID: interaction.TicketCreateID(), Placeholder: "Select a category"}
	for _, o := range tickets.Options {
		menu.Options = append(menu.Options, platform.SelectOption{Label: o, Value: o})
	}
	return s.post(ctx, channelID, platform.Message{
		Title:  "Support tickets",
		Body:   tickets.PanelMessage,
		Tone:   platform.ToneInfo,
		Select: menu,
	})
}

// DeployApplicationPanel posts one apply button per configured role.
func (s *SettingsService) DeployApplicationPanel(ctx context.Context, actor domain.User, channelID string) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	apps := s.settings.Snapshot().Applications
	if apps.PanelMessage == "" || len(apps.Roles) == 0 || len(apps.ActiveQuestions()) == 0 {
		return apperrors.NewValidationError("set the application message, roles and questions first", nil)
	}
	msg := platform.Message{Title: "Applications", Body: apps.PanelMessage, Tone: platform.ToneInfo}
	for _, r := range apps.Roles {
		msg.Buttons = append(msg.Buttons, platform.Button{
			ID:    interaction.ApplyID(r.ID),
			Label: "Apply for " + r.Name,
			Style: platform.ButtonPrimary,
		})
	}
	return s.post(ctx, channelID, msg)
}

func (s *SettingsService) post(ctx context.Context, channelID string, msg platform.Message) error {
	if _, err := s.platform.SendMessage(ctx, channelID, msg); err != nil {
		return apperrors.NewExternalActionFailed(apperrors.ReasonDeliveryFailed, "failed to post the panel", err)
	}
	return nil
}

func (s *SettingsService) update(ctx context.Context, actor domain.User, mutate func(*domain.Settings)) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	next := s.settings.Update(mutate)
	s.logger.Info("settings updated", zap.String("actor_id", actor.ID), zap.Int64("version", next.Version))
	return nil
}

func (s *SettingsService) requireAdmin(ctx context.Context, actor domain.User) error {
	ok, err := s.platform.HasCapability(ctx, actor.ID, domain.CapabilityAdministrator)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !ok {
		return apperrors.NewPermissionDenied("only administrators can change bot settings")
	}
	return nil
}
