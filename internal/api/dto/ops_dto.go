package dto

import (
	"time"

	"github.com/spec-kit/deskbot/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// AuthResponse carries an issued token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WarningResponse is one warning.
type WarningResponse struct {
	Reason   string    `json:"reason"`
	Issuer   string    `json:"issuer"`
	IssuedAt time.Time `json:"issued_at"`
}

// WarningListResponse lists the warnings of one identity.
type WarningListResponse struct {
	Identity string            `json:"identity"`
	Total    int               `json:"total"`
	Warnings []WarningResponse `json:"warnings"`
}

// NewWarningList maps warnings.
func NewWarningList(identity string, list []domain.Warning) WarningListResponse {
	out := WarningListResponse{Identity: identity, Total: len(list), Warnings: make([]WarningResponse, 0, len(list))}
	for _, w := range list {
		out.Warnings = append(out.Warnings, WarningResponse{Reason: w.Reason, Issuer: w.Issuer, IssuedAt: w.IssuedAt})
	}
	return out
}

// SettingsResponse exposes the current panel configuration.
type SettingsResponse struct {
	Version      int64                       `json:"version"`
	Tickets      TicketSettingsResponse      `json:"tickets"`
	Applications ApplicationSettingsResponse `json:"applications"`
}

// TicketSettingsResponse mirrors domain.TicketSettings.
type TicketSettingsResponse struct {
	PanelMessage string   `json:"panel_message"`
	Options      []string `json:"options"`
	Category     string   `json:"category"`
	ViewerRole   string   `json:"viewer_role"`
	LogChannel   string   `json:"log_channel"`
}

// ApplicationSettingsResponse mirrors domain.ApplicationSettings. Questions
// keeps empty slots so indexes match the configuration command.
type ApplicationSettingsResponse struct {
	PanelMessage string              `json:"panel_message"`
	Roles        []domain.RoleOption `json:"roles"`
	Questions    []string            `json:"questions"`
	LogChannel   string              `json:"log_channel"`
}

// NewSettingsResponse maps a snapshot.
func NewSettingsResponse(s domain.Settings) SettingsResponse {
	options := s.Tickets.Options
	if options == nil {
		options = []string{}
	}
	roles := s.Applications.Roles
	if roles == nil {
		roles = []domain.RoleOption{}
	}
	return SettingsResponse{
		Version: s.Version,
		Tickets: TicketSettingsResponse{
			PanelMessage: s.Tickets.PanelMessage,
			Options:      options,
			Category:     s.Tickets.Category,
			ViewerRole:   s.Tickets.ViewerRole,
			LogChannel:   s.Tickets.LogChannel,
		},
		Applications: ApplicationSettingsResponse{
			PanelMessage: s.Applications.PanelMessage,
			Roles:        roles,
			Questions:    append([]string(nil), s.Applications.Questions[:]...),
			LogChannel:   s.Applications.LogChannel,
		},
	}
}
