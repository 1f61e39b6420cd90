package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/deskbot/internal/api/dto"
	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/service"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

// OpsHandler serves read-only views of bot state to operators.
type OpsHandler struct {
	tickets    *service.TicketService
	audit      *service.AuditService
	moderation *service.ModerationService
	settings   *service.SettingsService
}

// NewOpsHandler constructs handler.
func NewOpsHandler(tickets *service.TicketService, audit *service.AuditService, moderation *service.ModerationService, settings *service.SettingsService) *OpsHandler {
	return &OpsHandler{tickets: tickets, audit: audit, moderation: moderation, settings: settings}
}

// ListTickets GET /ops/tickets. ?state=OPEN,CLAIMED filters by state.
func (h *OpsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.tickets.List(c.UserContext())
	if err != nil {
		return err
	}
	states, err := parseStates(c.Query("state"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		if len(states) > 0 && !states[tickets[i].State()] {
			continue
		}
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /ops/tickets/:id.
func (h *OpsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	history, err := h.audit.TicketHistory(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket, history)})
}

// ListWarnings GET /ops/warnings/:identity.
func (h *OpsHandler) ListWarnings(c *fiber.Ctx) error {
	identity := c.Params("identity")
	list, err := h.moderation.ListWarnings(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWarningList(identity, list)})
}

// GetSettings GET /ops/settings.
func (h *OpsHandler) GetSettings(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": dto.NewSettingsResponse(h.settings.Snapshot())})
}

func parseStates(raw string) (map[domain.TicketState]bool, error) {
	if raw == "" {
		return nil, nil
	}
	out := map[domain.TicketState]bool{}
	for _, part := range strings.Split(raw, ",") {
		state := domain.TicketState(strings.ToUpper(strings.TrimSpace(part)))
		switch state {
		case domain.TicketStateOpen, domain.TicketStateClaimed, domain.TicketStateLocked, domain.TicketStateClosed:
			out[state] = true
		default:
			return nil, apperrors.NewValidationError("unknown ticket state", map[string]any{"state": part})
		}
	}
	return out, nil
}
