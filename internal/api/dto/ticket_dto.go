package dto

import (
	"time"

	"github.com/spec-kit/deskbot/internal/domain"
)

// TicketSummary response.
type TicketSummary struct {
	ID           string             `json:"id"`
	ChannelName  string             `json:"channel_name"`
	OwnerID      string             `json:"owner_id"`
	Owner        string             `json:"owner"`
	Category     string             `json:"category"`
	State        domain.TicketState `json:"state"`
	ClaimedBy    string             `json:"claimed_by,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	LastActivity time.Time          `json:"last_activity"`
	ClosedAt     *time.Time         `json:"closed_at,omitempty"`
}

// TicketDetailResponse adds the audit trail to a summary.
type TicketDetailResponse struct {
	TicketSummary
	ClosedBy string                  `json:"closed_by,omitempty"`
	History  []TicketHistoryResponse `json:"history"`
}

// TicketHistoryResponse is one recorded transition.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	ChangedBy  string                  `json:"changed_by"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	Detail     map[string]any          `json:"detail,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// NewTicketSummary maps a ticket.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:           t.ID,
		ChannelName:  t.ChannelName,
		OwnerID:      t.Owner.ID,
		Owner:        t.Owner.Username,
		Category:     t.Category,
		State:        t.State(),
		ClaimedBy:    t.ClaimedBy,
		CreatedAt:    t.CreatedAt,
		LastActivity: t.LastActivity,
		ClosedAt:     t.ClosedAt,
	}
}

// NewTicketDetail maps a ticket and its history.
func NewTicketDetail(t *domain.Ticket, history []domain.TicketHistory) TicketDetailResponse {
	out := TicketDetailResponse{
		TicketSummary: NewTicketSummary(t),
		ClosedBy:      t.ClosedBy,
		History:       make([]TicketHistoryResponse, 0, len(history)),
	}
	for _, h := range history {
		out.History = append(out.History, TicketHistoryResponse{
			ID:         h.ID,
			ChangedBy:  h.ChangedBy,
			ChangeType: h.ChangeType,
			Detail:     h.Detail,
			CreatedAt:  h.CreatedAt,
		})
	}
	return out
}
