package events

import (
	"time"

	"github.com/spec-kit/deskbot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated        EventType = "ticket_created"
	EventTicketClaimed        EventType = "ticket_claimed"
	EventTicketLocked         EventType = "ticket_locked"
	EventTicketClosed         EventType = "ticket_closed"
	EventTicketDeleted        EventType = "ticket_deleted"
	EventTranscriptExported   EventType = "transcript_exported"
	EventApplicationSubmitted EventType = "application_submitted"
	EventApplicationDecided   EventType = "application_decided"
	EventWarningIssued        EventType = "warning_issued"
)

// Event represents a domain event emitted by services. Subject is the
// ticket id for ticket events and the candidate or warned identity otherwise.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Subject   string      `json:"subject"`
	Actor     domain.User `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	OwnerID     string `json:"owner_id"`
	Category    string `json:"category"`
	ChannelName string `json:"channel_name"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	OwnerID   string `json:"owner_id"`
	Automatic bool   `json:"automatic"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	ChannelDeleted bool `json:"channel_deleted"`
}

// TranscriptExportedPayload payload.
type TranscriptExportedPayload struct {
	FileName string `json:"file_name"`
	Lines    int    `json:"lines"`
	Digest   string `json:"digest"`
}

// ApplicationSubmittedPayload payload.
type ApplicationSubmittedPayload struct {
	RoleID  string `json:"role_id"`
	Answers int    `json:"answers"`
}

// ApplicationDecidedPayload payload.
type ApplicationDecidedPayload struct {
	RoleID   string          `json:"role_id"`
	Decision domain.Decision `json:"decision"`
	Reason   string          `json:"reason,omitempty"`
}

// WarningIssuedPayload payload.
type WarningIssuedPayload struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}
