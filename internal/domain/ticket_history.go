package domain

import "time"

// TicketChangeType captures which transition a history entry records.
type TicketChangeType string

const (
	ChangeTypeCreated    TicketChangeType = "CREATED"
	ChangeTypeClaimed    TicketChangeType = "CLAIMED"
	ChangeTypeLocked     TicketChangeType = "LOCKED"
	ChangeTypeClosed     TicketChangeType = "CLOSED"
	ChangeTypeDeleted    TicketChangeType = "DELETED"
	ChangeTypeTranscript TicketChangeType = "TRANSCRIPT"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID         string
	TicketID   string
	ChangedBy  string
	ChangeType TicketChangeType
	Detail     map[string]any
	CreatedAt  time.Time
}
