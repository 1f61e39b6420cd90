package domain

import "time"

// Ticket is one support conversation, keyed by its dedicated channel.
// Claimed and Locked are independent flags layered on an open ticket;
// Closed is terminal.
type Ticket struct {
	ID           string
	ChannelName  string
	Owner        User
	Category     string
	Claimed      bool
	ClaimedBy    string
	Locked       bool
	Closed       bool
	ClosedBy     string
	CreatedAt    time.Time
	LastActivity time.Time
	ClosedAt     *time.Time
}

// Open reports whether the ticket still counts against its owner.
func (t *Ticket) Open() bool {
	return !t.Closed
}

// IdleFor returns how long the ticket has gone without activity at now.
func (t *Ticket) IdleFor(now time.Time) time.Duration {
	return now.Sub(t.LastActivity)
}

// TicketState is the coarse lifecycle position used in logs and the ops API.
type TicketState string

const (
	TicketStateOpen    TicketState = "OPEN"
	TicketStateClaimed TicketState = "CLAIMED"
	TicketStateLocked  TicketState = "LOCKED"
	TicketStateClosed  TicketState = "CLOSED"
)

// State summarises the flags.
func (t *Ticket) State() TicketState {
	switch {
	case t.Closed:
		return TicketStateClosed
	case t.Locked:
		return TicketStateLocked
	case t.Claimed:
		return TicketStateClaimed
	default:
		return TicketStateOpen
	}
}
