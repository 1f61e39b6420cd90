// Package interaction encodes workflow state into the identifiers carried
// by buttons, menus and forms, and parses them back into a typed Action at
// the dispatcher boundary.
package interaction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/deskbot/internal/correlation"
)

// Kind enumerates every interaction the workflows understand.
type Kind int

const (
	KindUnknown Kind = iota
	KindTicketCreate
	KindTicketClaim
	KindTicketLock
	KindTicketClose
	KindTicketTranscript
	KindApply
	KindApplicationForm
	KindReviewAccept
	KindReviewReject
	KindRejectReason
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindTicketCreate:     "ticket_create",
	KindTicketClaim:      "ticket_claim",
	KindTicketLock:       "ticket_lock",
	KindTicketClose:      "ticket_close",
	KindTicketTranscript: "ticket_transcript",
	KindApply:            "apply",
	KindApplicationForm:  "application_form",
	KindReviewAccept:     "review_accept",
	KindReviewReject:     "review_reject",
	KindRejectReason:     "reject_reason",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Action is a parsed identifier. Only the fields relevant to Kind are set.
type Action struct {
	Kind Kind
	// RoleID is set for apply and review actions.
	RoleID string
	// Candidate is set for review actions.
	Candidate string
	// Key is set for form submissions.
	Key correlation.Key
}

// ErrUnknownAction is returned for identifiers this bot did not issue.
var ErrUnknownAction = errors.New("interaction: unknown action id")

const sep = ":"

const (
	prefixTicket    = "ticket"
	prefixApply     = "apply"
	prefixAppForm   = "appform"
	prefixAppReview = "appreview"
	prefixAppReject = "appreject"
	verbCreate      = "create"
	verbClaim       = "claim"
	verbLock        = "lock"
	verbClose       = "close"
	verbTranscript  = "transcript"
	verbAccept      = "accept"
	verbReject      = "reject"
)

// Parse decodes an identifier produced by one of the encoders below.
func Parse(id string) (Action, error) {
	parts := strings.Split(id, sep)
	if len(parts) == 0 {
		return Action{}, ErrUnknownAction
	}
	switch parts[0] {
	case prefixTicket:
		if len(parts) != 2 {
			break
		}
		switch parts[1] {
		case verbCreate:
			return Action{Kind: KindTicketCreate}, nil
		case verbClaim:
			return Action{Kind: KindTicketClaim}, nil
		case verbLock:
			return Action{Kind: KindTicketLock}, nil
		case verbClose:
			return Action{Kind: KindTicketClose}, nil
		case verbTranscript:
			return Action{Kind: KindTicketTranscript}, nil
		}
	case prefixApply:
		if len(parts) == 2 && parts[1] != "" {
			return Action{Kind: KindApply, RoleID: parts[1]}, nil
		}
	case prefixAppForm:
		if len(parts) == 3 && parts[1] != "" && parts[2] != "" {
			return Action{Kind: KindApplicationForm, Key: correlation.Key{Owner: parts[1], Token: parts[2]}}, nil
		}
	case prefixAppReview:
		if len(parts) != 4 || parts[2] == "" || parts[3] == "" {
			break
		}
		switch parts[1] {
		case verbAccept:
			return Action{Kind: KindReviewAccept, Candidate: parts[2], RoleID: parts[3]}, nil
		case verbReject:
			return Action{Kind: KindReviewReject, Candidate: parts[2], RoleID: parts[3]}, nil
		}
	case prefixAppReject:
		if len(parts) == 3 && parts[1] != "" && parts[2] != "" {
			return Action{Kind: KindRejectReason, Key: correlation.Key{Owner: parts[1], Token: parts[2]}}, nil
		}
	}
	return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, id)
}

func join(parts ...string) string {
	return strings.Join(parts, sep)
}

// TicketCreateID is the id of the ticket panel's category menu.
func TicketCreateID() string { return join(prefixTicket, verbCreate) }

// TicketClaimID and friends are the control panel buttons posted in every
// ticket channel. The ticket is identified by the channel the press comes from.
func TicketClaimID() string      { return join(prefixTicket, verbClaim) }
func TicketLockID() string       { return join(prefixTicket, verbLock) }
func TicketCloseID() string      { return join(prefixTicket, verbClose) }
func TicketTranscriptID() string { return join(prefixTicket, verbTranscript) }

// ApplyID is the application panel button for roleID.
func ApplyID(roleID string) string { return join(prefixApply, roleID) }

// ApplicationFormID is the question form shown to a candidate.
func ApplicationFormID(key correlation.Key) string {
	return join(prefixAppForm, key.Owner, key.Token)
}

// ReviewAcceptID and ReviewRejectID are the review message buttons.
func ReviewAcceptID(candidate, roleID string) string {
	return join(prefixAppReview, verbAccept, candidate, roleID)
}

func ReviewRejectID(candidate, roleID string) string {
	return join(prefixAppReview, verbReject, candidate, roleID)
}

// RejectReasonID is the reason form shown to a reviewer.
func RejectReasonID(key correlation.Key) string {
	return join(prefixAppReject, key.Owner, key.Token)
}
