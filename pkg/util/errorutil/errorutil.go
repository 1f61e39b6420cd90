package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Taxonomy codes shared by the chat workflows and the ops API.
const (
	CodeValidation      = "VALIDATION_FAILED"
	CodePermission      = "PERMISSION_DENIED"
	CodeStateConflict   = "STATE_CONFLICT"
	CodeExternalAction  = "EXTERNAL_ACTION_FAILED"
	CodeCorrelationMiss = "CORRELATION_MISS"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeInternal        = "INTERNAL_ERROR"
)

// Reason narrows a taxonomy code to the workflow condition that produced it.
type Reason string

const (
	ReasonDuplicateTicket     Reason = "DUPLICATE_TICKET"
	ReasonAlreadyClaimed      Reason = "ALREADY_CLAIMED"
	ReasonAlreadyLocked       Reason = "ALREADY_LOCKED"
	ReasonAlreadyClosed       Reason = "ALREADY_CLOSED"
	ReasonOnCooldown          Reason = "ON_COOLDOWN"
	ReasonMisroutedSubmission Reason = "MISROUTED_SUBMISSION"
	ReasonRoleGrantFailed     Reason = "ROLE_GRANT_FAILED"
	ReasonChannelCreateFailed Reason = "CHANNEL_CREATE_FAILED"
	ReasonDeliveryFailed      Reason = "DELIVERY_FAILED"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Reason     Reason
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code and, when the target names one, reason.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewPermissionDenied(message string) error {
	return NewDomainError(CodePermission, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func newConflict(reason Reason, message string, details map[string]any) error {
	return &DomainError{
		Code:       CodeStateConflict,
		Reason:     reason,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Details:    details,
	}
}

// NewDuplicateTicket reports that the requester already owns an open ticket.
func NewDuplicateTicket(existingTicketID string) error {
	return newConflict(ReasonDuplicateTicket, "you already have an open ticket",
		map[string]any{"ticket_id": existingTicketID})
}

// NewAlreadyClaimed reports the staff member holding the claim.
func NewAlreadyClaimed(claimedBy string) error {
	return newConflict(ReasonAlreadyClaimed, "this ticket is already claimed",
		map[string]any{"claimed_by": claimedBy})
}

func NewAlreadyLocked() error {
	return newConflict(ReasonAlreadyLocked, "this ticket is already locked", nil)
}

func NewAlreadyClosed() error {
	return newConflict(ReasonAlreadyClosed, "this ticket is already closed", nil)
}

// NewOnCooldown reports the whole minutes left, rounded up.
func NewOnCooldown(remainingMinutes int) error {
	return newConflict(ReasonOnCooldown,
		fmt.Sprintf("you're on cooldown, please wait %d more minutes before applying again", remainingMinutes),
		map[string]any{"remaining_minutes": remainingMinutes})
}

// NewMisroutedSubmission reports a form submission with no pending instance.
func NewMisroutedSubmission(formID string) error {
	return &DomainError{
		Code:       CodeCorrelationMiss,
		Reason:     ReasonMisroutedSubmission,
		Message:    "this form has expired or was never opened, please start again",
		HTTPStatus: http.StatusGone,
		Details:    map[string]any{"form_id": formID},
	}
}

// NewExternalActionFailed wraps a failed platform call.
func NewExternalActionFailed(reason Reason, message string, err error) error {
	return &DomainError{
		Code:       CodeExternalAction,
		Reason:     reason,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewRoleGrantFailed(err error) error {
	return NewExternalActionFailed(ReasonRoleGrantFailed,
		"failed to assign role, check bot permissions and role hierarchy", err)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

// ReasonOf returns the reason carried by err, if any.
func ReasonOf(err error) Reason {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Reason
	}
	return ""
}

// CodeOf returns the taxonomy code for err.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Code
}

// UserMessage renders err as the short line shown to the acting user.
// Internal failures never leak their cause.
func UserMessage(err error) string {
	domainErr := ToDomainError(err)
	if domainErr == nil {
		return ""
	}
	if domainErr.Code == CodeInternal {
		return "An error occurred while processing your request."
	}
	if domainErr.Reason == ReasonAlreadyClaimed {
		if by, ok := domainErr.Details["claimed_by"].(string); ok && by != "" {
			return fmt.Sprintf("This ticket is already claimed by <@%s>", by)
		}
	}
	return capitalize(domainErr.Message)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
