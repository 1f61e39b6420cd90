package interaction

import (
	"errors"
	"testing"

	"github.com/spec-kit/deskbot/internal/correlation"
)

func TestParseEncodedIDs(t *testing.T) {
	key := correlation.Key{Owner: "U1", Token: "abc123"}
	tests := []struct {
		id   string
		want Action
	}{
		{TicketCreateID(), Action{Kind: KindTicketCreate}},
		{TicketClaimID(), Action{Kind: KindTicketClaim}},
		{TicketLockID(), Action{Kind: KindTicketLock}},
		{TicketCloseID(), Action{Kind: KindTicketClose}},
		{TicketTranscriptID(), Action{Kind: KindTicketTranscript}},
		{ApplyID("R9"), Action{Kind: KindApply, RoleID: "R9"}},
		{ApplicationFormID(key), Action{Kind: KindApplicationForm, Key: key}},
		{ReviewAcceptID("U1", "R9"), Action{Kind: KindReviewAccept, Candidate: "U1", RoleID: "R9"}},
		{ReviewRejectID("U1", "R9"), Action{Kind: KindReviewReject, Candidate: "U1", RoleID: "R9"}},
		{RejectReasonID(key), Action{Kind: KindRejectReason, Key: key}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.id)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.id, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.id, got, tt.want)
		}
	}
}

func TestParseRejectsForeignIDs(t *testing.T) {
	for _, id := range []string{
		"",
		"ticket",
		"ticket:reopen",
		"ticket_claim",
		"apply:",
		"appform:U1",
		"appreview:maybe:U1:R1",
		"appreview:accept:U1",
		"guess_submit",
	} {
		if _, err := Parse(id); !errors.Is(err, ErrUnknownAction) {
			t.Errorf("Parse(%q) err = %v, want ErrUnknownAction", id, err)
		}
	}
}
