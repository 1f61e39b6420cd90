// Package platformtest provides an in-memory Platform that records every
// outbound call for assertions.
package platformtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/platform"
)

// ErrInjected is returned by calls configured to fail.
var ErrInjected = errors.New("platformtest: injected failure")

// PermissionCall records one SetChannelPermission.
type PermissionCall struct {
	ChannelID string
	UserID    string
	Perm      platform.Permission
}

// Sent records a message posted to a channel or user.
type Sent struct {
	Target string
	Ref    domain.MessageRef
	Msg    platform.Message
}

// Upload records a file delivered to a channel or user.
type Upload struct {
	Target string
	File   platform.File
}

// OpenedForm records a form shown to a user.
type OpenedForm struct {
	Trigger string
	Form    platform.Form
}

// Reply records an answer to an acting user.
type Reply struct {
	To  platform.ReplyTarget
	Msg platform.Message
}

// Fake implements platform.Platform.
type Fake struct {
	mu sync.Mutex

	// Capabilities maps user id to the capabilities it holds.
	Capabilities map[string][]domain.Capability
	// Roles maps user id to the role ids it holds.
	Roles map[string][]string
	// History is returned by FetchHistory per channel.
	History map[string][]domain.HistoryMessage

	FailCreateChannel bool
	FailDeleteChannel bool
	FailGrantRole     bool
	FailDirect        bool
	FailSend          bool

	nextID int

	CreatedChannels []platform.ChannelSpec
	Permissions     []PermissionCall
	DeletedChannels []string
	Messages        []Sent
	Updates         []Sent
	Directs         []Sent
	Uploads         []Upload
	DirectFiles     []Upload
	Forms           []OpenedForm
	Replies         []Reply
	Grants          []string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Capabilities: map[string][]domain.Capability{},
		Roles:        map[string][]string{},
		History:      map[string][]domain.HistoryMessage{},
	}
}

// Grant gives userID the listed capabilities.
func (f *Fake) Grant(userID string, caps ...domain.Capability) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Capabilities[userID] = append(f.Capabilities[userID], caps...)
}

func (f *Fake) CreateChannel(_ context.Context, spec platform.ChannelSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateChannel {
		return "", ErrInjected
	}
	f.nextID++
	f.CreatedChannels = append(f.CreatedChannels, spec)
	return fmt.Sprintf("C%03d", f.nextID), nil
}

func (f *Fake) SetChannelPermission(_ context.Context, channelID, userID string, perm platform.Permission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Permissions = append(f.Permissions, PermissionCall{ChannelID: channelID, UserID: userID, Perm: perm})
	return nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDeleteChannel {
		return ErrInjected
	}
	f.DeletedChannels = append(f.DeletedChannels, channelID)
	return nil
}

func (f *Fake) GrantRole(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailGrantRole {
		return ErrInjected
	}
	f.Grants = append(f.Grants, userID+":"+roleID)
	f.Roles[userID] = append(f.Roles[userID], roleID)
	return nil
}

func (f *Fake) FetchHistory(_ context.Context, channelID string, limit int) ([]domain.HistoryMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.History[channelID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.HistoryMessage(nil), msgs...), nil
}

func (f *Fake) OpenForm(_ context.Context, trigger string, form platform.Form) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Forms = append(f.Forms, OpenedForm{Trigger: trigger, Form: form})
	return nil
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg platform.Message) (domain.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSend {
		return domain.MessageRef{}, ErrInjected
	}
	f.nextID++
	ref := domain.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("M%03d", f.nextID)}
	f.Messages = append(f.Messages, Sent{Target: channelID, Ref: ref, Msg: msg})
	return ref, nil
}

func (f *Fake) UpdateMessage(_ context.Context, ref domain.MessageRef, msg platform.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates = append(f.Updates, Sent{Target: ref.ChannelID, Ref: ref, Msg: msg})
	return nil
}

func (f *Fake) DirectMessage(_ context.Context, userID string, msg platform.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDirect {
		return ErrInjected
	}
	f.Directs = append(f.Directs, Sent{Target: userID, Msg: msg})
	return nil
}

func (f *Fake) UploadFile(_ context.Context, channelID string, file platform.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Uploads = append(f.Uploads, Upload{Target: channelID, File: file})
	return nil
}

func (f *Fake) DirectFile(_ context.Context, userID string, file platform.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDirect {
		return ErrInjected
	}
	f.DirectFiles = append(f.DirectFiles, Upload{Target: userID, File: file})
	return nil
}

func (f *Fake) Reply(_ context.Context, to platform.ReplyTarget, msg platform.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Replies = append(f.Replies, Reply{To: to, Msg: msg})
	return nil
}

func (f *Fake) HasCapability(_ context.Context, userID string, capability domain.Capability) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Capabilities[userID] {
		if c == capability || c == domain.CapabilityAdministrator {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fake) HasRole(_ context.Context, userID, roleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.Roles[userID] {
		if r == roleID {
			return true, nil
		}
	}
	return false, nil
}

// PermissionsFor returns the permission calls made for userID.
func (f *Fake) PermissionsFor(userID string) []PermissionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PermissionCall
	for _, p := range f.Permissions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

// LastReply returns the most recent Reply, or the zero value.
func (f *Fake) LastReply() Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Replies) == 0 {
		return Reply{}
	}
	return f.Replies[len(f.Replies)-1]
}

var _ platform.Platform = (*Fake)(nil)
