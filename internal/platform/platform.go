// Package platform defines the boundary between the workflow core and the
// chat platform: inbound events, outbound capability calls and the
// presentation requests the engines emit.
package platform

import (
	"context"
	"time"

	"github.com/spec-kit/deskbot/internal/domain"
)

// Platform is every call the workflows make against the chat platform.
type Platform interface {
	Messenger
	Authorizer

	// CreateChannel allocates a private conversation channel and returns its id.
	CreateChannel(ctx context.Context, spec ChannelSpec) (string, error)
	// SetChannelPermission grants or revokes write access for a user.
	SetChannelPermission(ctx context.Context, channelID, userID string, perm Permission) error
	DeleteChannel(ctx context.Context, channelID string) error
	GrantRole(ctx context.Context, userID, roleID string) error
	// FetchHistory returns up to limit messages, oldest first.
	FetchHistory(ctx context.Context, channelID string, limit int) ([]domain.HistoryMessage, error)
	// OpenForm shows a modal form in response to the interaction identified by trigger.
	OpenForm(ctx context.Context, trigger string, form Form) error
}

// Messenger posts and edits messages.
type Messenger interface {
	SendMessage(ctx context.Context, channelID string, msg Message) (domain.MessageRef, error)
	UpdateMessage(ctx context.Context, ref domain.MessageRef, msg Message) error
	// DirectMessage fails when the recipient does not accept direct messages.
	DirectMessage(ctx context.Context, userID string, msg Message) error
	UploadFile(ctx context.Context, channelID string, file File) error
	DirectFile(ctx context.Context, userID string, file File) error
	// Reply answers the acting user, visible only to them when Ephemeral is set.
	Reply(ctx context.Context, to ReplyTarget, msg Message) error
}

// Authorizer delegates capability checks to the platform's permission model.
type Authorizer interface {
	HasCapability(ctx context.Context, userID string, capability domain.Capability) (bool, error)
	HasRole(ctx context.Context, userID, roleID string) (bool, error)
}

// ChannelSpec describes a ticket channel to create.
type ChannelSpec struct {
	Name     string
	Category string
	Topic    string
	// Members may read and write; ViewerRole, when set, is granted the same.
	Members    []string
	ViewerRole string
}

// Permission is the write access toggled on a ticket channel.
type Permission struct {
	View  bool
	Write bool
}

// ReplyTarget addresses a response to the user who triggered an event.
type ReplyTarget struct {
	ChannelID string
	UserID    string
	Trigger   string
	Ephemeral bool
}

// Tone hints the presentation layer at the colour of a message.
type Tone string

const (
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

// Message is a rendering request. How it looks is up to the adapter.
type Message struct {
	Content string
	Title   string
	Body    string
	Footer  string
	Tone    Tone
	Fields  []Field
	Buttons []Button
	Select  *Select
}

// Field is a labelled block of text inside a message.
type Field struct {
	Name  string
	Value string
}

// ButtonStyle selects a button's emphasis.
type ButtonStyle string

const (
	ButtonPrimary   ButtonStyle = "primary"
	ButtonSecondary ButtonStyle = "secondary"
	ButtonSuccess   ButtonStyle = "success"
	ButtonDanger    ButtonStyle = "danger"
)

// Button is a clickable control; ID round-trips through ButtonClicked.
type Button struct {
	ID    string
	Label string
	Style ButtonStyle
}

// Select is a single-choice menu; ID round-trips through MenuSelected.
type Select struct {
	ID          string
	Placeholder string
	Options     []SelectOption
}

// SelectOption is one menu entry.
type SelectOption struct {
	Label string
	Value string
}

// Form is a modal input form; ID round-trips through FormSubmitted.
type Form struct {
	ID     string
	Title  string
	Fields []FormField
	// Context is opaque state echoed back on submission.
	Context string
}

// FormField is one text input.
type FormField struct {
	ID        string
	Label     string
	Paragraph bool
	Required  bool
}

// File is an attachment upload.
type File struct {
	Name    string
	Content []byte
	Comment string
}

// Event is implemented by every inbound event type.
type Event interface {
	OccurredAt() time.Time
}

// Source carries what every interaction event knows about its origin.
type Source struct {
	Actor     domain.User
	ChannelID string
	Trigger   string
	At        time.Time
}

func (s Source) OccurredAt() time.Time { return s.At }

// ReplyTarget returns an ephemeral reply address for the event's actor.
func (s Source) ReplyTarget() ReplyTarget {
	return ReplyTarget{ChannelID: s.ChannelID, UserID: s.Actor.ID, Trigger: s.Trigger, Ephemeral: true}
}

// TextCommand is a message starting with the command prefix.
type TextCommand struct {
	Source
	Raw          string
	UserMentions []domain.User
	RoleMentions []domain.RoleOption
}

// ButtonClicked is a press on a Button.
type ButtonClicked struct {
	Source
	ID      string
	Message domain.MessageRef
}

// MenuSelected is a choice on a Select.
type MenuSelected struct {
	Source
	ID     string
	Values []string
}

// FormSubmitted is a completed Form. Fields is keyed by FormField.ID.
type FormSubmitted struct {
	Source
	ID      string
	Fields  map[string]string
	Context string
}

// ChannelMessage is any user message observed in a channel.
type ChannelMessage struct {
	Source
	Text string
}
