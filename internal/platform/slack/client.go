// Package slackconn implements the platform boundary on Slack via Socket
// Mode. Channels are private conversations and roles are user groups.
package slackconn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/deskbot/internal/config"
	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/platform"
)

const (
	userCacheTTL    = 5 * time.Minute
	historyPageSize = 200
	maxNameAttempts = 10

	errNameTaken       = "name_taken"
	errAlreadyInChan   = "already_in_channel"
	errNotInChan       = "not_in_channel"
	errAlreadyArchived = "already_archived"
)

// Client implements platform.Platform.
type Client struct {
	api    *slack.Client
	cfg    config.SlackConfig
	prefix string
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	users map[string]cachedUser
	botID string

	wg sync.WaitGroup
}

type cachedUser struct {
	user    slack.User
	fetched time.Time
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	apiURL string
	prefix string
}

// WithAPIURL points the web API at another base URL. Tests use it.
func WithAPIURL(u string) Option {
	return func(o *clientOptions) { o.apiURL = u }
}

// WithCommandPrefix sets the prefix that turns a message into a TextCommand.
func WithCommandPrefix(prefix string) Option {
	return func(o *clientOptions) { o.prefix = prefix }
}

// New builds a client. It makes no network calls; Run authenticates.
func New(cfg config.SlackConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("slack: bot token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := clientOptions{prefix: "!"}
	for _, opt := range opts {
		opt(&o)
	}
	apiOpts := []slack.Option{slack.OptionDebug(cfg.Debug)}
	if cfg.AppToken != "" {
		apiOpts = append(apiOpts, slack.OptionAppLevelToken(cfg.AppToken))
	}
	if o.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(o.apiURL))
	}
	return &Client{
		api:    slack.New(cfg.BotToken, apiOpts...),
		cfg:    cfg,
		prefix: o.prefix,
		logger: logger.Named("slack"),
		now:    time.Now,
		users:  make(map[string]cachedUser),
	}, nil
}

// CreateChannel opens a private channel and invites the members and the
// viewer group. Archived channels keep their names, so a taken name is
// retried with a numeric suffix.
func (c *Client) CreateChannel(ctx context.Context, spec platform.ChannelSpec) (string, error) {
	var channel *slack.Channel
	var err error
	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		name := spec.Name
		if attempt > 1 {
			name = fmt.Sprintf("%s-%d", spec.Name, attempt)
		}
		channel, err = c.api.CreateConversationContext(ctx, slack.CreateConversationParams{ChannelName: name, IsPrivate: true})
		if !isSlackError(err, errNameTaken) {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("slack: create channel %q: %w", spec.Name, err)
	}

	members := slices.Clone(spec.Members)
	if spec.ViewerRole != "" {
		group, err := c.api.GetUserGroupMembersContext(ctx, spec.ViewerRole)
		if err != nil {
			c.logger.Warn("viewer group lookup failed", zap.String("group", spec.ViewerRole), zap.Error(err))
		}
		members = append(members, group...)
	}
	members = compactMembers(members)
	if len(members) > 0 {
		if _, err := c.api.InviteUsersToConversationContext(ctx, channel.ID, members...); err != nil && !isSlackError(err, errAlreadyInChan) {
			if archiveErr := c.api.ArchiveConversationContext(ctx, channel.ID); archiveErr != nil {
				c.logger.Warn("archive after failed invite", zap.String("channel_id", channel.ID), zap.Error(archiveErr))
			}
			return "", fmt.Errorf("slack: invite members: %w", err)
		}
	}

	topic := spec.Topic
	if spec.Category != "" {
		topic = strings.TrimSpace(spec.Category + " " + topic)
	}
	if topic != "" {
		if _, err := c.api.SetTopicOfConversationContext(ctx, channel.ID, topic); err != nil {
			c.logger.Debug("set topic failed", zap.String("channel_id", channel.ID), zap.Error(err))
		}
	}
	return channel.ID, nil
}

// SetChannelPermission maps write access onto channel membership. Slack
// has no per-member read-only mode, so revoking write removes the member.
func (c *Client) SetChannelPermission(ctx context.Context, channelID, userID string, perm platform.Permission) error {
	if perm.View && perm.Write {
		if _, err := c.api.InviteUsersToConversationContext(ctx, channelID, userID); err != nil && !isSlackError(err, errAlreadyInChan) {
			return fmt.Errorf("slack: invite %s: %w", userID, err)
		}
		return nil
	}
	if err := c.api.KickUserFromConversationContext(ctx, channelID, userID); err != nil && !isSlackError(err, errNotInChan) {
		return fmt.Errorf("slack: remove %s: %w", userID, err)
	}
	return nil
}

// DeleteChannel archives the channel; Slack bots cannot delete channels.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	if err := c.api.ArchiveConversationContext(ctx, channelID); err != nil && !isSlackError(err, errAlreadyArchived) {
		return fmt.Errorf("slack: archive %s: %w", channelID, err)
	}
	return nil
}

// GrantRole adds userID to the user group roleID.
func (c *Client) GrantRole(ctx context.Context, userID, roleID string) error {
	members, err := c.api.GetUserGroupMembersContext(ctx, roleID)
	if err != nil {
		return fmt.Errorf("slack: list group %s: %w", roleID, err)
	}
	if slices.Contains(members, userID) {
		return nil
	}
	members = append(members, userID)
	if _, err := c.api.UpdateUserGroupMembersContext(ctx, roleID, strings.Join(members, ",")); err != nil {
		return fmt.Errorf("slack: update group %s: %w", roleID, err)
	}
	return nil
}

// FetchHistory pages through conversations.history and returns up to limit
// messages, oldest first.
func (c *Client) FetchHistory(ctx context.Context, channelID string, limit int) ([]domain.HistoryMessage, error) {
	var collected []slack.Message
	cursor := ""
	for len(collected) < limit {
		resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Cursor:    cursor,
			Limit:     min(historyPageSize, limit-len(collected)),
		})
		if err != nil {
			return nil, fmt.Errorf("slack: history %s: %w", channelID, err)
		}
		collected = append(collected, resp.Messages...)
		cursor = resp.ResponseMetaData.NextCursor
		if !resp.HasMore || cursor == "" {
			break
		}
	}
	if len(collected) > limit {
		collected = collected[:limit]
	}

	out := make([]domain.HistoryMessage, 0, len(collected))
	for i := len(collected) - 1; i >= 0; i-- {
		m := collected[i]
		at, _ := parseTimestamp(m.Timestamp)
		out = append(out, domain.HistoryMessage{
			Timestamp: at,
			Author:    c.authorName(ctx, m),
			Text:      m.Text,
		})
	}
	return out, nil
}

// OpenForm opens a modal in response to the interaction trigger.
func (c *Client) OpenForm(ctx context.Context, trigger string, form platform.Form) error {
	if _, err := c.api.OpenViewContext(ctx, trigger, modalView(form)); err != nil {
		return fmt.Errorf("slack: open form %s: %w", form.ID, err)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg platform.Message) (domain.MessageRef, error) {
	channel, ts, err := c.api.PostMessageContext(ctx, channelID, messageOptions(msg)...)
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("slack: post to %s: %w", channelID, err)
	}
	return domain.MessageRef{ChannelID: channel, MessageID: ts}, nil
}

func (c *Client) UpdateMessage(ctx context.Context, ref domain.MessageRef, msg platform.Message) error {
	if _, _, _, err := c.api.UpdateMessageContext(ctx, ref.ChannelID, ref.MessageID, messageOptions(msg)...); err != nil {
		return fmt.Errorf("slack: update %s/%s: %w", ref.ChannelID, ref.MessageID, err)
	}
	return nil
}

func (c *Client) DirectMessage(ctx context.Context, userID string, msg platform.Message) error {
	channelID, err := c.openIM(ctx, userID)
	if err != nil {
		return err
	}
	_, err = c.SendMessage(ctx, channelID, msg)
	return err
}

func (c *Client) UploadFile(ctx context.Context, channelID string, file platform.File) error {
	if len(file.Content) == 0 {
		return fmt.Errorf("slack: upload %s: empty file", file.Name)
	}
	_, err := c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Reader:         bytes.NewReader(file.Content),
		FileSize:       len(file.Content),
		Filename:       file.Name,
		Title:          file.Name,
		InitialComment: file.Comment,
		Channel:        channelID,
	})
	if err != nil {
		return fmt.Errorf("slack: upload %s to %s: %w", file.Name, channelID, err)
	}
	return nil
}

func (c *Client) DirectFile(ctx context.Context, userID string, file platform.File) error {
	channelID, err := c.openIM(ctx, userID)
	if err != nil {
		return err
	}
	return c.UploadFile(ctx, channelID, file)
}

// Reply posts an ephemeral message where possible. Form submissions carry
// no channel, so their replies go to a direct message.
func (c *Client) Reply(ctx context.Context, to platform.ReplyTarget, msg platform.Message) error {
	switch {
	case to.ChannelID == "":
		return c.DirectMessage(ctx, to.UserID, msg)
	case to.Ephemeral:
		if _, err := c.api.PostEphemeralContext(ctx, to.ChannelID, to.UserID, messageOptions(msg)...); err != nil {
			return fmt.Errorf("slack: ephemeral to %s: %w", to.UserID, err)
		}
		return nil
	default:
		_, err := c.SendMessage(ctx, to.ChannelID, msg)
		return err
	}
}

// HasCapability treats workspace admins and owners as holding every
// capability. Members of the staff group hold everything but Administrator.
func (c *Client) HasCapability(ctx context.Context, userID string, capability domain.Capability) (bool, error) {
	u, err := c.lookupUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.IsAdmin || u.IsOwner {
		return true, nil
	}
	if capability == domain.CapabilityAdministrator || c.cfg.StaffGroup == "" {
		return false, nil
	}
	return c.HasRole(ctx, userID, c.cfg.StaffGroup)
}

func (c *Client) HasRole(ctx context.Context, userID, roleID string) (bool, error) {
	members, err := c.api.GetUserGroupMembersContext(ctx, roleID)
	if err != nil {
		return false, fmt.Errorf("slack: list group %s: %w", roleID, err)
	}
	return slices.Contains(members, userID), nil
}

func (c *Client) openIM(ctx context.Context, userID string) (string, error) {
	channel, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{userID}})
	if err != nil {
		return "", fmt.Errorf("slack: open dm with %s: %w", userID, err)
	}
	return channel.ID, nil
}

func (c *Client) lookupUser(ctx context.Context, userID string) (slack.User, error) {
	c.mu.Lock()
	cached, ok := c.users[userID]
	c.mu.Unlock()
	if ok && c.now().Sub(cached.fetched) < userCacheTTL {
		return cached.user, nil
	}
	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return slack.User{}, fmt.Errorf("slack: user %s: %w", userID, err)
	}
	c.mu.Lock()
	c.users[userID] = cachedUser{user: *u, fetched: c.now()}
	c.mu.Unlock()
	return *u, nil
}

// resolveUser returns a domain user, degrading to the bare id on lookup errors.
func (c *Client) resolveUser(ctx context.Context, userID string) domain.User {
	u, err := c.lookupUser(ctx, userID)
	if err != nil {
		c.logger.Debug("user lookup failed", zap.String("user_id", userID), zap.Error(err))
		return domain.User{ID: userID, Username: userID}
	}
	return toDomainUser(u)
}

func (c *Client) authorName(ctx context.Context, m slack.Message) string {
	if m.User != "" {
		return c.resolveUser(ctx, m.User).Username
	}
	if m.Username != "" {
		return m.Username
	}
	return m.BotID
}

func toDomainUser(u slack.User) domain.User {
	name := u.Name
	if name == "" {
		name = u.RealName
	}
	if name == "" {
		name = u.ID
	}
	return domain.User{ID: u.ID, Username: name}
}

func compactMembers(ids []string) []string {
	out := ids[:0]
	seen := map[string]bool{}
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func isSlackError(err error, code string) bool {
	var slackErr slack.SlackErrorResponse
	return errors.As(err, &slackErr) && slackErr.Err == code
}

var _ platform.Platform = (*Client)(nil)
