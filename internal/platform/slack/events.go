package slackconn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/platform"
)

// Handler receives every converted inbound event. It runs on its own
// goroutine per event, so handlers may interleave.
type Handler func(ctx context.Context, event platform.Event)

// Run authenticates, connects over Socket Mode and feeds events to handle
// until ctx is cancelled. In-flight handlers are awaited before returning.
func (c *Client) Run(ctx context.Context, handle Handler) error {
	if c.cfg.AppToken == "" {
		return fmt.Errorf("slack: app token is required for socket mode")
	}
	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	c.mu.Lock()
	c.botID = auth.UserID
	c.mu.Unlock()
	c.logger.Info("slack bot authorized", zap.String("user", auth.User), zap.String("team", auth.Team))

	socket := socketmode.New(c.api, socketmode.OptionDebug(c.cfg.Debug))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.consume(ctx, socket, handle)

	err = socket.RunContext(ctx)
	c.wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) consume(ctx context.Context, socket *socketmode.Client, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-socket.Events:
			if !ok {
				return
			}
			switch event.Type {
			case socketmode.EventTypeConnecting:
				c.logger.Info("connecting to slack")
			case socketmode.EventTypeConnected:
				c.logger.Info("connected to slack")
			case socketmode.EventTypeConnectionError:
				c.logger.Warn("slack connection error", zap.Any("data", event.Data))
			case socketmode.EventTypeEventsAPI:
				if event.Request != nil {
					socket.Ack(*event.Request)
				}
				apiEvent, ok := event.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
					c.dispatch(ctx, handle, c.messageEvents(ctx, msg)...)
				}
			case socketmode.EventTypeInteractive:
				if event.Request != nil {
					socket.Ack(*event.Request)
				}
				cb, ok := event.Data.(slack.InteractionCallback)
				if !ok {
					continue
				}
				c.dispatch(ctx, handle, interactionEvents(cb, c.now())...)
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, handle Handler, events ...platform.Event) {
	for _, ev := range events {
		c.wg.Add(1)
		go func(ev platform.Event) {
			defer c.wg.Done()
			handle(ctx, ev)
		}(ev)
	}
}

// messageEvents converts a posted message. Every human message counts as
// channel activity; one starting with the prefix is also a command.
func (c *Client) messageEvents(ctx context.Context, ev *slackevents.MessageEvent) []platform.Event {
	c.mu.Lock()
	botID := c.botID
	c.mu.Unlock()
	if ev.SubType != "" || ev.User == "" || ev.User == botID {
		return nil
	}
	at, ok := parseTimestamp(ev.TimeStamp)
	if !ok {
		at = c.now()
	}
	return messageToEvents(c.resolveUser(ctx, ev.User), ev, c.prefix, at)
}

func messageToEvents(actor domain.User, ev *slackevents.MessageEvent, prefix string, at time.Time) []platform.Event {
	src := platform.Source{Actor: actor, ChannelID: ev.Channel, At: at}
	out := []platform.Event{platform.ChannelMessage{Source: src, Text: ev.Text}}
	if strings.HasPrefix(ev.Text, prefix) {
		out = append(out, platform.TextCommand{
			Source:       src,
			Raw:          ev.Text,
			UserMentions: parseUserMentions(ev.Text),
			RoleMentions: parseGroupMentions(ev.Text),
		})
	}
	return out
}

// interactionEvents converts block actions and modal submissions.
func interactionEvents(cb slack.InteractionCallback, now time.Time) []platform.Event {
	actor := domain.User{ID: cb.User.ID, Username: cb.User.Name}
	if actor.Username == "" {
		actor.Username = cb.User.ID
	}
	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}
	src := platform.Source{Actor: actor, ChannelID: channelID, Trigger: cb.TriggerID, At: now}

	switch cb.Type {
	case slack.InteractionTypeBlockActions:
		var out []platform.Event
		for _, action := range cb.ActionCallback.BlockActions {
			if action == nil {
				continue
			}
			if action.Type == slack.ActionType(slack.OptTypeStatic) {
				out = append(out, platform.MenuSelected{Source: src, ID: action.ActionID, Values: []string{action.SelectedOption.Value}})
				continue
			}
			messageTs := cb.Container.MessageTs
			if messageTs == "" {
				messageTs = cb.Message.Timestamp
			}
			out = append(out, platform.ButtonClicked{
				Source:  src,
				ID:      action.ActionID,
				Message: domain.MessageRef{ChannelID: channelID, MessageID: messageTs},
			})
		}
		return out
	case slack.InteractionTypeViewSubmission:
		src.ChannelID = ""
		return []platform.Event{platform.FormSubmitted{
			Source:  src,
			ID:      cb.View.CallbackID,
			Fields:  viewValues(cb.View.State),
			Context: cb.View.PrivateMetadata,
		}}
	}
	return nil
}

// viewValues flattens modal state to field id -> value. Input blocks use the
// field id as both block and action id.
func viewValues(state *slack.ViewState) map[string]string {
	out := map[string]string{}
	if state == nil {
		return out
	}
	for blockID, actions := range state.Values {
		if action, ok := actions[blockID]; ok {
			out[blockID] = action.Value
			continue
		}
		for _, action := range actions {
			out[blockID] = action.Value
			break
		}
	}
	return out
}
