// Package bot turns inbound platform events into workflow calls and
// answers the acting user.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/interaction"
	"github.com/spec-kit/deskbot/internal/observability"
	"github.com/spec-kit/deskbot/internal/platform"
	"github.com/spec-kit/deskbot/internal/service"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

// Dependencies wires the router.
type Dependencies struct {
	Tickets      *service.TicketService
	Applications *service.ApplicationService
	Moderation   *service.ModerationService
	Settings     *service.SettingsService
	Messenger    platform.Messenger
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	// Prefix starts every text command, "!" by default.
	Prefix string
}

// Router dispatches events. Handle is safe for concurrent use; every
// event runs on the caller's goroutine and a panic only ends that event.
type Router struct {
	tickets      *service.TicketService
	applications *service.ApplicationService
	moderation   *service.ModerationService
	settings     *service.SettingsService
	messenger    platform.Messenger
	metrics      *observability.Metrics
	logger       *zap.Logger
	prefix       string
}

// NewRouter constructs a Router.
func NewRouter(deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := deps.Prefix
	if prefix == "" {
		prefix = "!"
	}
	return &Router{
		tickets:      deps.Tickets,
		applications: deps.Applications,
		moderation:   deps.Moderation,
		settings:     deps.Settings,
		messenger:    deps.Messenger,
		metrics:      deps.Metrics,
		logger:       logger.Named("router"),
		prefix:       prefix,
	}
}

// Handle processes one event. Failures are reported to the actor and
// never returned.
func (r *Router) Handle(ctx context.Context, event platform.Event) {
	var src platform.Source
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event handler panicked",
				zap.Any("panic", rec),
				zap.String("actor_id", src.Actor.ID),
				zap.ByteString("stack", debug.Stack()))
			r.fail(ctx, src, apperrors.NewInternalError(fmt.Errorf("panic: %v", rec)))
		}
	}()

	var err error
	switch ev := event.(type) {
	case platform.TextCommand:
		src = ev.Source
		err = r.handleCommand(ctx, ev)
	case platform.ButtonClicked:
		src = ev.Source
		err = r.handleAction(ctx, ev.Source, ev.ID, actionInput{message: ev.Message})
	case platform.MenuSelected:
		src = ev.Source
		err = r.handleAction(ctx, ev.Source, ev.ID, actionInput{values: ev.Values})
	case platform.FormSubmitted:
		src = ev.Source
		err = r.handleAction(ctx, ev.Source, ev.ID, actionInput{fields: ev.Fields})
	case platform.ChannelMessage:
		r.tickets.RecordActivity(ctx, ev.ChannelID, ev.At)
		return
	default:
		r.logger.Debug("ignoring event", zap.String("type", fmt.Sprintf("%T", event)))
		return
	}
	if err != nil {
		r.fail(ctx, src, err)
	}
}

type actionInput struct {
	message domain.MessageRef
	values  []string
	fields  map[string]string
}

func (r *Router) handleAction(ctx context.Context, src platform.Source, id string, in actionInput) error {
	action, err := interaction.Parse(id)
	if err != nil {
		r.metrics.RecordInteraction(interaction.KindUnknown.String())
		r.logger.Warn("unknown interaction id", zap.String("id", id), zap.String("actor_id", src.Actor.ID))
		return apperrors.NewValidationError("this control is no longer supported", map[string]any{"id": id})
	}
	r.metrics.RecordInteraction(action.Kind.String())
	actor := src.Actor

	switch action.Kind {
	case interaction.KindTicketCreate:
		if len(in.values) == 0 {
			return apperrors.NewValidationError("select a ticket category", nil)
		}
		ticket, err := r.tickets.Create(ctx, actor, in.values[0])
		if err != nil {
			return err
		}
		return r.ok(ctx, src, fmt.Sprintf("Your ticket has been created: <#%s>", ticket.ID))

	case interaction.KindTicketClaim:
		if _, err := r.tickets.Claim(ctx, src.ChannelID, actor); err != nil {
			return err
		}
		return r.ok(ctx, src, "You claimed this ticket.")

	case interaction.KindTicketLock:
		if _, err := r.tickets.Lock(ctx, src.ChannelID, actor); err != nil {
			return err
		}
		return r.ok(ctx, src, "Ticket locked. The owner can no longer write here.")

	case interaction.KindTicketClose:
		if _, err := r.tickets.Close(ctx, src.ChannelID, actor); err != nil {
			return err
		}
		return r.ok(ctx, src, "Ticket closed.")

	case interaction.KindTicketTranscript:
		transcript, err := r.tickets.RequestTranscript(ctx, src.ChannelID, actor)
		if err != nil {
			return err
		}
		return r.ok(ctx, src, fmt.Sprintf("Transcript saved (%d messages).", transcript.Lines))

	case interaction.KindApply:
		_, err := r.applications.Start(ctx, actor, action.RoleID, src.Trigger)
		return err

	case interaction.KindApplicationForm:
		app, err := r.applications.Submit(ctx, actor, action.Key, in.fields)
		if err != nil {
			return err
		}
		return r.ok(ctx, src, fmt.Sprintf("Your application for %s has been submitted.", app.Role.Name))

	case interaction.KindReviewAccept:
		if err := r.applications.Accept(ctx, actor, action.Candidate, action.RoleID, in.message); err != nil {
			return err
		}
		return r.ok(ctx, src, fmt.Sprintf("Application accepted. <@%s> has been given the role.", action.Candidate))

	case interaction.KindReviewReject:
		_, err := r.applications.Reject(ctx, actor, action.Candidate, action.RoleID, src.Trigger, in.message)
		return err

	case interaction.KindRejectReason:
		delivered, err := r.applications.SubmitRejectReason(ctx, actor, action.Key, in.fields)
		if err != nil {
			return err
		}
		if !delivered {
			return r.reply(ctx, src, platform.Message{
				Content: "Application rejected, but the candidate could not be reached by direct message.",
				Tone:    platform.ToneWarning,
			})
		}
		return r.ok(ctx, src, "Application rejected and the candidate has been notified.")

	case interaction.KindUnknown:
		return apperrors.NewValidationError("this control is no longer supported", map[string]any{"id": id})
	}
	return apperrors.NewInternalError(fmt.Errorf("unhandled interaction kind %s", action.Kind))
}

// parseCommand splits raw into a lowercased command and its arguments.
// It reports false when raw does not start with prefix or names nothing.
func parseCommand(prefix, raw string) (string, []string, bool) {
	if !strings.HasPrefix(raw, prefix) {
		return "", nil, false
	}
	args := strings.Fields(raw[len(prefix):])
	if len(args) == 0 {
		return "", nil, false
	}
	return strings.ToLower(args[0]), args[1:], true
}

func (r *Router) handleCommand(ctx context.Context, cmd platform.TextCommand) error {
	name, args, ok := parseCommand(r.prefix, cmd.Raw)
	if !ok {
		return nil
	}
	src := cmd.Source
	actor := src.Actor

	switch {
	case name == "help":
		r.metrics.RecordInteraction("command_help")
		return r.reply(ctx, src, helpMessage(r.prefix))

	case name == "ticket":
		r.metrics.RecordInteraction("command_ticket")
		if err := r.settings.SetTicketPanel(ctx, actor, panelText(args), src.ChannelID); err != nil {
			return err
		}
		return r.reply(ctx, src, platform.Message{
			Title: "Ticket panel message set",
			Tone:  platform.ToneSuccess,
			Body:  "This channel will receive ticket transcripts.",
			Fields: []platform.Field{{
				Name:  "Next steps",
				Value: fmt.Sprintf("1. `%[1]ssetoptions` to set ticket options\n2. `%[1]sdeployticketpanel` to deploy the panel", r.prefix),
			}},
		})

	case name == "setoptions":
		r.metrics.RecordInteraction("command_setoptions")
		if err := r.settings.SetTicketOptions(ctx, actor, args); err != nil {
			return err
		}
		return r.ok(ctx, src, "Ticket options set to: "+strings.Join(args, ", "))

	case name == "setviewer":
		r.metrics.RecordInteraction("command_setviewer")
		if len(cmd.RoleMentions) == 0 {
			return apperrors.NewValidationError("mention a valid role", nil)
		}
		role := cmd.RoleMentions[0]
		if err := r.settings.SetViewerRole(ctx, actor, role.ID); err != nil {
			return err
		}
		return r.ok(ctx, src, "Default viewer role set to "+roleLabel(role))

	case name == "setcategory":
		r.metrics.RecordInteraction("command_setcategory")
		if err := r.settings.SetCategory(ctx, actor, strings.Join(args, " ")); err != nil {
			return err
		}
		return r.ok(ctx, src, "Ticket category updated.")

	case name == "deployticketpanel":
		r.metrics.RecordInteraction("command_deployticketpanel")
		if err := r.settings.DeployTicketPanel(ctx, actor, src.ChannelID); err != nil {
			return err
		}
		return r.ok(ctx, src, "Ticket panel deployed.")

	case name == "app":
		r.metrics.RecordInteraction("command_app")
		if err := r.settings.SetApplicationPanel(ctx, actor, panelText(args), src.ChannelID); err != nil {
			return err
		}
		return r.reply(ctx, src, platform.Message{
			Title: "Application panel message set",
			Tone:  platform.ToneSuccess,
			Body:  "This channel will receive submitted applications.",
			Fields: []platform.Field{{
				Name: "Next steps",
				Value: fmt.Sprintf("1. `%[1]saddoptions` to set role options\n2. `%[1]sques1-%[2]d` to set questions\n3. `%[1]sdeployapp` to deploy the panel",
					r.prefix, domain.MaxQuestions),
			}},
		})

	case name == "addoptions":
		r.metrics.RecordInteraction("command_addoptions")
		if len(cmd.RoleMentions) == 0 {
			return apperrors.NewValidationError("mention valid roles", nil)
		}
		if err := r.settings.AddRoleOptions(ctx, actor, cmd.RoleMentions); err != nil {
			return err
		}
		labels := make([]string, len(cmd.RoleMentions))
		for i, role := range cmd.RoleMentions {
			labels[i] = roleLabel(role)
		}
		return r.ok(ctx, src, "Application options set to: "+strings.Join(labels, ", "))

	case name == "deployapp":
		r.metrics.RecordInteraction("command_deployapp")
		if err := r.settings.DeployApplicationPanel(ctx, actor, src.ChannelID); err != nil {
			return err
		}
		return r.ok(ctx, src, "Application panel deployed.")

	case strings.HasPrefix(name, "ques"):
		r.metrics.RecordInteraction("command_ques")
		slot, err := strconv.Atoi(strings.TrimPrefix(name, "ques"))
		if err != nil {
			return apperrors.NewValidationError(
				fmt.Sprintf("question number must be between 1 and %d (use %sques1-%d)", domain.MaxQuestions, r.prefix, domain.MaxQuestions), nil)
		}
		question := strings.Join(args, " ")
		if question == "" {
			return apperrors.NewValidationError("provide a question", nil)
		}
		if err := r.settings.SetQuestion(ctx, actor, slot, question); err != nil {
			return err
		}
		return r.ok(ctx, src, fmt.Sprintf("Question %d set to: %s", slot, question))

	case name == "warn":
		r.metrics.RecordInteraction("command_warn")
		if len(cmd.UserMentions) == 0 {
			return apperrors.NewValidationError("mention a user to warn", nil)
		}
		target := cmd.UserMentions[0]
		reason := ""
		if len(args) > 1 {
			reason = strings.Join(args[1:], " ")
		}
		total, err := r.moderation.Warn(ctx, actor, target, reason)
		if err != nil {
			return err
		}
		if reason == "" {
			reason = "No reason provided"
		}
		return r.reply(ctx, src, platform.Message{
			Title: "User warned",
			Body:  fmt.Sprintf("<@%s> has been warned.", target.ID),
			Tone:  platform.ToneWarning,
			Fields: []platform.Field{
				{Name: "Reason", Value: reason},
				{Name: "Moderator", Value: fmt.Sprintf("<@%s>", actor.ID)},
				{Name: "Total Warnings", Value: strconv.Itoa(total)},
			},
		})

	case name == "warnings":
		r.metrics.RecordInteraction("command_warnings")
		if len(cmd.UserMentions) == 0 {
			return apperrors.NewValidationError("mention a user to check warnings for", nil)
		}
		target := cmd.UserMentions[0]
		list, err := r.moderation.Warnings(ctx, actor, target)
		if err != nil {
			return err
		}
		body := "No warnings found."
		if len(list) > 0 {
			body = fmt.Sprintf("Total warnings: %d", len(list))
		}
		return r.reply(ctx, src, platform.Message{
			Title:  fmt.Sprintf("Warnings for <@%s>", target.ID),
			Body:   body,
			Tone:   platform.ToneWarning,
			Fields: service.FormatWarnings(list),
		})
	}
	return nil
}

// panelText drops the optional "msg" keyword of "ticket msg <text>".
func panelText(args []string) string {
	if len(args) > 0 && strings.EqualFold(args[0], "msg") {
		args = args[1:]
	}
	return strings.Join(args, " ")
}

func roleLabel(role domain.RoleOption) string {
	if role.Name != "" {
		return role.Name
	}
	return role.ID
}

func helpMessage(prefix string) platform.Message {
	cmd := func(s string) string { return "`" + prefix + s + "`" }
	return platform.Message{
		Title: "Bot commands",
		Tone:  platform.ToneInfo,
		Fields: []platform.Field{
			{Name: "Tickets", Value: strings.Join([]string{
				cmd("ticket msg <text>") + " set the panel text; this channel receives transcripts",
				cmd("setoptions <option...>") + " set ticket categories",
				cmd("setviewer @role") + " let a role see every ticket",
				cmd("setcategory <id>") + " where ticket channels are created",
				cmd("deployticketpanel") + " post the ticket panel here",
			}, "\n")},
			{Name: "Applications", Value: strings.Join([]string{
				cmd("app msg <text>") + " set the panel text; this channel receives applications",
				cmd("addoptions @role...") + " set the roles users may apply for",
				cmd(fmt.Sprintf("ques1-%d <question>", domain.MaxQuestions)) + " set a question",
				cmd("deployapp") + " post the application panel here",
			}, "\n")},
			{Name: "Moderation", Value: strings.Join([]string{
				cmd("warn @user [reason]") + " warn a user",
				cmd("warnings @user") + " list a user's warnings",
			}, "\n")},
		},
	}
}

func (r *Router) ok(ctx context.Context, src platform.Source, text string) error {
	return r.reply(ctx, src, platform.Message{Content: text, Tone: platform.ToneSuccess})
}

// reply failures are logged; the workflow step already happened.
func (r *Router) reply(ctx context.Context, src platform.Source, msg platform.Message) error {
	if err := r.messenger.Reply(ctx, src.ReplyTarget(), msg); err != nil {
		r.logger.Warn("reply failed", zap.String("actor_id", src.Actor.ID), zap.Error(err))
	}
	return nil
}

func (r *Router) fail(ctx context.Context, src platform.Source, err error) {
	code := apperrors.CodeOf(err)
	r.metrics.RecordError("chat", code)
	fields := []zap.Field{
		zap.String("actor_id", src.Actor.ID),
		zap.String("channel_id", src.ChannelID),
		zap.String("code", code),
		zap.Error(err),
	}
	if code == apperrors.CodeInternal {
		r.logger.Error("event failed", fields...)
	} else {
		r.logger.Info("event rejected", fields...)
	}
	if src.Actor.ID == "" {
		return
	}
	_ = r.reply(ctx, src, platform.Message{
		Title:   "Error",
		Content: apperrors.UserMessage(err),
		Tone:    platform.ToneDanger,
	})
}
