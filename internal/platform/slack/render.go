package slackconn

import (
	"strings"

	"github.com/slack-go/slack"

	"github.com/spec-kit/deskbot/internal/platform"
)

const (
	maxFieldsPerSection = 10
	buttonsPerRow       = 5
	maxHeaderLen        = 150
	maxModalTitleLen    = 24
)

var toneEmoji = map[platform.Tone]string{
	platform.ToneInfo:    ":information_source:",
	platform.ToneSuccess: ":white_check_mark:",
	platform.ToneWarning: ":warning:",
	platform.ToneDanger:  ":x:",
}

// messageOptions renders msg as a Block Kit message. Blocks are always
// sent so an update replaces every control of the previous version.
func messageOptions(msg platform.Message) []slack.MsgOption {
	return []slack.MsgOption{
		slack.MsgOptionText(fallbackText(msg), false),
		slack.MsgOptionBlocks(renderBlocks(msg)...),
	}
}

// fallbackText is what notifications and screen readers show.
func fallbackText(msg platform.Message) string {
	for _, s := range []string{msg.Content, msg.Title, msg.Body} {
		if s != "" {
			return s
		}
	}
	return " "
}

func renderBlocks(msg platform.Message) []slack.Block {
	var blocks []slack.Block

	if msg.Content != "" {
		text := msg.Content
		if msg.Title == "" {
			text = withTone(msg.Tone, text)
		}
		blocks = append(blocks, slack.NewSectionBlock(mrkdwn(text), nil, nil))
	}
	if msg.Title != "" {
		blocks = append(blocks, slack.NewHeaderBlock(plain(truncate(withTone(msg.Tone, msg.Title), maxHeaderLen))))
	}
	if msg.Body != "" {
		blocks = append(blocks, slack.NewSectionBlock(mrkdwn(msg.Body), nil, nil))
	}
	for start := 0; start < len(msg.Fields); start += maxFieldsPerSection {
		end := min(start+maxFieldsPerSection, len(msg.Fields))
		fields := make([]*slack.TextBlockObject, 0, end-start)
		for _, f := range msg.Fields[start:end] {
			fields = append(fields, mrkdwn("*"+f.Name+"*\n"+f.Value))
		}
		blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))
	}
	if msg.Select != nil {
		options := make([]*slack.OptionBlockObject, len(msg.Select.Options))
		for i, o := range msg.Select.Options {
			options[i] = slack.NewOptionBlockObject(o.Value, plain(o.Label), nil)
		}
		var placeholder *slack.TextBlockObject
		if msg.Select.Placeholder != "" {
			placeholder = plain(msg.Select.Placeholder)
		}
		menu := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, placeholder, msg.Select.ID, options...)
		blocks = append(blocks, slack.NewActionBlock("", menu))
	}
	for start := 0; start < len(msg.Buttons); start += buttonsPerRow {
		end := min(start+buttonsPerRow, len(msg.Buttons))
		elements := make([]slack.BlockElement, 0, end-start)
		for _, b := range msg.Buttons[start:end] {
			elements = append(elements, slack.NewButtonBlockElement(b.ID, b.ID, plain(b.Label)).WithStyle(buttonStyle(b.Style)))
		}
		blocks = append(blocks, slack.NewActionBlock("", elements...))
	}
	if msg.Footer != "" {
		blocks = append(blocks, slack.NewContextBlock("", mrkdwn(msg.Footer)))
	}
	if len(blocks) == 0 {
		blocks = append(blocks, slack.NewSectionBlock(mrkdwn(" "), nil, nil))
	}
	return blocks
}

// modalView renders a form. Each field becomes an input block whose block
// and action ids are the field id, so submissions map straight back.
func modalView(form platform.Form) slack.ModalViewRequest {
	blocks := make([]slack.Block, len(form.Fields))
	for i, f := range form.Fields {
		input := slack.NewPlainTextInputBlockElement(nil, f.ID).WithMultiline(f.Paragraph)
		blocks[i] = slack.NewInputBlock(f.ID, plain(f.Label), nil, input).WithOptional(!f.Required)
	}
	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		Title:           plain(truncate(form.Title, maxModalTitleLen)),
		Submit:          plain("Submit"),
		Close:           plain("Cancel"),
		CallbackID:      form.ID,
		PrivateMetadata: form.Context,
		Blocks:          slack.Blocks{BlockSet: blocks},
	}
}

func buttonStyle(s platform.ButtonStyle) slack.Style {
	switch s {
	case platform.ButtonPrimary, platform.ButtonSuccess:
		return slack.StylePrimary
	case platform.ButtonDanger:
		return slack.StyleDanger
	default:
		return slack.StyleDefault
	}
}

func withTone(tone platform.Tone, text string) string {
	if emoji, ok := toneEmoji[tone]; ok {
		return emoji + " " + text
	}
	return text
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
