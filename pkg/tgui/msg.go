package tgui

import (
	"context"
	"strings"

	kit "gatebot/internal/transport"
)

// Message is a rendered UI payload: text + send options.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Send sends the Message via the provided adapter.
func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	if m.Opt == nil {
		m.Opt = &kit.SendOptions{}
	}
	return ad.SendText(ctx, to, m.Text, m.Opt)
}

// Builder composes HTML messages line by line.
// Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	disablePreview bool
	buttons        [][]kit.Button
	lines          []string
}

func New() *Builder {
	return &Builder{disablePreview: true}
}

// Line adds a single escaped line.
func (b *Builder) Line(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		b.lines = append(b.lines, "")
		return b
	}
	b.lines = append(b.lines, Esc(s).String())
	return b
}

// HTML appends already-safe markup.
func (b *Builder) HTML(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

// Blank inserts an empty line.
func (b *Builder) Blank() *Builder { return b.Line("") }

// Row appends one row of inline buttons.
func (b *Builder) Row(btn ...kit.Button) *Builder {
	if len(btn) == 0 {
		return b
	}
	b.buttons = append(b.buttons, append([]kit.Button(nil), btn...))
	return b
}

// Build produces a ready-to-send Message.
func (b *Builder) Build() Message {
	text := strings.Trim(strings.Join(b.lines, "\n"), "\n")
	return Message{
		Text: text,
		Opt: &kit.SendOptions{
			ParseMode:      "HTML",
			DisablePreview: b.disablePreview,
			Buttons:        b.buttons,
		},
	}
}
