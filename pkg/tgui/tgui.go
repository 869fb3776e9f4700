package tgui

import (
	kit "gatebot/internal/transport"

	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
// It stores rows as tele.Row ([]tele.Btn) and applies them via ReplyMarkup.Inline().
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a new row (buttons) to the inline keyboard.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data (we do NOT encode it).
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// Markup converts transport buttons into a Telegram inline keyboard.
// Returns nil when there are no buttons.
func Markup(rows [][]kit.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := NewInline()
	for _, r := range rows {
		if len(r) == 0 {
			continue
		}
		btns := make([]tele.Btn, 0, len(r))
		for _, b := range r {
			btns = append(btns, Btn(b.Text, b.Data))
		}
		kb.Row(btns...)
	}
	if len(kb.rows) == 0 {
		return nil
	}
	return kb.Markup()
}
