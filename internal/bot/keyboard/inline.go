package keyboard

import (
	telebot "gopkg.in/telebot.v3"
)

// InlineButton is a button definition whose callback data is encoded on Build.
type InlineButton struct {
	Text   string
	Unique string // callback action routed by the bot
	Data   string // optional argument appended after the separator
}

// InlineKeyboardBuilder accumulates rows of InlineButton definitions before rendering telebot markup.
type InlineKeyboardBuilder struct {
	rows [][]InlineButton
}

func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{rows: make([][]InlineButton, 0)}
}

// AddRow appends a row. Empty rows are ignored.
func (b *InlineKeyboardBuilder) AddRow(buttons ...InlineButton) *InlineKeyboardBuilder {
	if len(buttons) == 0 {
		return b
	}

	row := make([]InlineButton, len(buttons))
	copy(row, buttons)
	b.rows = append(b.rows, row)
	return b
}

// Build renders the markup. It fails when any button's callback data exceeds
// the Telegram limit.
func (b *InlineKeyboardBuilder) Build() (*telebot.ReplyMarkup, error) {
	keyboard := make([][]telebot.InlineButton, len(b.rows))
	for i, row := range b.rows {
		keyboard[i] = make([]telebot.InlineButton, len(row))
		for j, btn := range row {
			data, err := EncodeCallback(btn.Unique, btn.Data)
			if err != nil {
				return nil, err
			}
			// Unique stays empty so telebot delivers the raw data to OnCallback.
			keyboard[i][j] = telebot.InlineButton{Text: btn.Text, Data: data}
		}
	}

	return &telebot.ReplyMarkup{InlineKeyboard: keyboard}, nil
}
