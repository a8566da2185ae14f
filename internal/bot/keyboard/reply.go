package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/i18n"
)

// Reply keyboard entries and the commands they stand for.
var menuCommands = []struct {
	key     string
	command string
}{
	{"buttons.price", "/price SOL"},
	{"buttons.balance", "/balance"},
	{"buttons.status", "/status"},
	{"buttons.history", "/history"},
	{"buttons.help", "/help"},
}

// MainMenu builds a localized reply keyboard for the bot main menu.
func MainMenu(t i18n.Translator) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{ResizeKeyboard: true}

	btns := make([]telebot.Btn, len(menuCommands))
	for i, entry := range menuCommands {
		btns[i] = markup.Text(translated(t, entry.key, entry.key))
	}

	markup.Reply(
		markup.Row(btns[0], btns[1]),
		markup.Row(btns[2], btns[3]),
		markup.Row(btns[4]),
	)

	return markup
}

// MenuCommands maps each localized menu label to the command it triggers.
func MenuCommands(t i18n.Translator) map[string]string {
	out := make(map[string]string, len(menuCommands))
	for _, entry := range menuCommands {
		out[translated(t, entry.key, entry.key)] = entry.command
	}
	return out
}
