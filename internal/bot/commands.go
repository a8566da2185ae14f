package bot

import "github.com/Proton-105/raybot/internal/bot/keyboard"

// Command constants for Telegram bot commands.
const (
	CommandStart   = "/start"
	CommandHelp    = "/help"
	CommandPrice   = "/price"
	CommandBalance = "/balance"
	CommandSend    = "/send"
	CommandSwap    = "/swap"
	CommandExport  = "/export"
	CommandStatus  = "/status"
	CommandCancel  = "/cancel"
	CommandHistory = "/history"
)

// Callback actions for inline buttons.
const (
	CallbackConfirmSwap = keyboard.CallbackConfirmSwap
	CallbackCancelSwap  = keyboard.CallbackCancelSwap
	CallbackHistory     = keyboard.CallbackHistory
)

// menuDescriptions is the command list registered with Telegram via setMyCommands.
var menuDescriptions = []struct {
	command     string
	description string
}{
	{CommandStart, "Create your wallet"},
	{CommandPrice, "Token price, e.g. /price SOL"},
	{CommandBalance, "Your SOL balance"},
	{CommandSend, "Send SOL: /send <recipient> <amount>"},
	{CommandSwap, "Swap: /swap <amount> <from> <to>"},
	{CommandStatus, "Current swap quote"},
	{CommandCancel, "Discard the current quote"},
	{CommandHistory, "Recent transactions"},
	{CommandExport, "Show your private key"},
	{CommandHelp, "List commands"},
}
