package keyboard_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/raybot/internal/bot/keyboard"
)

type mockTranslator struct {
	translations map[string]string
}

func (m *mockTranslator) T(key string) string {
	if val, ok := m.translations[key]; ok {
		return val
	}
	return key
}

func (m *mockTranslator) F(key string, args ...any) string {
	return fmt.Sprintf(m.T(key), args...)
}

func (m *mockTranslator) Lang() string { return "en" }

func TestEncodeCallback(t *testing.T) {
	tests := []struct {
		name    string
		unique  string
		data    string
		want    string
		wantErr bool
	}{
		{name: "with data", unique: "history", data: "2", want: "history:2"},
		{name: "without data", unique: "confirm_swap", want: "confirm_swap"},
		{name: "exceeds limit", unique: strings.Repeat("x", keyboard.CallbackDataLimitBytes+1), wantErr: true},
		{name: "separator in action", unique: "history:x", wantErr: true},
		{name: "empty action", unique: "", data: "2", wantErr: true},
		{name: "data pushes over limit", unique: "history", data: strings.Repeat("9", keyboard.CallbackDataLimitBytes), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keyboard.EncodeCallback(tt.unique, tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCallback(t *testing.T) {
	unique, data, err := keyboard.DecodeCallback("history:3")
	require.NoError(t, err)
	assert.Equal(t, "history", unique)
	assert.Equal(t, "3", data)

	unique, data, err = keyboard.DecodeCallback("cancel_swap")
	require.NoError(t, err)
	assert.Equal(t, "cancel_swap", unique)
	assert.Empty(t, data)

	unique, data, err = keyboard.DecodeCallback("a:b:c")
	require.NoError(t, err)
	assert.Equal(t, "a", unique)
	assert.Equal(t, "b:c", data)

	_, _, err = keyboard.DecodeCallback("")
	assert.ErrorIs(t, err, keyboard.ErrEmptyCallback)
}

func TestInlineKeyboardBuilder(t *testing.T) {
	markup, err := keyboard.NewInlineKeyboard().
		AddRow(
			keyboard.InlineButton{Text: "Prev", Unique: "nav", Data: "1"},
			keyboard.InlineButton{Text: "Next", Unique: "nav", Data: "2"},
		).
		AddRow().
		AddRow(keyboard.InlineButton{Text: "Confirm", Unique: "confirm"}).
		Build()
	require.NoError(t, err)

	require.Len(t, markup.InlineKeyboard, 2)
	assert.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, "nav:2", markup.InlineKeyboard[0][1].Data)
	assert.Equal(t, "confirm", markup.InlineKeyboard[1][0].Data)
	assert.Empty(t, markup.InlineKeyboard[1][0].Unique)

	_, err = keyboard.NewInlineKeyboard().
		AddRow(keyboard.InlineButton{Text: "Too big", Unique: "overflow", Data: strings.Repeat("x", keyboard.CallbackDataLimitBytes)}).
		Build()
	assert.Error(t, err)
}

func TestConfirmSwap(t *testing.T) {
	markup, err := keyboard.ConfirmSwap(&mockTranslator{translations: map[string]string{
		"buttons.confirm": "Confirm",
		"buttons.cancel":  "Cancel",
	}})
	require.NoError(t, err)

	require.Len(t, markup.InlineKeyboard, 1)
	row := markup.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, "Confirm", row[0].Text)
	assert.Equal(t, keyboard.CallbackConfirmSwap, row[0].Data)
	assert.Equal(t, "Cancel", row[1].Text)
	assert.Equal(t, keyboard.CallbackCancelSwap, row[1].Data)
}

func TestConfirmSwapWithoutTranslator(t *testing.T) {
	markup, err := keyboard.ConfirmSwap(nil)
	require.NoError(t, err)
	assert.Equal(t, "Confirm", markup.InlineKeyboard[0][0].Text)
}

func TestPaginationButtons(t *testing.T) {
	translator := &mockTranslator{translations: map[string]string{
		"pagination.prev": "◀️ Prev",
		"pagination.next": "Next ▶️",
		"pagination.page": "Page %d/%d",
	}}

	tests := []struct {
		name      string
		page      int
		total     int
		wantTexts []string
		wantData  []string
	}{
		{"first page", 1, 5, []string{"Page 1/5", "Next ▶️"}, []string{"1", "2"}},
		{"middle page", 3, 5, []string{"◀️ Prev", "Page 3/5", "Next ▶️"}, []string{"2", "3", "4"}},
		{"last page", 5, 5, []string{"◀️ Prev", "Page 5/5"}, []string{"4", "5"}},
		{"out of range", 9, 2, []string{"◀️ Prev", "Page 2/2"}, []string{"1", "2"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buttons := keyboard.PaginationButtons(translator, keyboard.CallbackHistory, keyboard.NewPage(tc.page, 1, tc.total))
			require.Len(t, buttons, len(tc.wantTexts))
			for i := range tc.wantTexts {
				assert.Equal(t, tc.wantTexts[i], buttons[i].Text)
				assert.Equal(t, keyboard.CallbackHistory, buttons[i].Unique)
				assert.Equal(t, tc.wantData[i], buttons[i].Data)
			}
		})
	}
}

func TestPaginationFallbackLabel(t *testing.T) {
	buttons := keyboard.PaginationButtons(nil, keyboard.CallbackHistory, keyboard.NewPage(2, 5, 15))
	require.Len(t, buttons, 3)
	assert.Equal(t, "2/3", buttons[1].Text)
}

func TestHistorySinglePage(t *testing.T) {
	markup, err := keyboard.History(nil, keyboard.NewPage(1, 5, 5))
	require.NoError(t, err)
	assert.Nil(t, markup)

	markup, err = keyboard.History(nil, keyboard.NewPage(1, 5, 6))
	require.NoError(t, err)
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Equal(t, "history:2", markup.InlineKeyboard[0][1].Data)
}

func TestPage(t *testing.T) {
	tests := []struct {
		name                   string
		requested, size, total int
		wantNumber, wantCount  int
		wantOffset             int
	}{
		{"first", 1, 5, 12, 1, 3, 0},
		{"last partial", 3, 5, 12, 3, 3, 10},
		{"past the end", 9, 5, 12, 3, 3, 10},
		{"below one", 0, 5, 12, 1, 3, 0},
		{"empty list", 2, 5, 0, 1, 1, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := keyboard.NewPage(tc.requested, tc.size, tc.total)
			assert.Equal(t, tc.wantNumber, p.Number)
			assert.Equal(t, tc.wantCount, p.Count())
			assert.Equal(t, tc.wantOffset, p.Offset())
		})
	}
}

func TestPageFromCallback(t *testing.T) {
	assert.Equal(t, 3, keyboard.PageFromCallback("history:3"))
	assert.Equal(t, 1, keyboard.PageFromCallback("history"))
	assert.Equal(t, 1, keyboard.PageFromCallback("history:-2"))
	assert.Equal(t, 1, keyboard.PageFromCallback(""))
}

func TestMainMenu(t *testing.T) {
	translator := &mockTranslator{translations: map[string]string{
		"buttons.price":   "Price",
		"buttons.balance": "Balance",
		"buttons.status":  "Status",
		"buttons.history": "History",
		"buttons.help":    "Help",
	}}

	markup := keyboard.MainMenu(translator)
	assert.True(t, markup.ResizeKeyboard)

	expected := [][]string{{"Price", "Balance"}, {"Status", "History"}, {"Help"}}
	require.Len(t, markup.ReplyKeyboard, len(expected))
	for i, row := range expected {
		require.Len(t, markup.ReplyKeyboard[i], len(row))
		for j, text := range row {
			assert.Equal(t, text, markup.ReplyKeyboard[i][j].Text)
		}
	}

	commands := keyboard.MenuCommands(translator)
	assert.Equal(t, "/price SOL", commands["Price"])
	assert.Equal(t, "/history", commands["History"])
}
