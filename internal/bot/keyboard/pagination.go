package keyboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Proton-105/raybot/internal/i18n"
)

// Page is one window over a list of Total items, Size at a time. Number is 1-based.
type Page struct {
	Number int
	Size   int
	Total  int
}

// NewPage clamps requested into the valid range for total items.
func NewPage(requested, size, total int) Page {
	p := Page{Number: requested, Size: max(1, size), Total: max(0, total)}
	p.Number = min(max(1, p.Number), p.Count())
	return p
}

// PageFromCallback reads the page number carried by a pagination button,
// defaulting to the first page.
func PageFromCallback(data string) int {
	_, arg, err := DecodeCallback(data)
	if err != nil {
		return 1
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Count is the number of pages, at least one.
func (p Page) Count() int {
	return max(1, (p.Total+p.Size-1)/p.Size)
}

// Offset is the index of the page's first item.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// PaginationButtons returns prev, position and next buttons for action; the
// target page travels as the callback argument.
func PaginationButtons(t i18n.Translator, action string, p Page) []InlineButton {
	count := p.Count()
	buttons := make([]InlineButton, 0, 3)

	if p.Number > 1 {
		buttons = append(buttons, pageButton(translated(t, "pagination.prev", "◀️ Prev"), action, p.Number-1))
	}
	buttons = append(buttons, pageButton(fmt.Sprintf(translated(t, "pagination.page", "%d/%d"), p.Number, count), action, p.Number))
	if p.Number < count {
		buttons = append(buttons, pageButton(translated(t, "pagination.next", "Next ▶️"), action, p.Number+1))
	}

	return buttons
}

func pageButton(text, action string, page int) InlineButton {
	return InlineButton{Text: text, Unique: action, Data: strconv.Itoa(page)}
}

// translated falls back when there is no translator or the key is missing.
func translated(t i18n.Translator, key, fallback string) string {
	if t == nil {
		return fallback
	}

	text := strings.TrimSpace(t.T(key))
	if text == "" || text == key {
		return fallback
	}
	return text
}
