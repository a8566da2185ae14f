package handlers

import (
	"io"
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentMessage struct {
	text string
	opts []any
}

// fakeContext implements the parts of telebot.Context the handlers use.
// Anything else panics through the nil embedded interface.
type fakeContext struct {
	telebot.Context

	mu        sync.Mutex
	sender    *telebot.User
	chat      *telebot.Chat
	text      string
	callback  *telebot.Callback
	store     map[string]any
	sent      []sentMessage
	edits     []sentMessage
	responded int
}

func newMessage(userID int64, text string) *fakeContext {
	return &fakeContext{
		sender: &telebot.User{ID: userID},
		chat:   &telebot.Chat{ID: userID, Type: telebot.ChatPrivate},
		text:   text,
	}
}

func newCallback(userID int64, data string) *fakeContext {
	c := newMessage(userID, "")
	c.callback = &telebot.Callback{ID: "cb", Data: data}
	return c
}

func (f *fakeContext) Sender() *telebot.User       { return f.sender }
func (f *fakeContext) Chat() *telebot.Chat         { return f.chat }
func (f *fakeContext) Text() string                { return f.text }
func (f *fakeContext) Callback() *telebot.Callback { return f.callback }
func (f *fakeContext) Message() *telebot.Message   { return nil }
func (f *fakeContext) Update() telebot.Update      { return telebot.Update{} }

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, _ := what.(string)
	f.sent = append(f.sent, sentMessage{text: text, opts: opts})
	return nil
}

func (f *fakeContext) Edit(what interface{}, opts ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, _ := what.(string)
	f.edits = append(f.edits, sentMessage{text: text, opts: opts})
	return nil
}

func (f *fakeContext) Respond(...*telebot.CallbackResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responded++
	return nil
}

func (f *fakeContext) Get(key string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store[key]
}

func (f *fakeContext) Set(key string, val interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.store == nil {
		f.store = make(map[string]any)
	}
	f.store[key] = val
}

func (f *fakeContext) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

func (m sentMessage) markup() *telebot.ReplyMarkup {
	for _, opt := range m.opts {
		if rm, ok := opt.(*telebot.ReplyMarkup); ok {
			return rm
		}
	}
	return nil
}

func (m sentMessage) html() bool {
	for _, opt := range m.opts {
		if opt == telebot.ModeHTML {
			return true
		}
	}
	return false
}
