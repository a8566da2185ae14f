package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/internal/idempotency"
	"github.com/Proton-105/raybot/internal/ratelimit"
	"github.com/Proton-105/raybot/pkg/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeContext struct {
	telebot.Context

	updateID int
	sender   *telebot.User
	text     string
	callback *telebot.Callback
	store    map[string]interface{}

	responded int
}

func (f *fakeContext) Sender() *telebot.User       { return f.sender }
func (f *fakeContext) Text() string                { return f.text }
func (f *fakeContext) Callback() *telebot.Callback { return f.callback }
func (f *fakeContext) Message() *telebot.Message   { return nil }
func (f *fakeContext) Update() telebot.Update      { return telebot.Update{ID: f.updateID} }
func (f *fakeContext) Get(key string) interface{}  { return f.store[key] }
func (f *fakeContext) Respond(...*telebot.CallbackResponse) error {
	f.responded++
	return nil
}
func (f *fakeContext) Set(key string, v interface{}) {
	if f.store == nil {
		f.store = make(map[string]interface{})
	}
	f.store[key] = v
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		name string
		ctx  *fakeContext
		want string
	}{
		{"command", &fakeContext{text: "/Swap 1 SOL USDC"}, "/swap"},
		{"bot suffix", &fakeContext{text: "/price@raybot SOL"}, "/price"},
		{"free text", &fakeContext{text: "hello"}, "text"},
		{"empty", &fakeContext{}, "text"},
		{"callback", &fakeContext{callback: &telebot.Callback{Data: "history:2"}}, "history"},
		{"bad callback", &fakeContext{callback: &telebot.Callback{Data: ""}}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CommandName(tt.ctx))
		})
	}
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Enabled:   true,
		Whitelist: []int64{99},
		Default:   config.RateLimitRule{Limit: 50, Window: time.Minute},
		Rules:     map[string]config.RateLimitRule{"send": {Limit: 1, Window: time.Minute}},
	})
	calls := 0
	h := RateLimit(ratelimit.NewMemoryLimiter(quietLogger()), rules, quietLogger())(func(telebot.Context) error {
		calls++
		return nil
	})

	user := &telebot.User{ID: 1}
	require.NoError(t, h(&fakeContext{sender: user, text: "/send a 1"}))

	err := h(&fakeContext{sender: user, text: "/send a 1"})
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeRateLimit, appErr.Code)
	assert.Contains(t, appErr.UserMessage, "60 seconds")

	require.NoError(t, h(&fakeContext{sender: user, text: "/balance"}))
	for i := 0; i < 3; i++ {
		require.NoError(t, h(&fakeContext{sender: &telebot.User{ID: 99}, text: "/send a 1"}))
	}
	assert.Equal(t, 5, calls)
}

type brokenLimiter struct{}

func (brokenLimiter) Check(context.Context, string, int, time.Duration) (*ratelimit.Result, error) {
	return nil, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{Enabled: true, Default: config.RateLimitRule{Limit: 1}})
	calls := 0
	h := RateLimit(brokenLimiter{}, rules, quietLogger())(func(telebot.Context) error {
		calls++
		return nil
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, h(&fakeContext{sender: &telebot.User{ID: 1}, text: "/price"}))
	}
	assert.Equal(t, 3, calls)

	disabled := RateLimit(brokenLimiter{}, ratelimit.NewRules(config.RateLimitConfig{}), nil)
	next := func(telebot.Context) error { return nil }
	assert.NotNil(t, disabled(next))
}

func TestIdempotencyDropsRedelivery(t *testing.T) {
	manager := idempotency.NewManager(idempotency.NewMemoryStore(), time.Minute, quietLogger())
	calls := 0
	boom := errors.New("boom")
	fail := true
	h := Idempotency(manager, time.Hour, quietLogger())(func(telebot.Context) error {
		calls++
		if fail {
			fail = false
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, h(&fakeContext{updateID: 5}), boom)
	require.NoError(t, h(&fakeContext{updateID: 5}))
	require.NoError(t, h(&fakeContext{updateID: 5}))
	require.NoError(t, h(&fakeContext{callback: &telebot.Callback{ID: "cb-1"}}))
	require.NoError(t, h(&fakeContext{}))

	assert.Equal(t, 4, calls)
}

func TestIdempotencyAnswersDuplicateCallback(t *testing.T) {
	manager := idempotency.NewManager(idempotency.NewMemoryStore(), time.Minute, quietLogger())
	h := Idempotency(manager, time.Hour, quietLogger())(func(telebot.Context) error { return nil })

	first := &fakeContext{updateID: 9, callback: &telebot.Callback{ID: "cb-9"}}
	require.NoError(t, h(first))
	assert.Zero(t, first.responded)

	again := &fakeContext{updateID: 9, callback: &telebot.Callback{ID: "cb-9"}}
	require.NoError(t, h(again))
	assert.Equal(t, 1, again.responded)
}

type unavailableStore struct{}

func (unavailableStore) Lock(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}
func (unavailableStore) Get(context.Context, string) (*idempotency.Record, error) { return nil, nil }
func (unavailableStore) Set(context.Context, string, *idempotency.Record, time.Duration) error {
	return nil
}
func (unavailableStore) ReleaseLock(context.Context, string) error { return nil }

func TestIdempotencyFailsOpenWhenStoreIsDown(t *testing.T) {
	manager := idempotency.NewManager(unavailableStore{}, time.Minute, quietLogger())
	calls := 0
	h := Idempotency(manager, time.Hour, quietLogger())(func(telebot.Context) error {
		calls++
		return nil
	})

	require.NoError(t, h(&fakeContext{updateID: 11}))
	assert.Equal(t, 1, calls)
}

func TestHTTPLoggingRecordsStatus(t *testing.T) {
	h := HTTPLogging(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "no_wallet", outcome(apperrors.NewNoWalletError()))
	assert.Equal(t, "internal_error", outcome(errors.New("boom")))
}
