package bot

import (
	"log/slog"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/bot/handlers"
	"github.com/Proton-105/raybot/internal/bot/keyboard"
)

// Router dispatches commands, menu buttons and callbacks. Middlewares must be
// added before any route: each route is wrapped once, when it is registered.
type Router struct {
	mu          sync.RWMutex
	middlewares []handlers.Middleware
	commands    map[string]handlers.Handler
	callbacks   map[string]handlers.Handler
	aliases     map[string]string
	fallback    handlers.Handler
	routed      bool

	log *slog.Logger
}

func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:  make(map[string]handlers.Handler),
		callbacks: make(map[string]handlers.Handler),
		aliases:   make(map[string]string),
		log:       log,
	}
}

// Use appends a middleware; the first one added runs outermost.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.routed {
		panic("bot: middlewares must be added before routes")
	}
	r.middlewares = append(r.middlewares, mw)
}

// RegisterCommand registers a handler for a command such as "/swap". Matching is case-insensitive.
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(cmd)] = r.wrap(h)
}

// RegisterCallback registers a handler for the action part of callback data.
func (r *Router) RegisterCallback(action string, h handlers.CallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[action] = r.wrap(handlers.Handler(h))
}

// RegisterAlias makes a plain text message, e.g. a reply keyboard label, behave
// as the given command line.
func (r *Router) RegisterAlias(text, commandLine string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[text] = commandLine
}

// SetDefault sets the handler for text that is not a known command.
func (r *Router) SetDefault(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = r.wrap(h)
}

// wrap applies the chain to h. Callers hold r.mu.
func (r *Router) wrap(h handlers.Handler) handlers.Handler {
	r.routed = true
	if h == nil {
		return nil
	}
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	return h
}

// Route is the telebot endpoint for text and callback updates.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}
	if cb := c.Callback(); cb != nil {
		return r.routeCallback(c, cb.Data)
	}
	return r.routeMessage(c)
}

func (r *Router) routeCallback(c telebot.Context, data string) error {
	action, _, err := keyboard.DecodeCallback(strings.TrimSpace(data))
	if err != nil {
		r.log.Info("empty callback data")
		return c.Respond()
	}

	r.mu.RLock()
	h := r.callbacks[action]
	r.mu.RUnlock()

	if h == nil {
		r.log.Info("no callback handler found", slog.String("data", data))
		return c.Respond()
	}
	return h(c)
}

func (r *Router) routeMessage(c telebot.Context) error {
	text := strings.TrimSpace(c.Text())

	r.mu.RLock()
	if line, ok := r.aliases[text]; ok {
		text = line
	}
	fallback := r.fallback
	r.mu.RUnlock()

	if name, args, ok := parseCommand(text); ok {
		r.mu.RLock()
		h := r.commands[name]
		r.mu.RUnlock()

		if h != nil {
			handlers.SetArgs(c, args)
			return h(c)
		}
	}

	if fallback == nil {
		return nil
	}
	return fallback(c)
}

// parseCommand splits "/Swap@raybot 1 sol usdc" into "/swap" and its arguments.
func parseCommand(text string) (name string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name, _, _ = strings.Cut(fields[0], "@")
	return strings.ToLower(name), fields[1:], true
}
