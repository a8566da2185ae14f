package lifecycle

import (
	"context"
	"time"
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
	// Timeout bounds this hook; zero means the Execute deadline only.
	Timeout time.Duration
}

// CloserHook adapts a Close method, e.g. of a redis client or sql.DB.
func CloserHook(name string, close func() error) Hook {
	return Hook{Name: name, Fn: func(context.Context) error { return close() }}
}
