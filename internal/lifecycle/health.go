package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/Proton-105/raybot/internal/health"
)

var errNotReady = errors.New("service is not ready")

// Probes serves liveness and readiness. Readiness is false until MarkReady and
// again once shutdown begins.
type Probes struct {
	checker *health.Checker
	log     *slog.Logger
	ready   atomic.Bool
}

func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{checker: checker, log: log}
}

func (p *Probes) MarkReady()    { p.ready.Store(true) }
func (p *Probes) MarkNotReady() { p.ready.Store(false) }

// Liveness reports whether the process is running at all.
func (p *Probes) Liveness(context.Context) error {
	return nil
}

// Readiness fails while starting or draining, or when any dependency check fails.
func (p *Probes) Readiness(ctx context.Context) error {
	if !p.ready.Load() {
		return errNotReady
	}
	if p.checker == nil {
		return nil
	}
	if statuses := p.checker.Check(ctx); !health.Healthy(statuses) {
		return errors.New("dependency check failed")
	}
	return nil
}

// LivenessHandler serves /livez.
func (p *Probes) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.write(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// ReadinessHandler serves /readyz.
func (p *Probes) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := p.Readiness(r.Context()); err != nil {
			p.write(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		p.write(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// HealthHandler serves /healthz with the status of every dependency.
func (p *Probes) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var statuses []health.Status
		if p.checker != nil {
			statuses = p.checker.Check(r.Context())
		}

		code := http.StatusOK
		if !health.Healthy(statuses) {
			code = http.StatusServiceUnavailable
		}
		p.write(w, code, map[string]any{
			"ready":      p.ready.Load(),
			"components": statuses,
		})
	})
}

func (p *Probes) write(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		p.log.Debug("failed to write probe response", slog.Any("error", err))
	}
}
