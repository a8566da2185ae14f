// Package metrics exposes the bot's Prometheus instruments.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_session_transitions_total",
			Help: "Total number of swap session state transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	swapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swaps_total",
			Help: "Swap executions by outcome and failing stage",
		},
		[]string{"outcome", "stage"},
	)
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Native transfers by outcome",
		},
		[]string{"outcome"},
	)
	upstreamDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Latency of calls to external APIs",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"api", "status"},
	)
	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"command"},
	)
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per upstream (0 closed, 1 open, 2 half open)",
		},
		[]string{"name"},
	)
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swap_sessions_active",
			Help: "Current number of tracked swap sessions",
		},
	)
	sessionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swap_sessions_by_state",
			Help: "Number of swap sessions per state",
		},
		[]string{"state"},
	)
)

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	command = orUnknown(command)
	botCommandsTotal.WithLabelValues(command, orUnknown(status)).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordStateTransition tracks swap session FSM transitions.
func RecordStateTransition(from, to string) {
	stateTransitionsTotal.WithLabelValues(orUnknown(from), orUnknown(to)).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	errorsTotal.WithLabelValues(orUnknown(code), orUnknown(severity)).Inc()
}

// RecordSwap counts a finished swap. stage is empty on success.
func RecordSwap(outcome, stage string) {
	if stage == "" {
		stage = "none"
	}
	swapsTotal.WithLabelValues(orUnknown(outcome), stage).Inc()
}

func RecordTransfer(outcome string) {
	transfersTotal.WithLabelValues(orUnknown(outcome)).Inc()
}

// ObserveUpstream records the latency of one external call.
func ObserveUpstream(api string, err error, started time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	upstreamDurationSeconds.WithLabelValues(orUnknown(api), status).Observe(time.Since(started).Seconds())
}

// SetBreakerState publishes a circuit breaker's state as a number.
func SetBreakerState(name string, state int) {
	circuitBreakerState.WithLabelValues(orUnknown(name)).Set(float64(state))
}

func RecordRateLimited(command string) {
	rateLimitedTotal.WithLabelValues(orUnknown(command)).Inc()
}

// StateCounter reports how many sessions are in each state.
type StateCounter func(ctx context.Context) (map[string]int, error)

// StateCollector periodically gathers session state counts and emits gauge metrics.
type StateCollector struct {
	count    StateCounter
	tracked  []string
	interval time.Duration
}

// NewStateCollector builds a collector; tracked states are always emitted, even at zero.
func NewStateCollector(count StateCounter, tracked []string, interval time.Duration) *StateCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &StateCollector{count: count, tracked: tracked, interval: interval}
}

// Run polls until ctx is cancelled.
func (c *StateCollector) Run(ctx context.Context) {
	if c == nil || c.count == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		_ = c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *StateCollector) collect(ctx context.Context) error {
	counts, err := c.count(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	activeSessions.Set(float64(total))

	sessionsByState.Reset()
	for _, label := range c.tracked {
		sessionsByState.WithLabelValues(label).Set(float64(counts[label]))
	}
	for label, n := range counts {
		sessionsByState.WithLabelValues(orUnknown(label)).Set(float64(n))
	}

	return nil
}
