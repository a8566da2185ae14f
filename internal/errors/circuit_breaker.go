package errors

import (
	"errors"
	"sync"
	"time"
)

// Defaults for zero BreakerSettings fields.
const (
	DefaultFailureRatio  = 0.5
	DefaultMinRequests   = 10
	DefaultOpenTimeout   = 30 * time.Second
	DefaultProbeRequests = 3
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyProbes rejects calls while the half-open probes are still running.
	ErrTooManyProbes = errors.New("circuit breaker is probing")
)

type BreakerSettings struct {
	// FailureRatio of failed calls, among at least MinRequests, that opens the breaker.
	FailureRatio float64
	MinRequests  int
	OpenTimeout  time.Duration
	// ProbeRequests successful half-open calls close the breaker again.
	ProbeRequests int
	// IsFailure decides which errors count against the breaker; nil counts every error.
	IsFailure func(error) bool
	// OnStateChange runs outside the breaker's lock.
	OnStateChange func(name string, from, to BreakerState)
}

// CircuitBreaker stops calling a failing dependency for OpenTimeout, then lets
// a bounded number of probes through.
type CircuitBreaker struct {
	name     string
	settings BreakerSettings
	now      func() time.Time

	mu       sync.Mutex
	state    BreakerState
	openedAt time.Time
	calls    int
	failures int
	// inFlight counts half-open probes not yet finished.
	inFlight int
	probesOK int
}

func NewCircuitBreaker(name string, settings BreakerSettings) *CircuitBreaker {
	if settings.FailureRatio <= 0 {
		settings.FailureRatio = DefaultFailureRatio
	}
	if settings.MinRequests <= 0 {
		settings.MinRequests = DefaultMinRequests
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = DefaultOpenTimeout
	}
	if settings.ProbeRequests <= 0 {
		settings.ProbeRequests = DefaultProbeRequests
	}

	return &CircuitBreaker{name: name, settings: settings, now: time.Now}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentLocked()
}

// Call runs fn unless the breaker rejects it. fn's error is returned unchanged.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}

	probe, err := cb.admit()
	if err != nil {
		return err
	}

	callErr := fn()
	cb.settle(probe, callErr != nil && cb.isFailure(callErr))
	return callErr
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	state := cb.currentLocked()
	if state != from {
		cb.setLocked(state)
	}

	switch state {
	case BreakerOpen:
		err = ErrCircuitOpen
	case BreakerHalfOpen:
		if cb.inFlight+cb.probesOK >= cb.settings.ProbeRequests {
			err = ErrTooManyProbes
		} else {
			cb.inFlight++
			probe = true
		}
	}
	cb.mu.Unlock()

	cb.notify(from, state)
	return probe, err
}

func (cb *CircuitBreaker) settle(probe, failed bool) {
	cb.mu.Lock()
	from := cb.state

	if probe {
		cb.inFlight--
	}
	switch {
	case cb.state == BreakerHalfOpen && failed:
		cb.openLocked()
	case cb.state == BreakerHalfOpen && probe:
		cb.probesOK++
		if cb.probesOK >= cb.settings.ProbeRequests {
			cb.setLocked(BreakerClosed)
		}
	case cb.state == BreakerClosed:
		cb.calls++
		if failed {
			cb.failures++
		}
		if cb.calls >= cb.settings.MinRequests &&
			float64(cb.failures)/float64(cb.calls) >= cb.settings.FailureRatio {
			cb.openLocked()
		}
	}

	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// currentLocked reports the state, treating an expired open breaker as half-open.
func (cb *CircuitBreaker) currentLocked() BreakerState {
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.settings.OpenTimeout {
		return BreakerHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) openLocked() {
	cb.setLocked(BreakerOpen)
	cb.openedAt = cb.now()
}

func (cb *CircuitBreaker) setLocked(state BreakerState) {
	cb.state = state
	cb.calls, cb.failures, cb.probesOK = 0, 0, 0
}

func (cb *CircuitBreaker) isFailure(err error) bool {
	if cb.settings.IsFailure == nil {
		return true
	}
	return cb.settings.IsFailure(err)
}

func (cb *CircuitBreaker) notify(from, to BreakerState) {
	if from != to && cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.name, from, to)
	}
}
