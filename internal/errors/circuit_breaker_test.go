package errors

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Now()
	var changes []string
	cb := NewCircuitBreaker("price", BreakerSettings{
		MinRequests:   2,
		OpenTimeout:   time.Minute,
		ProbeRequests: 1,
		OnStateChange: func(_ string, from, to BreakerState) {
			changes = append(changes, from.String()+"->"+to.String())
		},
	})
	cb.now = func() time.Time { return now }

	failing := func() error { return stderrors.New("down") }
	assert.Error(t, cb.Call(failing))
	assert.Error(t, cb.Call(failing))
	assert.Equal(t, BreakerOpen, cb.State())

	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, BreakerHalfOpen, cb.State())
	assert.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, BreakerClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, changes)
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("swap", BreakerSettings{MinRequests: 1, OpenTimeout: time.Second})
	cb.now = func() time.Time { return now }

	require.Error(t, cb.Call(func() error { return stderrors.New("down") }))
	now = now.Add(time.Second)
	require.Error(t, cb.Call(func() error { return stderrors.New("still down") }))

	assert.Equal(t, BreakerOpen, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreakerLimitsConcurrentProbes(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("quote", BreakerSettings{MinRequests: 1, OpenTimeout: time.Second, ProbeRequests: 1})
	cb.now = func() time.Time { return now }

	require.Error(t, cb.Call(func() error { return stderrors.New("down") }))
	now = now.Add(time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Call(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrTooManyProbes)
	close(release)
	wg.Wait()

	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	cb := NewCircuitBreaker("quote", BreakerSettings{
		MinRequests: 1,
		IsFailure:   func(err error) bool { return !stderrors.Is(err, ErrValidation) },
	})

	err := cb.Call(func() error { return NewValidationError("bad amount") })
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, BreakerClosed, cb.State())
}
