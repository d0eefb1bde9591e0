package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"libtrack/pkg/clock"
)

var errStore = errors.New("store down")

func failing() error { return errStore }
func healthy() error { return nil }

func TestOpensAfterTooManyFailures(t *testing.T) {
	c := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(2, time.Minute, WithClock(c))

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(failing, nil), errStore)
		assert.Equal(t, StateClosed, cb.GetState())
	}
	assert.ErrorIs(t, cb.Execute(failing, nil), errStore)
	assert.Equal(t, StateOpen, cb.GetState())

	calls := 0
	err := cb.Execute(func() error { calls++; return nil }, nil)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
}

func TestFallbackRunsWhileOpen(t *testing.T) {
	c := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(0, time.Minute, WithClock(c))
	_ = cb.Execute(failing, nil)
	assert.Equal(t, StateOpen, cb.GetState())

	fallbackErr := errors.New("served from fallback")
	assert.ErrorIs(t, cb.Execute(healthy, func() error { return fallbackErr }), fallbackErr)
}

func TestHalfOpenProbe(t *testing.T) {
	c := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var transitions []State
	cb := NewCircuitBreaker(0, time.Minute, WithClock(c), OnStateChange(func(_, to State) {
		transitions = append(transitions, to)
	}))

	_ = cb.Execute(failing, nil)
	c.Advance(time.Minute)

	// A failed trial call reopens immediately.
	assert.ErrorIs(t, cb.Execute(failing, nil), errStore)
	assert.Equal(t, StateOpen, cb.GetState())

	c.Advance(time.Minute)
	assert.NoError(t, cb.Execute(healthy, nil))
	assert.Equal(t, StateClosed, cb.GetState())

	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestFailuresOutsideWindowAreForgotten(t *testing.T) {
	c := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(1, time.Minute, WithClock(c), WithWindow(10*time.Second))

	_ = cb.Execute(failing, nil)
	c.Advance(11 * time.Second)
	_ = cb.Execute(failing, nil)

	assert.Equal(t, StateClosed, cb.GetState())
}
