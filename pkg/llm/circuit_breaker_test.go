package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Hour})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		ok, _ := cb.Allow()
		assert.True(t, ok, "below threshold the circuit stays closed")
	}

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	ok, err := cb.Allow()
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour})

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State(), "success must clear the failure streak")
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: 10 * time.Millisecond})

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	ok, _ := cb.Allow()
	assert.True(t, ok, "reset window elapsed: one probe admitted")
	assert.Equal(t, CircuitHalfOpen, cb.State())

	ok, _ = cb.Allow()
	assert.False(t, ok, "only one probe at a time")

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: 10 * time.Millisecond})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	_, _ = cb.Allow()
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}
