package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2, Timeout: time.Second, ResetAfter: time.Minute})
	boom := errors.New("connection reset")

	calls := 0
	fail := func(ctx context.Context) error {
		calls++
		return boom
	}

	assert.ErrorIs(t, cb.Call(context.Background(), fail), boom)
	assert.ErrorIs(t, cb.Call(context.Background(), fail), boom)

	err := cb.Call(context.Background(), fail)
	require.Error(t, err)
	assert.True(t, errors.Is(err, commonerrors.ErrCircuitOpen))
	assert.Equal(t, 2, calls, "open circuit must not invoke the call")
}

func TestCircuitBreaker_IgnoresClientErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, Timeout: time.Second, ResetAfter: time.Minute})

	for i := 0; i < 3; i++ {
		err := cb.Call(context.Background(), func(ctx context.Context) error {
			return commonerrors.ErrMessageNotFound
		})
		assert.ErrorIs(t, err, commonerrors.ErrMessageNotFound)
	}
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreaker_ResetsAfterWindow(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, Timeout: time.Second, ResetAfter: 10 * time.Millisecond})

	_ = cb.Call(context.Background(), func(ctx context.Context) error { return commonerrors.ErrStorageUnavailable })
	assert.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, cb.IsOpen())
	assert.NoError(t, cb.Call(context.Background(), func(ctx context.Context) error { return nil }))
}
