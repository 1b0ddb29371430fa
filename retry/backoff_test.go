package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStrategy(t *testing.T) {
	strategy := DefaultStrategy()

	assert.Equal(t, 0, strategy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, strategy.BaseDelay)
	assert.Equal(t, 30*time.Second, strategy.MaxDelay)
	assert.Equal(t, 2.0, strategy.ExponentialBase)
}

func TestStrategy_CalculateRetryDelay(t *testing.T) {
	strategy := DefaultStrategy()

	tests := []struct {
		name          string
		attemptNumber int
		expectedDelay time.Duration
	}{
		{"negative attempt - base delay", -1, 500 * time.Millisecond},
		{"zero attempt - base delay", 0, 500 * time.Millisecond},
		{"first attempt - doubled", 1, time.Second},
		{"second attempt", 2, 2 * time.Second},
		{"fifth attempt", 5, 16 * time.Second},
		{"sixth attempt - capped", 6, 30 * time.Second},
		{"large attempt - still capped", 100, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedDelay, strategy.CalculateRetryDelay(tt.attemptNumber))
		})
	}
}

func TestStrategy_IsRetryable(t *testing.T) {
	unlimited := DefaultStrategy()
	assert.True(t, unlimited.IsRetryable(0))
	assert.True(t, unlimited.IsRetryable(1000))

	limited := Strategy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2}
	assert.True(t, limited.IsRetryable(0))
	assert.True(t, limited.IsRetryable(2))
	assert.False(t, limited.IsRetryable(3))
	assert.False(t, limited.IsRetryable(4))
}

func TestStrategy_Wait(t *testing.T) {
	strategy := Strategy{BaseDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond, ExponentialBase: 2}

	start := time.Now()
	assert.NoError(t, strategy.Wait(context.Background(), 0))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestStrategy_Wait_Canceled(t *testing.T) {
	strategy := Strategy{BaseDelay: time.Hour, MaxDelay: time.Hour, ExponentialBase: 2}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := strategy.Wait(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
