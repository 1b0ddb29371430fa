package chatrelay

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breaker wrapped around broker publishes.
type BreakerSettings struct {
	// MaxRequests is the number of trial publishes allowed while half-open.
	MaxRequests uint32

	// Interval is the closed-state counting window.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerSettings returns settings suitable for a single broker connection.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         5,
		Interval:            10 * time.Second,
		Timeout:             5 * time.Second,
		ConsecutiveFailures: 10,
	}
}

// BreakerGateway decorates a BrokerGateway so that publishes fail fast
// while the broker is unreachable. Resource operations pass through.
type BreakerGateway struct {
	BrokerGateway

	cb     *gobreaker.CircuitBreaker[struct{}]
	logger Logger
}

// NewBreakerGateway wraps inner with a circuit breaker.
func NewBreakerGateway(inner BrokerGateway, settings BreakerSettings, logger Logger) (*BreakerGateway, error) {
	if inner == nil {
		return nil, NewError(ErrCodeConfiguration, "BrokerGateway is required")
	}
	if logger == nil {
		logger = &NoopLogger{}
	}

	st := gobreaker.Settings{
		Name:        "broker-publish",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return settings.ConsecutiveFailures > 0 && c.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about broker health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	}

	return &BreakerGateway{
		BrokerGateway: inner,
		cb:            gobreaker.NewCircuitBreaker[struct{}](st),
		logger:        logger,
	}, nil
}

// Publish forwards to the wrapped gateway unless the breaker is open.
func (b *BreakerGateway) Publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.BrokerGateway.Publish(ctx, exchange, routingKey, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewErrorWithCause(ErrCodeDelivery, "broker circuit open", err)
	}
	return err
}

// State returns the breaker state, for health reporting.
func (b *BreakerGateway) State() string {
	return b.cb.State().String()
}
