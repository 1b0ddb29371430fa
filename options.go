package chatrelay

import (
	"fmt"
	"time"

	"github.com/coregx/chatrelay/retry"
)

// Option is a function that configures a ChannelManager.
//
// Example:
//
//	manager, err := chatrelay.NewChannelManager(
//	    chatrelay.WithBroker(gateway),
//	    chatrelay.WithCache(cache),
//	    chatrelay.WithLocalDelivery(hub),
//	    chatrelay.WithRelayPool(pool),
//	    chatrelay.WithLogger(logger),
//	    chatrelay.WithDrainGrace(10*time.Second), // optional
//	)
type Option func(*ChannelManager) error

// WithBroker sets the broker gateway used to declare, bind, delete and
// consume channel queues.
//
// This is a required option for NewChannelManager.
func WithBroker(broker BrokerGateway) Option {
	return func(m *ChannelManager) error {
		if broker == nil {
			return fmt.Errorf("broker cannot be nil")
		}
		m.broker = broker
		return nil
	}
}

// WithCache sets the fingerprint cache whose per-channel entries are
// cleared on teardown.
//
// This is a required option for NewChannelManager.
func WithCache(cache FingerprintCache) Option {
	return func(m *ChannelManager) error {
		if cache == nil {
			return fmt.Errorf("cache cannot be nil")
		}
		m.cache = cache
		return nil
	}
}

// WithLocalDelivery sets the fan-out target consumer relays forward to.
//
// This is a required option for NewChannelManager.
func WithLocalDelivery(delivery LocalDelivery) Option {
	return func(m *ChannelManager) error {
		if delivery == nil {
			return fmt.Errorf("delivery cannot be nil")
		}
		m.delivery = delivery
		return nil
	}
}

// WithRelayPool sets the worker pool shared by all consumer relays.
// The manager drains it on Shutdown.
//
// This is a required option for NewChannelManager.
func WithRelayPool(pool *WorkerPool) Option {
	return func(m *ChannelManager) error {
		if pool == nil {
			return fmt.Errorf("pool cannot be nil")
		}
		m.pool = pool
		return nil
	}
}

// WithLogger sets the logger instance for the manager and its relays.
// Logger is required and must not be nil.
//
// This is a required option for NewChannelManager.
func WithLogger(logger Logger) Option {
	return func(m *ChannelManager) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		m.logger = logger
		return nil
	}
}

// WithObserver sets the observer notified of channel lifecycle and relay
// events. Optional; defaults to NoOpObserver.
func WithObserver(observer Observer) Option {
	return func(m *ChannelManager) error {
		if observer == nil {
			return fmt.Errorf("observer cannot be nil")
		}
		m.observer = observer
		return nil
	}
}

// WithExchange overrides the exchange channel queues are bound to.
// Optional; defaults to DefaultExchange.
func WithExchange(exchange string) Option {
	return func(m *ChannelManager) error {
		if exchange == "" {
			return fmt.Errorf("exchange cannot be empty")
		}
		m.exchange = exchange
		return nil
	}
}

// WithOperationTimeout bounds each broker and cache call made by the manager.
// Optional; default is 5 seconds.
func WithOperationTimeout(timeout time.Duration) Option {
	return func(m *ChannelManager) error {
		if timeout <= 0 {
			return fmt.Errorf("operation timeout must be > 0")
		}
		m.opTimeout = timeout
		return nil
	}
}

// WithDrainGrace sets how long a stopping relay may spend finishing
// in-flight forwards before it is force-stopped.
// Optional; default is 60 seconds.
func WithDrainGrace(grace time.Duration) Option {
	return func(m *ChannelManager) error {
		if grace <= 0 {
			return fmt.Errorf("drain grace must be > 0")
		}
		m.drainGrace = grace
		return nil
	}
}

// WithResubscribeStrategy sets the backoff a relay uses to resubscribe after
// its broker stream was lost. Optional; defaults to retry.DefaultStrategy().
func WithResubscribeStrategy(strategy retry.Strategy) Option {
	return func(m *ChannelManager) error {
		m.strategy = strategy
		return nil
	}
}
