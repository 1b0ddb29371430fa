package chatrelay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coregx/chatrelay/retry"
	"golang.org/x/sync/errgroup"
)

const (
	defaultOperationTimeout = 5 * time.Second
	defaultDrainGrace       = 60 * time.Second
)

// ChannelState is the lifecycle state of a channel on this instance.
type ChannelState int

// Channel states. A channel is UNINITIALIZED until its queue is declared and
// bound and its relay runs; TEARDOWN is transient while resources are released.
const (
	StateUninitialized ChannelState = iota
	StateActive
	StateTeardown
)

// String returns the state name.
func (s ChannelState) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateTeardown:
		return "TEARDOWN"
	default:
		return "UNINITIALIZED"
	}
}

// Channel is a read-only snapshot of a channel handle.
type Channel struct {
	ID          string
	Queue       string
	RoutingKey  string
	State       ChannelState
	ActivatedAt time.Time
}

type managedChannel struct {
	info  Channel
	relay *ConsumerRelay
}

// ChannelManager owns the broker resources of every channel on this instance:
// the durable queue, its binding to the exchange and the consumer relay.
//
// Key operations:
//   - EnsureChannel: idempotent activation, safe to race from many goroutines
//   - TeardownChannel: stop the relay, delete the queue, clear cached state
//   - Shutdown: stop every relay without deleting queues
//
// Operations on the same channel are serialized by a per-channel lock;
// different channels proceed in parallel.
//
// Thread safety: Safe for concurrent use.
type ChannelManager struct {
	broker   BrokerGateway
	cache    FingerprintCache
	delivery LocalDelivery
	pool     *WorkerPool
	logger   Logger
	observer Observer

	exchange   string
	opTimeout  time.Duration
	drainGrace time.Duration
	strategy   retry.Strategy

	locks    *keyedMutex
	mu       sync.RWMutex
	channels map[string]*managedChannel
	closed   bool
}

// NewChannelManager creates a new ChannelManager with the provided options.
//
// Required options:
//   - WithBroker: broker gateway
//   - WithCache: fingerprint cache
//   - WithLocalDelivery: local fan-out target
//   - WithRelayPool: worker pool for relay forwarding
//   - WithLogger: logger instance
func NewChannelManager(opts ...Option) (*ChannelManager, error) {
	m := &ChannelManager{
		observer:   &NoOpObserver{},
		exchange:   DefaultExchange,
		opTimeout:  defaultOperationTimeout,
		drainGrace: defaultDrainGrace,
		strategy:   retry.DefaultStrategy(),
		locks:      newKeyedMutex(),
		channels:   make(map[string]*managedChannel),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply channel manager option", err)
		}
	}

	if m.broker == nil {
		return nil, NewError(ErrCodeConfiguration, "BrokerGateway is required (use WithBroker)")
	}
	if m.cache == nil {
		return nil, NewError(ErrCodeConfiguration, "FingerprintCache is required (use WithCache)")
	}
	if m.delivery == nil {
		return nil, NewError(ErrCodeConfiguration, "LocalDelivery is required (use WithLocalDelivery)")
	}
	if m.pool == nil {
		return nil, NewError(ErrCodeConfiguration, "WorkerPool is required (use WithRelayPool)")
	}
	if m.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	return m, nil
}

// Exchange returns the exchange channel queues are bound to.
func (m *ChannelManager) Exchange() string {
	return m.exchange
}

// DeclareExchange declares the durable topic exchange. Call once at startup.
func (m *ChannelManager) DeclareExchange(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	if err := m.broker.DeclareExchange(opCtx, m.exchange); err != nil {
		return NewErrorWithCause(ErrCodeResource, fmt.Sprintf("failed to declare exchange %s", m.exchange), err)
	}
	m.logger.Infof("Exchange declared: %s", m.exchange)
	return nil
}

// EnsureChannel makes the channel ACTIVE on this instance and returns its
// handle. Concurrent calls for the same id perform the broker work once.
// On failure nothing is registered and a RESOURCE_ERROR is returned, as it
// is once Shutdown has started.
func (m *ChannelManager) EnsureChannel(ctx context.Context, channelID string) (Channel, error) {
	if channelID == "" {
		return Channel{}, NewError(ErrCodeInvalidArgument, "channel id is required")
	}

	if ch, ok := m.Channel(channelID); ok {
		return ch, nil
	}

	unlock := m.locks.Lock(channelID)
	defer unlock()

	// Another caller may have finished activation while we waited.
	if ch, ok := m.Channel(channelID); ok {
		return ch, nil
	}
	if m.isClosed() {
		return Channel{}, errManagerClosed(channelID)
	}

	queue := QueueName(channelID)
	routingKey := RoutingKey(channelID)

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	if err := m.broker.DeclareQueue(opCtx, queue, true); err != nil {
		return Channel{}, NewErrorWithCause(ErrCodeResource, fmt.Sprintf("failed to declare queue %s", queue), err)
	}
	if err := m.broker.BindQueue(opCtx, queue, m.exchange, routingKey); err != nil {
		return Channel{}, NewErrorWithCause(ErrCodeResource, fmt.Sprintf("failed to bind queue %s", queue), err)
	}

	relay, err := startConsumerRelay(m.relayConfig(), channelID)
	if err != nil {
		// a bound queue without a consumer would collect messages nobody reads
		if delErr := m.broker.DeleteQueue(opCtx, queue); delErr != nil {
			m.logger.Warnf("Channel %s: failed to remove unconsumed queue %s: %v", channelID, queue, delErr)
		}
		return Channel{}, NewErrorWithCause(ErrCodeResource, fmt.Sprintf("failed to subscribe to queue %s", queue), err)
	}

	info := Channel{
		ID:          channelID,
		Queue:       queue,
		RoutingKey:  routingKey,
		State:       StateActive,
		ActivatedAt: time.Now(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		// Shutdown began during activation and will not see this relay.
		relay.Stop(m.drainGrace)
		return Channel{}, errManagerClosed(channelID)
	}
	m.channels[channelID] = &managedChannel{info: info, relay: relay}
	m.mu.Unlock()

	m.logger.Infof("Channel activated: id=%s, queue=%s, exchange=%s", channelID, queue, m.exchange)
	m.observer.ChannelActivated(channelID)

	return info, nil
}

// TeardownChannel releases the channel's resources: the relay is stopped
// (draining in-flight forwards up to the grace period), the queue deleted
// and the channel's cache entries removed.
//
// The queue is deleted even when the channel was never activated on this
// instance, so any instance can close a channel.
func (m *ChannelManager) TeardownChannel(ctx context.Context, channelID string) error {
	if channelID == "" {
		return NewError(ErrCodeInvalidArgument, "channel id is required")
	}

	unlock := m.locks.Lock(channelID)
	defer unlock()

	m.mu.Lock()
	mc, found := m.channels[channelID]
	delete(m.channels, channelID)
	m.mu.Unlock()

	if found {
		mc.info.State = StateTeardown
		if !mc.relay.Stop(m.drainGrace) {
			m.logger.Warnf("Channel %s: relay did not drain within %v", channelID, m.drainGrace)
		}
	}

	queue := QueueName(channelID)

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	if err := m.broker.DeleteQueue(opCtx, queue); err != nil {
		return NewErrorWithCause(ErrCodeResource, fmt.Sprintf("failed to delete queue %s", queue), err)
	}

	removed, err := m.cache.DeleteByPrefix(opCtx, ChannelCachePrefix(channelID))
	if err != nil {
		return NewErrorWithCause(ErrCodeResource, fmt.Sprintf("failed to clear cache for channel %s", channelID), err)
	}

	m.logger.Infof("Channel torn down: id=%s, queue=%s, cache_entries=%d", channelID, queue, removed)
	m.observer.ChannelTornDown(channelID)

	return nil
}

// Channel returns the handle of an active channel.
func (m *ChannelManager) Channel(channelID string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mc, ok := m.channels[channelID]
	if !ok {
		return Channel{}, false
	}
	return mc.info, true
}

// State returns the lifecycle state of a channel on this instance.
func (m *ChannelManager) State(channelID string) ChannelState {
	if ch, ok := m.Channel(channelID); ok {
		return ch.State
	}
	return StateUninitialized
}

// ActiveChannels returns the ids of all active channels, sorted.
func (m *ChannelManager) ActiveChannels() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Shutdown stops every relay concurrently and drains the relay pool.
// Queues are left in place so other instances keep serving the channels.
// Later EnsureChannel calls fail.
func (m *ChannelManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	channels := m.channels
	m.channels = make(map[string]*managedChannel)
	m.mu.Unlock()

	m.logger.Infof("Shutting down channel manager: %d active channels", len(channels))

	var g errgroup.Group
	for id, mc := range channels {
		g.Go(func() error {
			if !mc.relay.Stop(m.drainGrace) {
				return fmt.Errorf("relay for channel %s force-stopped", id)
			}
			return nil
		})
	}
	relayErr := g.Wait()

	if err := m.pool.Shutdown(ctx); err != nil {
		return NewErrorWithCause(ErrCodeResource, "relay pool did not drain", err)
	}
	if relayErr != nil {
		return NewErrorWithCause(ErrCodeResource, "relay drain incomplete", relayErr)
	}
	return nil
}

func (m *ChannelManager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func errManagerClosed(channelID string) error {
	return NewError(ErrCodeResource, fmt.Sprintf("channel manager is shut down, cannot activate channel %s", channelID))
}

func (m *ChannelManager) relayConfig() relayConfig {
	return relayConfig{
		broker:   m.broker,
		delivery: m.delivery,
		pool:     m.pool,
		strategy: m.strategy,
		observer: m.observer,
		logger:   m.logger,
		exchange: m.exchange,
	}
}
