// Package amqp implements chatrelay.BrokerGateway on RabbitMQ (AMQP 0-9-1).
//
// One control channel carries declarations and publishes, one operation at a
// time. Every operation is bounded by its context: amqp091 RPCs take no
// context, so a stalled call is abandoned on timeout and its channel closed,
// and the next operation opens a fresh one. Each Subscribe opens its own channel with a prefetch limit and
// several consumers on the queue, fanned into one delivery stream.
// Deliveries are acknowledged once handed to the relay.
//
// A dropped connection is redialled lazily by the next call, so a relay
// that resubscribes after losing its stream gets a fresh connection.
package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/chatrelay"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/semaphore"
)

const (
	defaultPrefetch    = 500
	defaultConsumers   = 20
	defaultDialTimeout = 5 * time.Second
)

// Gateway is a BrokerGateway over one RabbitMQ connection.
type Gateway struct {
	url       string
	prefetch  int
	consumers   int
	dialTimeout time.Duration
	logger      chatrelay.Logger

	// ops serializes control channel operations; mu guards conn and control.
	ops     *semaphore.Weighted
	mu      sync.Mutex
	conn    *amqp.Connection
	control *amqp.Channel
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPrefetch sets the per-subscription prefetch count. Default is 500.
func WithPrefetch(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.prefetch = n
		}
	}
}

// WithConsumers sets how many consumers each subscription starts on its
// queue. Default is 20.
func WithConsumers(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.consumers = n
		}
	}
}

// WithDialTimeout bounds connection setup, including the AMQP handshake.
// Default is 5s.
func WithDialTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.dialTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger chatrelay.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Dial connects to the broker at url.
func Dial(url string, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		url:         url,
		prefetch:    defaultPrefetch,
		consumers:   defaultConsumers,
		dialTimeout: defaultDialTimeout,
		logger:      &chatrelay.NoopLogger{},
		ops:         semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.controlChannel(); err != nil {
		return nil, err
	}
	return g, nil
}

// connection returns a live connection, redialling if needed. Caller holds g.mu.
func (g *Gateway) connection() (*amqp.Connection, error) {
	if g.conn != nil && !g.conn.IsClosed() {
		return g.conn, nil
	}

	conn, err := amqp.DialConfig(g.url, amqp.Config{Dial: amqp.DefaultDial(g.dialTimeout)})
	if err != nil {
		return nil, chatrelay.NewErrorWithCause(chatrelay.ErrCodeResource, "failed to connect to broker", err)
	}
	if g.conn != nil {
		g.logger.Warnf("Broker connection re-established")
	}
	g.conn = conn
	g.control = nil
	return conn, nil
}

// controlChannel returns the shared channel for declarations and publishes,
// reopening it after a channel-level error closed it. Caller holds g.mu.
func (g *Gateway) controlChannel() (*amqp.Channel, error) {
	conn, err := g.connection()
	if err != nil {
		return nil, err
	}
	if g.control != nil && !g.control.IsClosed() {
		return g.control, nil
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, chatrelay.NewErrorWithCause(chatrelay.ErrCodeResource, "failed to open broker channel", err)
	}
	g.control = ch
	return ch, nil
}

// withControl runs fn on the control channel and gives up when ctx is done.
// A timed-out fn keeps running in the background on a channel that is
// detached and closed, so it cannot block later operations.
func (g *Gateway) withControl(ctx context.Context, code, op string, fn func(ch *amqp.Channel) error) error {
	if err := g.ops.Acquire(ctx, 1); err != nil {
		return chatrelay.NewErrorWithCause(code, op+" timed out waiting for broker", err)
	}
	release := sync.OnceFunc(func() { g.ops.Release(1) })

	g.mu.Lock()
	ch, err := g.controlChannel()
	g.mu.Unlock()
	if err != nil {
		release()
		return err
	}

	err = runBounded(ctx, release, func() error { return fn(ch) })
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		g.detach(ch)
		g.logger.Warnf("Broker %s abandoned: %v", op, ctx.Err())
		return chatrelay.NewErrorWithCause(code, op+" timed out", ctx.Err())
	}
	return err
}

// runBounded runs fn in its own goroutine and returns its result, or
// ctx.Err() once ctx is done. release is called both when fn returns and
// when the caller gives up, so it must be idempotent.
func runBounded(ctx context.Context, release func(), fn func() error) error {
	result := make(chan error, 1)
	go func() {
		err := fn()
		release()
		result <- err
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		release()
		return ctx.Err()
	}
}

// detach drops ch as the control channel and closes it in the background.
func (g *Gateway) detach(ch *amqp.Channel) {
	g.mu.Lock()
	if g.control == ch {
		g.control = nil
	}
	g.mu.Unlock()
	go func() { _ = ch.Close() }()
}

// DeclareExchange declares a durable topic exchange.
func (g *Gateway) DeclareExchange(ctx context.Context, exchange string) error {
	return g.withControl(ctx, chatrelay.ErrCodeResource, "exchange declare", func(ch *amqp.Channel) error {
		return ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	})
}

// DeclareQueue declares a queue. Re-declaring with the same settings is a no-op.
func (g *Gateway) DeclareQueue(ctx context.Context, queue string, durable bool) error {
	return g.withControl(ctx, chatrelay.ErrCodeResource, "queue declare", func(ch *amqp.Channel) error {
		_, err := ch.QueueDeclare(queue, durable, false, false, false, nil)
		return err
	})
}

// BindQueue binds queue to exchange with routingKey.
func (g *Gateway) BindQueue(ctx context.Context, queue, exchange, routingKey string) error {
	return g.withControl(ctx, chatrelay.ErrCodeResource, "queue bind", func(ch *amqp.Channel) error {
		return ch.QueueBind(queue, routingKey, exchange, false, nil)
	})
}

// DeleteQueue deletes queue together with any messages still in it.
func (g *Gateway) DeleteQueue(ctx context.Context, queue string) error {
	return g.withControl(ctx, chatrelay.ErrCodeResource, "queue delete", func(ch *amqp.Channel) error {
		purged, err := ch.QueueDelete(queue, false, false, false)
		if err == nil && purged > 0 {
			g.logger.Infof("Queue %s deleted with %d pending messages", queue, purged)
		}
		return err
	})
}

// Publish sends a persistent JSON message.
func (g *Gateway) Publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	return g.withControl(ctx, chatrelay.ErrCodeDelivery, "publish", func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		})
	})
}

// Subscribe starts the configured number of consumers on queue. The stream
// closes when ctx is done or the broker channel is lost.
func (g *Gateway) Subscribe(ctx context.Context, queue string) (<-chan chatrelay.Delivery, error) {
	g.mu.Lock()
	conn, err := g.connection()
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, chatrelay.NewErrorWithCause(chatrelay.ErrCodeResource, "failed to open consumer channel", err)
	}
	if err := ch.Qos(g.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}

	sources := make([]<-chan amqp.Delivery, 0, g.consumers)
	for i := 0; i < g.consumers; i++ {
		deliveries, err := ch.Consume(queue, consumerTag(queue, i), false, false, false, false, nil)
		if err != nil {
			_ = ch.Close()
			return nil, err
		}
		sources = append(sources, deliveries)
	}

	out := make(chan chatrelay.Delivery)
	done := make(chan struct{})
	var wg sync.WaitGroup

	for _, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range src {
				select {
				case out <- chatrelay.Delivery{Body: d.Body, RoutingKey: d.RoutingKey}:
					_ = d.Ack(false)
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}()
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = ch.Close()
	}()
	go func() {
		wg.Wait()
		close(done)
		close(out)
	}()

	g.logger.Debugf("Consuming queue %s: consumers=%d, prefetch=%d", queue, g.consumers, g.prefetch)
	return out, nil
}

// Close closes the connection and every channel on it.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil || g.conn.IsClosed() {
		return nil
	}
	return g.conn.Close()
}

func consumerTag(queue string, n int) string {
	return fmt.Sprintf("chatrelay-%s-%d-%s", queue, n, uuid.NewString()[:8])
}
