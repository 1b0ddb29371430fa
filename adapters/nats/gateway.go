// Package nats implements chatrelay.BrokerGateway on core NATS.
//
// NATS has no server-side exchanges or queues, so they are modelled on the
// client: an exchange plus routing key becomes a subject, a binding records
// which subjects feed a queue, and consuming a queue is a queue-group
// subscription on those subjects, so instances sharing a queue compete for
// its messages the way AMQP consumers on one queue do.
package nats

import (
	"context"
	"fmt"
	"sync"

	"github.com/coregx/chatrelay"
	"github.com/nats-io/nats.go"
)

const defaultPendingLimit = 500

// Gateway is a BrokerGateway over one NATS connection.
type Gateway struct {
	nc           *nats.Conn
	pendingLimit int
	logger       chatrelay.Logger

	mu       sync.RWMutex
	bindings map[string]map[string]struct{} // queue -> subjects
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPendingLimit caps the messages buffered per subscription before NATS
// starts dropping them as a slow consumer. Default is 500.
func WithPendingLimit(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.pendingLimit = n
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

// Dial connects to url and returns a gateway owning the connection.
func Dial(url string, opts ...Option) (*Gateway, error) {
	nc, err := nats.Connect(url, nats.Name("chatrelay"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, chatrelay.NewErrorWithCause(chatrelay.ErrCodeResource, "failed to connect to nats", err)
	}
	return New(nc, opts...), nil
}

// New wraps an existing connection.
func New(nc *nats.Conn, opts ...Option) *Gateway {
	g := &Gateway{
		nc:           nc,
		pendingLimit: defaultPendingLimit,
		logger:       &chatrelay.NoopLogger{},
		bindings:     make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// subjectFor maps an exchange and routing key onto a NATS subject.
func subjectFor(exchange, routingKey string) string {
	return exchange + "." + routingKey
}

// DeclareExchange is a no-op: subjects need no declaration.
func (g *Gateway) DeclareExchange(ctx context.Context, _ string) error {
	return ctx.Err()
}

// DeclareQueue registers the queue. Declaring an existing queue is a no-op.
func (g *Gateway) DeclareQueue(ctx context.Context, queue string, _ bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.bindings[queue]; !ok {
		g.bindings[queue] = make(map[string]struct{})
	}
	return nil
}

// BindQueue routes messages published with routingKey on exchange into queue.
func (g *Gateway) BindQueue(ctx context.Context, queue, exchange, routingKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	subjects, ok := g.bindings[queue]
	if !ok {
		return fmt.Errorf("queue %s not declared", queue)
	}
	subjects[subjectFor(exchange, routingKey)] = struct{}{}
	return nil
}

// DeleteQueue forgets the queue and its bindings.
func (g *Gateway) DeleteQueue(ctx context.Context, queue string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.bindings, queue)
	g.mu.Unlock()
	return nil
}

// Publish sends payload on the subject of exchange and routingKey.
func (g *Gateway) Publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.nc.Publish(subjectFor(exchange, routingKey), payload)
}

// Subscribe consumes every subject bound to queue until ctx is done, then
// unsubscribes and closes the returned channel.
func (g *Gateway) Subscribe(ctx context.Context, queue string) (<-chan chatrelay.Delivery, error) {
	g.mu.RLock()
	bound, ok := g.bindings[queue]
	subjects := make([]string, 0, len(bound))
	for s := range bound {
		subjects = append(subjects, s)
	}
	g.mu.RUnlock()

	if !ok || len(subjects) == 0 {
		return nil, fmt.Errorf("queue %s has no bindings", queue)
	}

	out := make(chan chatrelay.Delivery, g.pendingLimit)
	var (
		outMu  sync.RWMutex
		closed bool
	)

	handler := func(m *nats.Msg) {
		outMu.RLock()
		defer outMu.RUnlock()
		if closed {
			return
		}
		select {
		case out <- chatrelay.Delivery{Body: m.Data, RoutingKey: m.Subject}:
		case <-ctx.Done():
		}
	}

	subs := make([]*nats.Subscription, 0, len(subjects))
	for _, subj := range subjects {
		sub, err := g.nc.QueueSubscribe(subj, queue, handler)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		if err := sub.SetPendingLimits(g.pendingLimit, -1); err != nil {
			g.logger.Warnf("Failed to set pending limits on %s: %v", subj, err)
		}
		subs = append(subs, sub)
	}

	go func() {
		<-ctx.Done()
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		outMu.Lock()
		closed = true
		close(out)
		outMu.Unlock()
	}()

	g.logger.Debugf("Subscribed to queue %s on %d subjects", queue, len(subs))
	return out, nil
}

// Close drains pending messages and closes the connection.
func (g *Gateway) Close() error {
	if g.nc == nil {
		return nil
	}
	if err := g.nc.Drain(); err != nil {
		g.nc.Close()
		return err
	}
	return nil
}
