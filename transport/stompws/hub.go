package stompws

import (
	"context"
	"sort"
	"sync"

	"github.com/coregx/chatrelay"
)

// Hub tracks which connections subscribe to which destinations on this
// instance and pushes payloads to them. It implements chatrelay.LocalDelivery.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*conn]struct{}
	logger chatrelay.Logger
}

// NewHub creates an empty hub.
func NewHub(logger chatrelay.Logger) *Hub {
	if logger == nil {
		logger = &chatrelay.NoopLogger{}
	}
	return &Hub{
		subs:   make(map[string]map[*conn]struct{}, 256),
		logger: logger,
	}
}

// PublishToTopic delivers payload to every connection subscribed to destination.
// A connection that cannot keep up is closed rather than blocking the caller.
func (h *Hub) PublishToTopic(ctx context.Context, destination string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	set := h.subs[destination]
	conns := make([]*conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.deliver(destination, payload)
	}
	return nil
}

// Subscribers returns the number of connections subscribed to destination.
func (h *Hub) Subscribers(destination string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[destination])
}

// Destinations returns every destination with at least one subscriber, sorted.
func (h *Hub) Destinations() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.subs))
	for d := range h.subs {
		out = append(out, d)
	}
	h.mu.RUnlock()

	sort.Strings(out)
	return out
}

func (h *Hub) add(c *conn, destination string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[destination]
	if set == nil {
		set = make(map[*conn]struct{}, 16)
		h.subs[destination] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) drop(c *conn, destination string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set := h.subs[destination]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, destination)
		}
	}
}

func (h *Hub) removeConn(c *conn, destinations []string) {
	for _, d := range destinations {
		h.drop(c, d)
	}
}
