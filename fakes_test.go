package chatrelay

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coregx/chatrelay/model"
	"github.com/coregx/chatrelay/retry"
)

// fakeStream is one Subscribe call on the fake broker.
type fakeStream struct {
	ch     chan Delivery
	closed bool
}

type fakeBroker struct {
	mu sync.Mutex

	exchanges []string
	declared  []string
	bound     []string
	deleted   []string
	published []fakePublish
	streams   map[string][]*fakeStream
	queues    map[string]bool

	declareErr   error
	publishErr   error
	subscribeErr error
}

type fakePublish struct {
	exchange   string
	routingKey string
	payload    []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{streams: make(map[string][]*fakeStream), queues: make(map[string]bool)}
}

func (b *fakeBroker) DeclareExchange(_ context.Context, exchange string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exchanges = append(b.exchanges, exchange)
	return nil
}

func (b *fakeBroker) DeclareQueue(_ context.Context, queue string, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.declareErr != nil {
		return b.declareErr
	}
	// widen the race window for concurrent ensure tests
	time.Sleep(time.Millisecond)
	b.declared = append(b.declared, queue)
	b.queues[queue] = true
	return nil
}

func (b *fakeBroker) BindQueue(_ context.Context, queue, exchange, routingKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bound = append(b.bound, queue+"|"+exchange+"|"+routingKey)
	return nil
}

func (b *fakeBroker) DeleteQueue(_ context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, queue)
	delete(b.queues, queue)
	return nil
}

func (b *fakeBroker) Publish(_ context.Context, exchange, routingKey string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, fakePublish{exchange: exchange, routingKey: routingKey, payload: payload})
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, queue string) (<-chan Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}

	s := &fakeStream{ch: make(chan Delivery, 64)}
	b.streams[queue] = append(b.streams[queue], s)

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
	}()
	return s.ch, nil
}

func (b *fakeBroker) Close() error { return nil }

// deliver pushes a message into the newest open stream of queue.
func (b *fakeBroker) deliver(queue string, body []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	streams := b.streams[queue]
	for i := len(streams) - 1; i >= 0; i-- {
		if !streams[i].closed {
			streams[i].ch <- Delivery{Body: body, RoutingKey: queue}
			return true
		}
	}
	return false
}

// dropStream closes the newest stream of queue as a lost connection would.
func (b *fakeBroker) dropStream(queue string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	streams := b.streams[queue]
	if len(streams) == 0 {
		return
	}
	s := streams[len(streams)-1]
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (b *fakeBroker) subscriptions(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams[queue])
}

func (b *fakeBroker) openSubscriptions(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.streams[queue] {
		if !s.closed {
			n++
		}
	}
	return n
}

func (b *fakeBroker) counts() (declared, bound, deleted, published int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.declared), len(b.bound), len(b.deleted), len(b.published)
}

func (b *fakeBroker) queueExists(queue string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queues[queue]
}

func (b *fakeBroker) deletedQueues() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

type cacheEntry struct {
	value   string
	expires time.Time
}

// fakeCache honors TTLs against a clock the test advances explicitly.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     time.Time
	getErr  error
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]cacheEntry), now: time.Unix(0, 0)}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	e, ok := c.entries[key]
	if !ok || !c.now.Before(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *fakeCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = cacheEntry{value: value, expires: c.now.Add(ttl)}
	return nil
}

func (c *fakeCache) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && c.now.Before(e.expires)
}

func (c *fakeCache) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type delivered struct {
	destination string
	payload     []byte
}

type fakeDelivery struct {
	mu    sync.Mutex
	items []delivered
	err   error
}

func (d *fakeDelivery) PublishToTopic(_ context.Context, destination string, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.items = append(d.items, delivered{destination: destination, payload: payload})
	return nil
}

func (d *fakeDelivery) all() []delivered {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivered(nil), d.items...)
}

func (d *fakeDelivery) to(destination string) []delivered {
	var out []delivered
	for _, item := range d.all() {
		if item.destination == destination {
			out = append(out, item)
		}
	}
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	messages map[string]model.ChatMessage
	seq      int
	saves    int
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[string]model.ChatMessage)}
}

func (s *fakeStore) Save(_ context.Context, m model.ChatMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.seq++
	m.ID = "msg-" + strconv.Itoa(s.seq)
	s.messages[m.ID] = m
	return m.ID, nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return m, ErrNoData
	}
	return m, nil
}

func (s *fakeStore) UpdateBody(_ context.Context, id, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ErrNoData
	}
	m.Revise(body)
	s.messages[id] = m
	return nil
}

func (s *fakeStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return ErrNoData
	}
	delete(s.messages, id)
	return nil
}

func (s *fakeStore) put(m model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = m
}

func (s *fakeStore) get(id string) (model.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	return m, ok
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type fakeValidator struct {
	identities map[string]string
}

func (v fakeValidator) Validate(_ context.Context, token string) (string, error) {
	identity, ok := v.identities[token]
	if !ok {
		return "", errors.New("token expired")
	}
	return identity, nil
}

// relayFixture wires a ChannelManager and Publisher over fakes.
type relayFixture struct {
	broker    *fakeBroker
	cache     *fakeCache
	delivery  *fakeDelivery
	pool      *WorkerPool
	manager   *ChannelManager
	publisher *Publisher
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()

	f := &relayFixture{
		broker:   newFakeBroker(),
		cache:    newFakeCache(),
		delivery: &fakeDelivery{},
	}

	pool, err := NewWorkerPool("relay", 8, &NoopLogger{})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	f.pool = pool

	f.manager, err = NewChannelManager(
		WithBroker(f.broker),
		WithCache(f.cache),
		WithLocalDelivery(f.delivery),
		WithRelayPool(pool),
		WithLogger(&NoopLogger{}),
		WithDrainGrace(time.Second),
		WithResubscribeStrategy(retry.Strategy{
			BaseDelay:       time.Millisecond,
			MaxDelay:        5 * time.Millisecond,
			ExponentialBase: 2,
		}),
	)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	f.publisher, err = NewPublisher(
		WithPublisherBroker(f.broker, f.manager),
		WithPublisherCache(f.cache),
		WithPublisherDelivery(f.delivery),
		WithPublisherLogger(&NoopLogger{}),
	)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.manager.Shutdown(ctx)
	})
	return f
}
