package chatrelay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coregx/chatrelay/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textMessage(channelID, content string) model.ChatMessage {
	m := model.NewChatMessage(channelID, "ann@example.com", "Ann", content, "")
	m.ID = "m-" + content
	return m
}

func TestNewPublisher_RequiresDependencies(t *testing.T) {
	_, err := NewPublisher(WithPublisherLogger(&NoopLogger{}))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeConfiguration))

	_, err = NewPublisher(WithPublisherCache(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache cannot be nil")
}

func TestPublisher_DeliversToBrokerAndLocalTopic(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	result, err := f.publisher.Publish(ctx, textMessage("c1", "hello"))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, Fingerprint("hello", ""), result.Fingerprint)

	_, _, _, published := f.broker.counts()
	assert.Equal(t, 1, published)
	assert.Equal(t, DefaultExchange, f.broker.published[0].exchange)
	assert.Equal(t, "chat.channel.c1", f.broker.published[0].routingKey)

	local := f.delivery.to("/topic/chat.channel.c1")
	require.Len(t, local, 1)

	decoded, err := DecodeMessage(local[0].payload)
	require.NoError(t, err)
	assert.Equal(t, "hello", decoded.Content)
	assert.Equal(t, "c1", decoded.ChannelID)

	assert.Equal(t, StateActive, f.manager.State("c1"))
}

func TestPublisher_SuppressesDuplicateWithinWindow(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	first, err := f.publisher.Publish(ctx, textMessage("c1", "hello"))
	require.NoError(t, err)
	second, err := f.publisher.Publish(ctx, textMessage("c1", "hello"))
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)

	_, _, _, published := f.broker.counts()
	assert.Equal(t, 1, published)
	assert.Len(t, f.delivery.to("/topic/chat.channel.c1"), 1)
}

func TestPublisher_DeliversAgainAfterWindow(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	_, err := f.publisher.Publish(ctx, textMessage("c1", "hello"))
	require.NoError(t, err)

	f.cache.advance(defaultDedupWindow + time.Second)

	again, err := f.publisher.Publish(ctx, textMessage("c1", "hello"))
	require.NoError(t, err)
	assert.False(t, again.Duplicate)

	_, _, _, published := f.broker.counts()
	assert.Equal(t, 2, published)
	assert.Len(t, f.delivery.to("/topic/chat.channel.c1"), 2)
}

func TestPublisher_SingleSlotPerChannel(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	for _, body := range []string{"A", "B", "A"} {
		result, err := f.publisher.Publish(ctx, textMessage("c1", body))
		require.NoError(t, err)
		assert.False(t, result.Duplicate, body)
	}

	_, _, _, published := f.broker.counts()
	assert.Equal(t, 3, published)
}

func TestPublisher_SameBodyOnDifferentChannels(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	_, err := f.publisher.Publish(ctx, textMessage("c1", "hello"))
	require.NoError(t, err)
	result, err := f.publisher.Publish(ctx, textMessage("c2", "hello"))
	require.NoError(t, err)

	assert.False(t, result.Duplicate)
	_, _, _, published := f.broker.counts()
	assert.Equal(t, 2, published)
}

func TestPublisher_CacheFailureTreatedAsNew(t *testing.T) {
	f := newRelayFixture(t)
	f.cache.getErr = errors.New("redis down")
	f.cache.setErr = errors.New("redis down")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := f.publisher.Publish(ctx, textMessage("c1", "hello"))
		require.NoError(t, err)
		assert.False(t, result.Duplicate)
	}

	_, _, _, published := f.broker.counts()
	assert.Equal(t, 2, published)
}

func TestPublisher_BrokerFailureKeepsFingerprint(t *testing.T) {
	f := newRelayFixture(t)
	f.broker.publishErr = errors.New("channel closed")
	ctx := context.Background()

	_, err := f.publisher.Publish(ctx, textMessage("c1", "hello"))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDelivery))
	assert.True(t, f.cache.has(FingerprintKey("c1")))

	f.broker.mu.Lock()
	f.broker.publishErr = nil
	f.broker.mu.Unlock()

	result, err := f.publisher.Publish(ctx, textMessage("c1", "hello"))
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
}

func TestPublisher_LocalDeliveryFailure(t *testing.T) {
	f := newRelayFixture(t)
	f.delivery.err = errors.New("subscriber gone")

	_, err := f.publisher.Publish(context.Background(), textMessage("c1", "hello"))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDelivery))
}

func TestPublisher_EnsureFailureIsResourceError(t *testing.T) {
	f := newRelayFixture(t)
	f.broker.declareErr = errors.New("access refused")

	_, err := f.publisher.Publish(context.Background(), textMessage("c1", "hello"))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeResource))

	_, _, _, published := f.broker.counts()
	assert.Zero(t, published)
}

func TestPublisher_RejectsEmptyBody(t *testing.T) {
	f := newRelayFixture(t)

	msg := textMessage("c1", "   ")
	_, err := f.publisher.Publish(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeInvalidArgument))
	assert.Empty(t, f.delivery.all())
}

func TestPublisher_FileOnlyMessage(t *testing.T) {
	f := newRelayFixture(t)

	msg := model.NewChatMessage("c1", "ann@example.com", "Ann", "", "https://files.example.com/a.png")
	result, err := f.publisher.Publish(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint("", "https://files.example.com/a.png"), result.Fingerprint)
}

func TestPublisher_RepublishAfterTeardownRecreatesChannel(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	_, err := f.publisher.Publish(ctx, textMessage("c1", "before"))
	require.NoError(t, err)

	require.NoError(t, f.manager.TeardownChannel(ctx, "c1"))
	assert.Equal(t, StateUninitialized, f.manager.State("c1"))
	assert.False(t, f.cache.has(FingerprintKey("c1")))

	_, err = f.publisher.Publish(ctx, textMessage("c1", "before"))
	require.NoError(t, err)

	declared, bound, _, published := f.broker.counts()
	assert.Equal(t, 2, declared)
	assert.Equal(t, 2, bound)
	assert.Equal(t, 2, published)
	assert.Equal(t, StateActive, f.manager.State("c1"))
}
