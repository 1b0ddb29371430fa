package chatrelay

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/chatrelay/model"
	"golang.org/x/sync/errgroup"
)

const defaultDedupWindow = 5 * time.Minute

// ChannelEnsurer activates channels on demand. ChannelManager implements it.
type ChannelEnsurer interface {
	EnsureChannel(ctx context.Context, channelID string) (Channel, error)
	Exchange() string
}

// PublishResult describes the outcome of a successful Publish call.
type PublishResult struct {
	ChannelID   string
	Fingerprint string

	// Duplicate is true when the message matched the channel's latest
	// fingerprint and was dropped without side effects.
	Duplicate bool
}

// Publisher fingerprints outbound messages, suppresses duplicates within the
// dedup window and delivers the rest both to the broker and to local
// subscribers.
//
// Deduplication is a single slot per channel: only the most recent
// fingerprint is remembered. Two identical publishes racing each other may
// both pass; the window is best effort.
type Publisher struct {
	channels ChannelEnsurer
	broker   BrokerGateway
	cache    FingerprintCache
	delivery LocalDelivery
	logger   Logger
	observer Observer

	dedupWindow time.Duration
	opTimeout   time.Duration
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// NewPublisher creates a new Publisher with the provided options.
//
// Required options:
//   - WithPublisherBroker: broker gateway and channel ensurer
//   - WithPublisherCache: fingerprint cache
//   - WithPublisherDelivery: local fan-out target
//   - WithPublisherLogger: logger instance
//
// Example:
//
//	publisher, err := chatrelay.NewPublisher(
//	    chatrelay.WithPublisherBroker(gateway, manager),
//	    chatrelay.WithPublisherCache(cache),
//	    chatrelay.WithPublisherDelivery(hub),
//	    chatrelay.WithPublisherLogger(logger),
//	)
func NewPublisher(opts ...PublisherOption) (*Publisher, error) {
	p := &Publisher{
		observer:    &NoOpObserver{},
		dedupWindow: defaultDedupWindow,
		opTimeout:   defaultOperationTimeout,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	if p.broker == nil || p.channels == nil {
		return nil, NewError(ErrCodeConfiguration, "BrokerGateway and ChannelEnsurer are required (use WithPublisherBroker)")
	}
	if p.cache == nil {
		return nil, NewError(ErrCodeConfiguration, "FingerprintCache is required (use WithPublisherCache)")
	}
	if p.delivery == nil {
		return nil, NewError(ErrCodeConfiguration, "LocalDelivery is required (use WithPublisherDelivery)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithPublisherLogger)")
	}

	return p, nil
}

// WithPublisherBroker sets the broker gateway and the component that
// activates channels before the first publish.
func WithPublisherBroker(broker BrokerGateway, channels ChannelEnsurer) PublisherOption {
	return func(p *Publisher) error {
		if broker == nil {
			return fmt.Errorf("broker cannot be nil")
		}
		if channels == nil {
			return fmt.Errorf("channels cannot be nil")
		}
		p.broker = broker
		p.channels = channels
		return nil
	}
}

// WithPublisherCache sets the fingerprint cache.
func WithPublisherCache(cache FingerprintCache) PublisherOption {
	return func(p *Publisher) error {
		if cache == nil {
			return fmt.Errorf("cache cannot be nil")
		}
		p.cache = cache
		return nil
	}
}

// WithPublisherDelivery sets the local fan-out target.
func WithPublisherDelivery(delivery LocalDelivery) PublisherOption {
	return func(p *Publisher) error {
		if delivery == nil {
			return fmt.Errorf("delivery cannot be nil")
		}
		p.delivery = delivery
		return nil
	}
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(p *Publisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithPublisherObserver sets the event observer. Optional.
func WithPublisherObserver(observer Observer) PublisherOption {
	return func(p *Publisher) error {
		if observer == nil {
			return fmt.Errorf("observer cannot be nil")
		}
		p.observer = observer
		return nil
	}
}

// WithDedupWindow sets how long a fingerprint suppresses an identical
// message. Optional; default is 5 minutes.
func WithDedupWindow(window time.Duration) PublisherOption {
	return func(p *Publisher) error {
		if window <= 0 {
			return fmt.Errorf("dedup window must be > 0")
		}
		p.dedupWindow = window
		return nil
	}
}

// WithPublisherTimeout bounds each cache and broker call. Optional; default is 5 seconds.
func WithPublisherTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be > 0")
		}
		p.opTimeout = timeout
		return nil
	}
}

// Publish delivers msg to its channel unless an identical body was the last
// thing published there within the dedup window.
//
// Steps:
//  1. Fingerprint the body and compare with the channel's cached fingerprint.
//     A match returns a result with Duplicate set and no side effects.
//  2. Record the new fingerprint with the dedup window as TTL.
//  3. Make sure the channel is active (declares queue, binding and relay).
//  4. Publish to the broker and push to local subscribers in parallel.
//
// A failure in step 4 returns a DELIVERY_ERROR; the recorded fingerprint is
// kept, so a retry of the same body within the window is suppressed.
// Cache errors never fail a publish: the message is treated as new.
func (p *Publisher) Publish(ctx context.Context, msg model.ChatMessage) (*PublishResult, error) {
	if msg.ChannelID == "" {
		return nil, NewError(ErrCodeInvalidArgument, "channel id is required")
	}
	if !msg.HasBody() {
		return nil, NewError(ErrCodeInvalidArgument, MsgInvalidContent)
	}

	fp := Fingerprint(msg.Content, msg.FileURL)
	key := FingerprintKey(msg.ChannelID)
	result := &PublishResult{ChannelID: msg.ChannelID, Fingerprint: fp}

	if p.isDuplicate(ctx, key, fp) {
		p.logger.Infof("Duplicate message detected for channel: %s", msg.ChannelID)
		p.observer.DuplicateSuppressed(msg.ChannelID)
		result.Duplicate = true
		return result, nil
	}

	p.remember(ctx, key, fp)

	if _, err := p.channels.EnsureChannel(ctx, msg.ChannelID); err != nil {
		p.observer.DeliveryFailed(msg.ChannelID, err)
		return nil, err
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDelivery, "failed to encode message", err)
	}

	var g errgroup.Group
	g.Go(func() error {
		opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
		defer cancel()

		if err := p.broker.Publish(opCtx, p.channels.Exchange(), RoutingKey(msg.ChannelID), payload); err != nil {
			return NewErrorWithCause(ErrCodeDelivery, "broker publish failed", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := p.delivery.PublishToTopic(ctx, TopicDestination(msg.ChannelID), payload); err != nil {
			return NewErrorWithCause(ErrCodeDelivery, "local delivery failed", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		p.logger.Errorf("Failed to deliver message: channel=%s, id=%s, error=%v", msg.ChannelID, msg.ID, err)
		p.observer.DeliveryFailed(msg.ChannelID, err)
		return nil, err
	}

	p.logger.Debugf("Message published: channel=%s, id=%s", msg.ChannelID, msg.ID)
	p.observer.MessagePublished(msg.ChannelID)

	return result, nil
}

func (p *Publisher) isDuplicate(ctx context.Context, key, fp string) bool {
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	last, found, err := p.cache.Get(opCtx, key)
	if err != nil {
		p.logger.Warnf("Fingerprint lookup failed for %s, treating as new: %v", key, err)
		return false
	}
	return found && last == fp
}

func (p *Publisher) remember(ctx context.Context, key, fp string) {
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	if err := p.cache.Set(opCtx, key, fp, p.dedupWindow); err != nil {
		p.logger.Warnf("Failed to record fingerprint for %s: %v", key, err)
	}
}
