package chatrelay

import (
	"context"
	"time"

	"github.com/coregx/chatrelay/model"
)

// Delivery is one message received from a broker queue.
type Delivery struct {
	Body       []byte
	RoutingKey string
}

// BrokerGateway is the capability the relay needs from the message broker.
// The broker's own queueing, routing and persistence are not reimplemented.
//
// Implementations must be safe for concurrent use. Every call must honor
// ctx cancellation so callers can bound operations with a timeout.
type BrokerGateway interface {
	// DeclareExchange declares the durable topic exchange channel queues bind to.
	DeclareExchange(ctx context.Context, exchange string) error

	// DeclareQueue declares a queue. Declaring an existing queue is a no-op.
	DeclareQueue(ctx context.Context, queue string, durable bool) error

	// BindQueue binds a queue to an exchange with a routing key.
	BindQueue(ctx context.Context, queue, exchange, routingKey string) error

	// DeleteQueue removes a queue. Deleting an absent queue is not an error.
	DeleteQueue(ctx context.Context, queue string) error

	// Publish sends payload to exchange under routingKey.
	Publish(ctx context.Context, exchange, routingKey string, payload []byte) error

	// Subscribe starts consuming a queue. The returned channel is closed when
	// ctx is canceled or the underlying consumer stops.
	Subscribe(ctx context.Context, queue string) (<-chan Delivery, error)

	// Close releases the broker connection.
	Close() error
}

// FingerprintCache is a TTL key-value store holding recent message fingerprints.
type FingerprintCache interface {
	// Get returns the value stored under key. found is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// DeleteByPrefix removes every key starting with prefix and returns how many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// MessageRepository defines the persistence interface for chat messages.
type MessageRepository interface {
	// Save stores a new message and returns its assigned id.
	Save(ctx context.Context, m model.ChatMessage) (string, error)

	// FindByID retrieves a message by id.
	// Returns ErrNoData if not found.
	FindByID(ctx context.Context, id string) (model.ChatMessage, error)

	// UpdateBody replaces the text body of a message.
	UpdateBody(ctx context.Context, id, body string) error

	// DeleteByID permanently removes a message.
	DeleteByID(ctx context.Context, id string) error
}

// CredentialValidator resolves a bearer token to an identity.
type CredentialValidator interface {
	// Validate returns the identity the token was issued to, or an error when
	// the token is malformed, expired or carries a bad signature.
	Validate(ctx context.Context, token string) (identity string, err error)
}

// LocalDelivery pushes payloads to the sessions connected to this instance.
type LocalDelivery interface {
	// PublishToTopic delivers payload to every session subscribed to destination.
	// Having no subscribers is not an error.
	PublishToTopic(ctx context.Context, destination string, payload []byte) error
}
