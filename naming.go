package chatrelay

import "strings"

// DefaultExchange is the topic exchange every channel queue is bound to.
const DefaultExchange = "chat.exchange"

const (
	channelKeyPrefix  = "chat.channel."
	topicPrefix       = "/topic/"
	exchangePrefix    = "/exchange/"
	cacheKeyPrefix    = "chat:channel:"
	fingerprintSuffix = ":messages"
	applicationPrefix = "/pub/"
	sendDestination   = "chat.message."
	updateDestination = "chat.message.update."
	deleteDestination = "chat.message.delete."
)

// QueueName returns the durable broker queue name of a channel.
func QueueName(channelID string) string {
	return channelKeyPrefix + channelID
}

// RoutingKey returns the routing key binding a channel's queue to the exchange.
// It is identical to the queue name.
func RoutingKey(channelID string) string {
	return channelKeyPrefix + channelID
}

// TopicDestination is where locally published messages and command
// results are delivered.
func TopicDestination(channelID string) string {
	return topicPrefix + channelKeyPrefix + channelID
}

// ExchangeDestination is where the consumer relay delivers messages that
// arrived through the broker, possibly from other instances.
func ExchangeDestination(exchange, channelID string) string {
	return exchangePrefix + exchange + "/" + channelKeyPrefix + channelID
}

// FingerprintKey is the cache key holding the latest fingerprint of a channel.
func FingerprintKey(channelID string) string {
	return cacheKeyPrefix + channelID + fingerprintSuffix
}

// ChannelCachePrefix matches every cache entry owned by a channel.
func ChannelCachePrefix(channelID string) string {
	return cacheKeyPrefix + channelID + ":"
}

// ChannelFromDestination extracts the channel id from a topic or exchange
// destination. ok is false for anything else.
func ChannelFromDestination(destination string) (channelID string, ok bool) {
	rest, found := strings.CutPrefix(destination, topicPrefix)
	if !found {
		rest, found = strings.CutPrefix(destination, exchangePrefix)
		if !found {
			return "", false
		}
		// drop the exchange name segment
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			return "", false
		}
		rest = rest[i+1:]
	}
	channelID, found = strings.CutPrefix(rest, channelKeyPrefix)
	if !found || channelID == "" {
		return "", false
	}
	return channelID, true
}
