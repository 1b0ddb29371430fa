package chatrelay

// Observer receives relay events for monitoring. Implementations must be
// cheap and non-blocking; they run inline on the publish and relay paths.
//
// The prometheus adapter exports these as metrics.
type Observer interface {
	// MessagePublished is called after a message reached the broker and local fan-out.
	MessagePublished(channelID string)

	// DuplicateSuppressed is called when a publish was dropped by the dedup window.
	DuplicateSuppressed(channelID string)

	// DeliveryFailed is called when a broker publish or local push failed.
	DeliveryFailed(channelID string, err error)

	// MessageRelayed is called when a broker delivery was forwarded to local subscribers.
	MessageRelayed(channelID string)

	// RelayDropped is called when a broker delivery could not be decoded or forwarded.
	RelayDropped(channelID string, err error)

	// ChannelActivated is called when a channel transitions to ACTIVE.
	ChannelActivated(channelID string)

	// ChannelTornDown is called when a channel's resources have been released.
	ChannelTornDown(channelID string)
}

// NoOpObserver ignores every event.
type NoOpObserver struct{}

// MessagePublished does nothing.
func (n *NoOpObserver) MessagePublished(_ string) {}

// DuplicateSuppressed does nothing.
func (n *NoOpObserver) DuplicateSuppressed(_ string) {}

// DeliveryFailed does nothing.
func (n *NoOpObserver) DeliveryFailed(_ string, _ error) {}

// MessageRelayed does nothing.
func (n *NoOpObserver) MessageRelayed(_ string) {}

// RelayDropped does nothing.
func (n *NoOpObserver) RelayDropped(_ string, _ error) {}

// ChannelActivated does nothing.
func (n *NoOpObserver) ChannelActivated(_ string) {}

// ChannelTornDown does nothing.
func (n *NoOpObserver) ChannelTornDown(_ string) {}

// LoggingObserver writes lifecycle and failure events to a Logger.
// Per-message successes are logged at debug level.
type LoggingObserver struct {
	logger Logger
}

// NewLoggingObserver creates a new LoggingObserver.
func NewLoggingObserver(logger Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

// MessagePublished logs at debug level.
func (o *LoggingObserver) MessagePublished(channelID string) {
	o.logger.Debugf("Message published: channel=%s", channelID)
}

// DuplicateSuppressed logs the suppressed publish.
func (o *LoggingObserver) DuplicateSuppressed(channelID string) {
	o.logger.Infof("Duplicate message suppressed: channel=%s", channelID)
}

// DeliveryFailed logs the failure.
func (o *LoggingObserver) DeliveryFailed(channelID string, err error) {
	o.logger.Warnf("Delivery failed: channel=%s, error=%v", channelID, err)
}

// MessageRelayed logs at debug level.
func (o *LoggingObserver) MessageRelayed(channelID string) {
	o.logger.Debugf("Message relayed: channel=%s", channelID)
}

// RelayDropped logs the dropped delivery.
func (o *LoggingObserver) RelayDropped(channelID string, err error) {
	o.logger.Warnf("Relay dropped delivery: channel=%s, error=%v", channelID, err)
}

// ChannelActivated logs the activation.
func (o *LoggingObserver) ChannelActivated(channelID string) {
	o.logger.Infof("Channel activated: channel=%s", channelID)
}

// ChannelTornDown logs the teardown.
func (o *LoggingObserver) ChannelTornDown(channelID string) {
	o.logger.Infof("Channel torn down: channel=%s", channelID)
}
