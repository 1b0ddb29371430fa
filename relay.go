package chatrelay

import (
	"context"
	"sync"
	"time"

	"github.com/coregx/chatrelay/retry"
)

// ConsumerRelay forwards messages arriving on one channel's broker queue to
// the local subscribers of that channel.
//
// The relay goroutine only pulls deliveries; decoding and fan-out run on the
// shared relay WorkerPool so a burst on one channel cannot starve others and
// a slow subscriber does not stall the broker stream beyond the pool bound.
//
// Lifecycle: started by ChannelManager.EnsureChannel, stopped by
// ChannelManager.TeardownChannel or Shutdown. A relay is never restarted;
// a re-activated channel gets a fresh relay.
type ConsumerRelay struct {
	channelID   string
	queue       string
	destination string

	broker   BrokerGateway
	delivery LocalDelivery
	pool     *WorkerPool
	strategy retry.Strategy
	observer Observer
	logger   Logger

	intakeCtx  context.Context
	stopIntake context.CancelFunc
	workCtx    context.Context
	forceStop  context.CancelFunc

	inFlight sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// relayConfig carries the shared dependencies a ChannelManager hands to each relay.
type relayConfig struct {
	broker   BrokerGateway
	delivery LocalDelivery
	pool     *WorkerPool
	strategy retry.Strategy
	observer Observer
	logger   Logger
	exchange string
}

// startConsumerRelay subscribes to the channel queue and starts relaying.
// A subscribe failure is returned and no goroutine is left behind.
func startConsumerRelay(cfg relayConfig, channelID string) (*ConsumerRelay, error) {
	r := &ConsumerRelay{
		channelID:   channelID,
		queue:       QueueName(channelID),
		destination: ExchangeDestination(cfg.exchange, channelID),
		broker:      cfg.broker,
		delivery:    cfg.delivery,
		pool:        cfg.pool,
		strategy:    cfg.strategy,
		observer:    cfg.observer,
		logger:      cfg.logger,
		done:        make(chan struct{}),
	}
	r.intakeCtx, r.stopIntake = context.WithCancel(context.Background())
	r.workCtx, r.forceStop = context.WithCancel(context.Background())

	stream, err := r.broker.Subscribe(r.intakeCtx, r.queue)
	if err != nil {
		r.stopIntake()
		r.forceStop()
		return nil, err
	}

	go r.run(stream)
	return r, nil
}

// ChannelID returns the channel this relay serves.
func (r *ConsumerRelay) ChannelID() string {
	return r.channelID
}

// Done is closed once the relay stopped pulling from the broker.
func (r *ConsumerRelay) Done() <-chan struct{} {
	return r.done
}

// run pulls deliveries until the relay is stopped, resubscribing with
// backoff when the broker stream ends on its own.
func (r *ConsumerRelay) run(stream <-chan Delivery) {
	defer close(r.done)

	r.logger.Infof("Consumer relay started: channel=%s, queue=%s", r.channelID, r.queue)

	for {
		r.consume(stream)

		if r.intakeCtx.Err() != nil {
			r.logger.Infof("Consumer relay stopped: channel=%s", r.channelID)
			return
		}

		r.logger.Warnf("Broker stream closed for queue %s, resubscribing", r.queue)
		next, ok := r.resubscribe()
		if !ok {
			return
		}
		stream = next
	}
}

// consume drains one stream, handing each delivery to the worker pool.
func (r *ConsumerRelay) consume(stream <-chan Delivery) {
	for d := range stream {
		r.inFlight.Add(1)
		err := r.pool.Submit(r.intakeCtx, func() {
			defer r.inFlight.Done()
			r.forward(d)
		})
		if err != nil {
			r.inFlight.Done()
			if r.intakeCtx.Err() != nil {
				continue
			}
			r.logger.Errorf("Failed to schedule delivery for channel %s: %v", r.channelID, err)
			r.observer.RelayDropped(r.channelID, err)
		}
	}
}

// resubscribe retries Subscribe until it succeeds, the strategy gives up or
// the relay is stopped.
func (r *ConsumerRelay) resubscribe() (<-chan Delivery, bool) {
	for attempt := 0; r.strategy.IsRetryable(attempt); attempt++ {
		if err := r.strategy.Wait(r.intakeCtx, attempt); err != nil {
			return nil, false
		}

		stream, err := r.broker.Subscribe(r.intakeCtx, r.queue)
		if err == nil {
			r.logger.Infof("Resubscribed to queue %s after %d attempts", r.queue, attempt+1)
			return stream, true
		}
		r.logger.Warnf("Resubscribe to queue %s failed (attempt=%d): %v", r.queue, attempt+1, err)
	}

	r.logger.Errorf("Giving up on queue %s: retry attempts exhausted", r.queue)
	return nil, false
}

// forward decodes one delivery and pushes it to local subscribers.
// Malformed payloads are logged and dropped.
func (r *ConsumerRelay) forward(d Delivery) {
	if _, err := DecodeMessage(d.Body); err != nil {
		r.logger.Errorf("Dropping malformed delivery on channel %s: %v", r.channelID, err)
		r.observer.RelayDropped(r.channelID, err)
		return
	}

	if err := r.delivery.PublishToTopic(r.workCtx, r.destination, d.Body); err != nil {
		r.logger.Errorf("Failed to forward message to %s: %v", r.destination, err)
		r.observer.RelayDropped(r.channelID, err)
		return
	}

	r.logger.Debugf("Message forwarded to local subscribers: channel=%s", r.channelID)
	r.observer.MessageRelayed(r.channelID)
}

// Stop stops intake, waits up to grace for in-flight forwards to drain and
// then cancels whatever is still running. It reports whether the drain
// finished within grace. Stop is idempotent.
func (r *ConsumerRelay) Stop(grace time.Duration) bool {
	r.stopOnce.Do(r.stopIntake)

	drained := make(chan struct{})
	go func() {
		<-r.done
		r.inFlight.Wait()
		close(drained)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-drained:
		r.forceStop()
		return true
	case <-timer.C:
		r.forceStop()
		r.logger.Warnf("Consumer relay for channel %s force-stopped after %v", r.channelID, grace)
		return false
	}
}
