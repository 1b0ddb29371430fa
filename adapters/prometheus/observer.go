// Package prometheus exports relay events as Prometheus metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatrelay"

// Observer implements chatrelay.Observer with counters and a gauge.
// Channel ids are not used as labels; their cardinality is unbounded.
type Observer struct {
	published      prometheus.Counter
	duplicates     prometheus.Counter
	deliveryFailed prometheus.Counter
	relayed        prometheus.Counter
	relayDropped   prometheus.Counter
	activeChannels prometheus.Gauge
	lifecycle      *prometheus.CounterVec
}

// NewObserver creates the metrics and registers them with reg.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Messages delivered to the broker and local subscribers.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_duplicate_total",
			Help:      "Messages suppressed by the dedup window.",
		}),
		deliveryFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Publishes that failed at the broker or local fan-out.",
		}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Broker deliveries forwarded to local subscribers.",
		}),
		relayDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_dropped_total",
			Help:      "Broker deliveries dropped as malformed or undeliverable.",
		}),
		activeChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_channels",
			Help:      "Channels with a running consumer relay on this instance.",
		}),
		lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_lifecycle_total",
			Help:      "Channel lifecycle transitions.",
		}, []string{"event"}),
	}

	for _, c := range []prometheus.Collector{
		o.published, o.duplicates, o.deliveryFailed, o.relayed,
		o.relayDropped, o.activeChannels, o.lifecycle,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// MessagePublished counts a successful publish.
func (o *Observer) MessagePublished(_ string) { o.published.Inc() }

// DuplicateSuppressed counts a suppressed duplicate.
func (o *Observer) DuplicateSuppressed(_ string) { o.duplicates.Inc() }

// DeliveryFailed counts a failed publish.
func (o *Observer) DeliveryFailed(_ string, _ error) { o.deliveryFailed.Inc() }

// MessageRelayed counts a forwarded broker delivery.
func (o *Observer) MessageRelayed(_ string) { o.relayed.Inc() }

// RelayDropped counts a dropped broker delivery.
func (o *Observer) RelayDropped(_ string, _ error) { o.relayDropped.Inc() }

// ChannelActivated tracks a new active channel.
func (o *Observer) ChannelActivated(_ string) {
	o.activeChannels.Inc()
	o.lifecycle.WithLabelValues("activated").Inc()
}

// ChannelTornDown tracks a released channel.
func (o *Observer) ChannelTornDown(_ string) {
	o.activeChannels.Dec()
	o.lifecycle.WithLabelValues("torn_down").Inc()
}
