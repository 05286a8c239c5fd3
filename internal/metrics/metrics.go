// Package metrics exposes the Prometheus counters and gauges SPEC_FULL.md's
// supplemented observability surface names, grounded on the teacher's
// pervasive prometheus/client_golang usage across every internal variant.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the Gateway process registers.
type Metrics struct {
	ActiveSockets          prometheus.Gauge
	ActiveRooms            prometheus.Gauge
	EventBusPublished      *prometheus.CounterVec
	EventBusDelivered      *prometheus.CounterVec
	SlowConsumerDisconnects prometheus.Counter
	AllocatorRetries       prometheus.Counter
	AllocatorContended     prometheus.Counter
	MembershipCacheHits    prometheus.Counter
	MembershipCacheMisses  prometheus.Counter
	HTTPRequestDuration    *prometheus.HistogramVec
}

// New constructs and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echo", Name: "active_sockets", Help: "Currently connected Gateway sessions.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echo", Name: "active_rooms", Help: "Topics with at least one local subscriber.",
		}),
		EventBusPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo", Name: "eventbus_published_total", Help: "Events published to the bus, by event name.",
		}, []string{"event"}),
		EventBusDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo", Name: "eventbus_delivered_total", Help: "Events delivered to a local socket, by event name.",
		}, []string{"event"}),
		SlowConsumerDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echo", Name: "slow_consumer_disconnects_total", Help: "Sessions evicted for a full outbound queue.",
		}),
		AllocatorRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echo", Name: "allocator_retries_total", Help: "Sequence allocator retries due to collision.",
		}),
		AllocatorContended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echo", Name: "allocator_contended_total", Help: "Sequence allocator exhausted its retry budget.",
		}),
		MembershipCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echo", Name: "membership_cache_hits_total", Help: "Membership Oracle cache hits.",
		}),
		MembershipCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echo", Name: "membership_cache_misses_total", Help: "Membership Oracle cache misses.",
		}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "echo", Name: "http_request_duration_seconds", Help: "HTTP handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		m.ActiveSockets, m.ActiveRooms, m.EventBusPublished, m.EventBusDelivered,
		m.SlowConsumerDisconnects, m.AllocatorRetries, m.AllocatorContended,
		m.MembershipCacheHits, m.MembershipCacheMisses, m.HTTPRequestDuration,
	)
	return m
}
