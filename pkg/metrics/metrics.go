// Package metrics exposes Prometheus counters for the chat router.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes of an inbound remote frame.
const (
	RemoteDelivered = "delivered"
	RemoteStale     = "stale"
	RemoteUnknown   = "unknown_channel"
	RemoteMalformed = "malformed"
	RemoteCancelled = "cancelled"
)

// Metrics holds Prometheus metric descriptors for the router. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	messagesTotal   *prometheus.CounterVec
	filteredTotal   *prometheus.CounterVec
	remoteTotal     *prometheus.CounterVec
	broadcastsTotal *prometheus.CounterVec
	directTotal     prometheus.Counter
	deliveriesTotal prometheus.Counter
	channelsLoaded  prometheus.Gauge
	uptimeSeconds   prometheus.Gauge
	memoryHeapBytes prometheus.Gauge
	goroutines      prometheus.Gauge
}

// New creates the metrics on a private registry.
func New(startTime time.Time) *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: startTime,
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanrelay_messages_total",
			Help: "Channel messages dispatched locally, by channel.",
		}, []string{"channel"}),
		filteredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanrelay_filtered_total",
			Help: "Channel messages rejected by the filter chain, by visibility.",
		}, []string{"visibility"}),
		remoteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanrelay_remote_frames_total",
			Help: "Inbound cross-process frames, by outcome.",
		}, []string{"outcome"}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanrelay_broadcasts_total",
			Help: "Outbound cross-process frames handed to the transport, by channel.",
		}, []string{"channel"}),
		directTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanrelay_direct_messages_total",
			Help: "Private messages sent.",
		}),
		deliveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanrelay_deliveries_total",
			Help: "Individual message deliveries to participants.",
		}),
		channelsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanrelay_channels_loaded",
			Help: "Channels in the active registry snapshot.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanrelay_uptime_seconds",
			Help: "Process uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanrelay_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanrelay_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	m.registry.MustRegister(
		m.messagesTotal,
		m.filteredTotal,
		m.remoteTotal,
		m.broadcastsTotal,
		m.directTotal,
		m.deliveriesTotal,
		m.channelsLoaded,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Message(channel string, deliveries int) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(channel).Inc()
	m.deliveriesTotal.Add(float64(deliveries))
}

func (m *Metrics) Filtered(visible bool) {
	if m == nil {
		return
	}
	v := "silent"
	if visible {
		v = "visible"
	}
	m.filteredTotal.WithLabelValues(v).Inc()
}

func (m *Metrics) Remote(outcome string, deliveries int) {
	if m == nil {
		return
	}
	m.remoteTotal.WithLabelValues(outcome).Inc()
	m.deliveriesTotal.Add(float64(deliveries))
}

func (m *Metrics) Broadcast(channel string) {
	if m == nil {
		return
	}
	m.broadcastsTotal.WithLabelValues(channel).Inc()
}

func (m *Metrics) Direct(deliveries int) {
	if m == nil {
		return
	}
	m.directTotal.Inc()
	m.deliveriesTotal.Add(float64(deliveries))
}

func (m *Metrics) ChannelsLoaded(n int) {
	if m == nil {
		return
	}
	m.channelsLoaded.Set(float64(n))
}

// Update refreshes the process gauges.
func (m *Metrics) Update() {
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		inner.ServeHTTP(w, r)
	})
}
