package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dirmesh"

// Registry holds all node metrics.
//
// Every recording method is safe to call on a nil *Registry, so components
// can run without metrics in tests.
type Registry struct {
	registry *prometheus.Registry

	// Connection metrics
	ConnectionsTotal  *prometheus.CounterVec
	ActiveConnections *prometheus.GaugeVec

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Federation metrics
	Peers          *prometheus.GaugeVec
	ExchangesTotal *prometheus.CounterVec
	RelayQueries   *prometheus.CounterVec
	RelayedTotal   prometheus.Counter

	// Subscription metrics
	Subscribers      prometheus.Gauge
	Deliveries       prometheus.Counter
	RelayConnections *prometheus.GaugeVec

	gaugeFuncMu sync.Mutex
}

// NewRegistry creates a registry with the node metrics and the Go runtime
// and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Accepted sockets by listener and admission result.",
		}, []string{"listener", "result"}),
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Connections currently being served.",
		}, []string{"listener"}),

		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled by kind and outcome.",
		}, []string{"command", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from decode to the last response frame.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),

		Peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Known peers per federation.",
		}, []string{"federation"}),
		ExchangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Outbound peer list exchanges by result.",
		}, []string{"federation", "result"}),
		RelayQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_queries_total",
			Help:      "Per-peer relayed queries by result.",
		}, []string{"federation", "result"}),
		RelayedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_resources_total",
			Help:      "Resources received from peers for relayed queries.",
		}),

		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Connections holding at least one subscription.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_deliveries_total",
			Help:      "Resources pushed to subscribers.",
		}),
		RelayConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_connections",
			Help:      "Open outbound subscription relay connections.",
		}, []string{"federation"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ConnectionsTotal,
		r.ActiveConnections,
		r.CommandsTotal,
		r.CommandDuration,
		r.Peers,
		r.ExchangesTotal,
		r.RelayQueries,
		r.RelayedTotal,
		r.Subscribers,
		r.Deliveries,
		r.RelayConnections,
	)

	return r
}

// Handler returns an HTTP handler exposing this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RegisterGaugeFunc registers a gauge whose value is read at scrape time.
// Registering the same name twice is ignored.
func (r *Registry) RegisterGaugeFunc(name, help string, fn func() float64) {
	if r == nil {
		return
	}
	r.gaugeFuncMu.Lock()
	defer r.gaugeFuncMu.Unlock()

	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
	if err := r.registry.Register(g); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return
		}
		panic(err)
	}
}

// ============================================================================
// Recording helpers
// ============================================================================

// RecordConnection counts an accepted socket; result is "accepted" or "rejected".
func (r *Registry) RecordConnection(listener, result string) {
	if r == nil {
		return
	}
	r.ConnectionsTotal.WithLabelValues(listener, result).Inc()
}

// ConnectionOpened tracks a connection entering service.
func (r *Registry) ConnectionOpened(listener string) {
	if r == nil {
		return
	}
	r.ActiveConnections.WithLabelValues(listener).Inc()
}

// ConnectionClosed tracks a connection leaving service.
func (r *Registry) ConnectionClosed(listener string) {
	if r == nil {
		return
	}
	r.ActiveConnections.WithLabelValues(listener).Dec()
}

// RecordCommand counts a handled command; status is "success" or "error".
func (r *Registry) RecordCommand(command, status string) {
	if r == nil {
		return
	}
	r.CommandsTotal.WithLabelValues(command, status).Inc()
}

// ObserveCommandDuration records how long a command took in seconds.
func (r *Registry) ObserveCommandDuration(command string, seconds float64) {
	if r == nil {
		return
	}
	r.CommandDuration.WithLabelValues(command).Observe(seconds)
}

// SetPeers sets the peer count of a federation.
func (r *Registry) SetPeers(federation string, n int) {
	if r == nil {
		return
	}
	r.Peers.WithLabelValues(federation).Set(float64(n))
}

// RecordExchange counts an outbound exchange; result is "ok", "rejected" or "unreachable".
func (r *Registry) RecordExchange(federation, result string) {
	if r == nil {
		return
	}
	r.ExchangesTotal.WithLabelValues(federation, result).Inc()
}

// RecordRelayQuery counts one per-peer relayed query; result is "ok" or "error".
func (r *Registry) RecordRelayQuery(federation, result string) {
	if r == nil {
		return
	}
	r.RelayQueries.WithLabelValues(federation, result).Inc()
}

// AddRelayed counts resources received from peers.
func (r *Registry) AddRelayed(n int) {
	if r == nil {
		return
	}
	r.RelayedTotal.Add(float64(n))
}

// IncSubscribers tracks a new subscriber.
func (r *Registry) IncSubscribers() {
	if r == nil {
		return
	}
	r.Subscribers.Inc()
}

// DecSubscribers tracks a removed subscriber.
func (r *Registry) DecSubscribers() {
	if r == nil {
		return
	}
	r.Subscribers.Dec()
}

// IncDeliveries counts one push to a subscriber.
func (r *Registry) IncDeliveries() {
	if r == nil {
		return
	}
	r.Deliveries.Inc()
}

// SetRelayConnections sets the number of open relay connections of a federation.
func (r *Registry) SetRelayConnections(federation string, n int) {
	if r == nil {
		return
	}
	r.RelayConnections.WithLabelValues(federation).Set(float64(n))
}
