package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "referral"

// Collector owns a private registry so tests and multiple servers in one
// process do not collide on the global default registry. All methods are safe
// on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	ReferralsCreatedTotal prometheus.Counter
	PartyResolutionsTotal *prometheus.CounterVec
	CacheLookupsTotal     *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		ReferralsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referrals_created_total",
			Help:      "Total number of referrals persisted.",
		}),

		PartyResolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "party_resolutions_total",
			Help:      "Referrer and patient resolutions by outcome (reused or created).",
		}, []string{"kind", "outcome"}),

		CacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Referral cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
	}
}

// TrackOpenConnections exposes fn as the referral_db_open_connections gauge.
func (c *Collector) TrackOpenConnections(fn func() float64) {
	if c == nil {
		return
	}
	promauto.With(c.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "open_connections",
		Help:      "Current number of open database connections.",
	}, fn)
}

func (c *Collector) ReferralCreated() {
	if c == nil {
		return
	}
	c.ReferralsCreatedTotal.Inc()
}

// PartyResolved records whether a referrer or patient was reused or created.
func (c *Collector) PartyResolved(kind string, reused bool) {
	if c == nil {
		return
	}
	outcome := "created"
	if reused {
		outcome = "reused"
	}
	c.PartyResolutionsTotal.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) CacheLookup(result string) {
	if c == nil {
		return
	}
	c.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// Gatherer exposes the underlying registry.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
