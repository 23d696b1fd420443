package proxy

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeForwarded     = "forwarded"
	outcomeMiss          = "miss"
	outcomeUpstreamError = "upstream_error"
)

// Metrics counts dispatch outcomes. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	routes   prometheus.Gauge
}

// NewMetrics creates the proxy collectors and registers them on reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dockroute",
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Requests dispatched by the proxy, by outcome.",
			},
			[]string{"outcome"},
		),
		routes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dockroute",
			Subsystem: "proxy",
			Name:      "routes",
			Help:      "Subdomains currently registered in the routing table.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.routes)
	}
	return m
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) setRoutes(n int) {
	if m == nil {
		return
	}
	m.routes.Set(float64(n))
}
