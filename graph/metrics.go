package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes recorded by Metrics.
const (
	outcomeSuccess        = "success"
	outcomeAPIError       = "api_error"
	outcomeStatusError    = "status_error"
	outcomeTransportError = "transport_error"
	outcomeDecodeError    = "decode_error"
	outcomeSigningError   = "signing_error"
)

// Metrics counts and times requests made by a Client.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the request collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fuss",
			Subsystem: "graph",
			Name:      "requests_total",
			Help:      "Graph API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fuss",
			Subsystem: "graph",
			Name:      "request_duration_seconds",
			Help:      "Time from sending a Graph API request to decoding its response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if outcome != outcomeSigningError {
		m.duration.WithLabelValues(method).Observe(d.Seconds())
	}
}
