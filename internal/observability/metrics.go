package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the client-side Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	GatewayRequests  *prometheus.CounterVec
	GatewayDurations *prometheus.HistogramVec
	Recomputes       *prometheus.CounterVec
	StaleTransitions *prometheus.CounterVec
	LedgerEntries    prometheus.Gauge
	DashboardClients prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesim_gateway_requests_total",
		Help: "Simulation service calls, labeled by operation and outcome.",
	}, []string{"op", "outcome"}), "tradesim_gateway_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradesim_gateway_request_duration_seconds",
		Help:    "Simulation service call latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"op"}), "tradesim_gateway_request_duration_seconds")
	if err != nil {
		return nil, err
	}
	recomputes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesim_recomputes_total",
		Help: "Simulation runs, labeled by trigger reason and outcome.",
	}, []string{"reason", "outcome"}), "tradesim_recomputes_total")
	if err != nil {
		return nil, err
	}
	stale, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesim_stale_transitions_total",
		Help: "Times a displayed result was invalidated, labeled by cause.",
	}, []string{"cause"}), "tradesim_stale_transitions_total")
	if err != nil {
		return nil, err
	}
	ledger, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradesim_ledger_entries",
		Help: "Current number of geo actions in the session ledger.",
	}), "tradesim_ledger_entries")
	if err != nil {
		return nil, err
	}
	clients, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradesim_dashboard_clients",
		Help: "Connected dashboard websocket clients.",
	}), "tradesim_dashboard_clients")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		GatewayRequests:  requests,
		GatewayDurations: durations,
		Recomputes:       recomputes,
		StaleTransitions: stale,
		LedgerEntries:    ledger,
		DashboardClients: clients,
	}, nil
}

func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveRequest(op, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.GatewayRequests.WithLabelValues(op, outcome).Inc()
	c.GatewayDurations.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRecompute(reason, outcome string) {
	if c == nil {
		return
	}
	c.Recomputes.WithLabelValues(reason, outcome).Inc()
}

func (c *Collector) ObserveStale(cause string) {
	if c == nil {
		return
	}
	c.StaleTransitions.WithLabelValues(cause).Inc()
}

func (c *Collector) SetLedgerSize(n int) {
	if c == nil {
		return
	}
	c.LedgerEntries.Set(float64(n))
}

func (c *Collector) SetClients(n int) {
	if c == nil {
		return
	}
	c.DashboardClients.Set(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
