package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the scanner's Prometheus collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	cycleDuration prometheus.Histogram
	cycles        *prometheus.CounterVec
	overruns      prometheus.Counter
	skipped       *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	closes        *prometheus.CounterVec
	openPositions *prometheus.GaugeVec
	breakerOpen   prometheus.Gauge
}

// New registers the collectors. Each instance owns its registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "climaxhunter_cycle_duration_seconds",
			Help:    "Wall-clock duration of one scan cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "climaxhunter_cycles_total",
			Help: "Completed scan cycles by result",
		}, []string{"result"}),
		overruns: f.NewCounter(prometheus.CounterOpts{
			Name: "climaxhunter_cycle_overruns_total",
			Help: "Cycles that took longer than the refresh period",
		}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "climaxhunter_symbols_skipped_total",
			Help: "Symbols skipped per phase and reason",
		}, []string{"phase", "reason"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "climaxhunter_alerts_total",
			Help: "Alerts created by direction",
		}, []string{"direction"}),
		closes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "climaxhunter_closes_total",
			Help: "Automatic closes by reason and position state",
		}, []string{"reason", "state"}),
		openPositions: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "climaxhunter_open_positions",
			Help: "Open positions by state",
		}, []string{"state"}),
		breakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "climaxhunter_exchange_breaker_open",
			Help: "1 while the exchange circuit breaker is open",
		}),
	}
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(d time.Duration, err error, overrun bool) {
	m.cycleDuration.Observe(d.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cycles.WithLabelValues(result).Inc()
	if overrun {
		m.overruns.Inc()
	}
}

func (m *Metrics) Skipped(phase, reason string) {
	m.skipped.WithLabelValues(phase, reason).Inc()
}

func (m *Metrics) AlertCreated(direction string) {
	m.alerts.WithLabelValues(direction).Inc()
}

func (m *Metrics) PositionClosed(reason, state string) {
	m.closes.WithLabelValues(reason, state).Inc()
}

// SetOpen sets the open position gauge for one state.
func (m *Metrics) SetOpen(state string, n int) {
	m.openPositions.WithLabelValues(state).Set(float64(n))
}

func (m *Metrics) SetBreakerOpen(open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.breakerOpen.Set(v)
}
