package observability

import (
	"context"

	"github.com/aretw0/twin3/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the twin3 Prometheus collectors.
type Metrics struct {
	Turns         *prometheus.CounterVec
	TurnDuration  prometheus.Histogram
	NodesShown    *prometheus.CounterVec
	GateRedirects prometheus.Counter
	Fallbacks     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twin3_turns_total",
				Help: "Total number of dispatched turns by outcome",
			},
			[]string{"outcome"},
		),
		TurnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "twin3_turn_duration_seconds",
				Help:    "Duration of a turn including the simulated delay",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
		),
		NodesShown: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twin3_node_visits_total",
				Help: "Total number of node responses shown",
			},
			[]string{"node_id"},
		),
		GateRedirects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "twin3_gate_redirects_total",
				Help: "Gated actions redirected to verification",
			},
		),
		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twin3_fallbacks_total",
				Help: "Unmatched turns by fallback branch",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Turns, m.TurnDuration, m.NodesShown, m.GateRedirects, m.Fallbacks)
	}
	return m
}

// Hooks records the metrics from engine events.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnEnd: func(ctx context.Context, e *domain.TurnEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.Turns.WithLabelValues(outcome).Inc()
			m.TurnDuration.Observe(e.Duration.Seconds())
		},
		OnNodeShown: func(ctx context.Context, e *domain.NodeEvent) {
			m.NodesShown.WithLabelValues(e.NodeID).Inc()
		},
		OnGateRedirect: func(ctx context.Context, e *domain.GateEvent) {
			m.GateRedirects.Inc()
		},
		OnFallback: func(ctx context.Context, e *domain.FallbackEvent) {
			m.Fallbacks.WithLabelValues(string(e.Kind)).Inc()
		},
	}
}
