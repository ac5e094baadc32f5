package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusSink exports records as Prometheus series.
type PrometheusSink struct {
	fixes   *prometheus.CounterVec
	tokens  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewPrometheusSink registers the fix metrics on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		fixes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "codefix",
				Name:      "fixes_total",
				Help:      "Total number of completed fixes",
			},
			[]string{"language", "cwe", "model"},
		),
		tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "codefix",
				Name:      "tokens_total",
				Help:      "Total number of model tokens by direction",
			},
			[]string{"model", "direction"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "codefix",
				Name:      "generation_latency_seconds",
				Help:      "Model generation latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),
	}
}

// Write updates the series for r.
func (p *PrometheusSink) Write(_ context.Context, r Record) error {
	p.fixes.WithLabelValues(r.Language, r.CWE, r.ModelUsed).Inc()
	p.tokens.WithLabelValues(r.ModelUsed, "input").Add(float64(r.InputTokens))
	p.tokens.WithLabelValues(r.ModelUsed, "output").Add(float64(r.OutputTokens))
	p.latency.WithLabelValues(r.ModelUsed).Observe(float64(r.LatencyMS) / 1000)
	return nil
}

// Close is a no-op; series stay registered.
func (p *PrometheusSink) Close() error {
	return nil
}
