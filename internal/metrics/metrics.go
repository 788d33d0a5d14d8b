// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess      = "success"
	OutcomeLimitReached = "limit_reached"
	OutcomeDuplicate    = "duplicate"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)

// Metrics holds the counters recorded by the service layer.
type Metrics struct {
	registry *prometheus.Registry

	Redemptions      *prometheus.CounterVec
	Quotes           *prometheus.CounterVec
	VariantMutations *prometheus.CounterVec
	IntegrityWarns   *prometheus.CounterVec
}

// New registers the engine counters, plus Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promotion_engine",
			Name:      "redemptions_total",
			Help:      "Promotion redemption attempts by outcome.",
		}, []string{"outcome"}),
		Quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promotion_engine",
			Name:      "quotes_total",
			Help:      "Order quotes by applied discount source.",
		}, []string{"source"}),
		VariantMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promotion_engine",
			Name:      "variant_price_mutations_total",
			Help:      "Variant prices rewritten by direct promotions.",
		}, []string{"operation"}),
		IntegrityWarns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promotion_engine",
			Name:      "data_integrity_warnings_total",
			Help:      "Non-fatal data integrity warnings raised while pricing.",
		}, []string{"code"}),
	}

	reg.MustRegister(
		m.Redemptions,
		m.Quotes,
		m.VariantMutations,
		m.IntegrityWarns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
