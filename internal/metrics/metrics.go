package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Store collects plot store counters. A nil *Store records nothing, so
// callers never need to check whether metrics are enabled.
type Store struct {
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	statements    *prometheus.CounterVec
	statementErrs *prometheus.CounterVec
	ringsScanned  prometheus.Counter
	ringsSkipped  prometheus.Counter
	allocations   *prometheus.CounterVec
}

// NewStore registers the plot store collectors on reg.
func NewStore(reg prometheus.Registerer, backend string) (*Store, error) {
	labels := prometheus.Labels{"backend": backend}
	m := &Store{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "plots_cache_hits_total",
			Help:        "Plot lookups answered from the cache",
			ConstLabels: labels,
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "plots_cache_misses_total",
			Help:        "Plot lookups that had to query storage",
			ConstLabels: labels,
		}),
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "plots_statements_total",
			Help:        "Statements executed by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		statementErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "plots_statement_errors_total",
			Help:        "Statements that failed by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		ringsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "plots_rings_scanned_total",
			Help:        "Rings queried by next-free-plot searches",
			ConstLabels: labels,
		}),
		ringsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "plots_rings_full_total",
			Help:        "Rings skipped because every cell was claimed",
			ConstLabels: labels,
		}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "plots_next_free_total",
			Help:        "Next-free-plot searches by result",
			ConstLabels: labels,
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{
		m.cacheHits, m.cacheMisses, m.statements, m.statementErrs,
		m.ringsScanned, m.ringsSkipped, m.allocations,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Store) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Store) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Store) Statement(kind string, err error) {
	if m == nil {
		return
	}
	m.statements.WithLabelValues(kind).Inc()
	if err != nil {
		m.statementErrs.WithLabelValues(kind).Inc()
	}
}

func (m *Store) RingScanned(full bool) {
	if m == nil {
		return
	}
	m.ringsScanned.Inc()
	if full {
		m.ringsSkipped.Inc()
	}
}

// Allocation records the outcome of a next-free search: "found", "exhausted" or "error".
func (m *Store) Allocation(result string) {
	if m != nil {
		m.allocations.WithLabelValues(result).Inc()
	}
}
