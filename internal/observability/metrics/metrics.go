package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments for the payout engine.
type Metrics struct {
	payoutTransitions *prometheus.CounterVec
	poolCalculations  *prometheus.CounterVec
	aggregationRuns   *prometheus.CounterVec
	distributedCents  prometheus.Counter
}

// New registers and returns the engine instruments.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		payoutTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revenue_payout_transitions_total",
			Help: "Payout workflow transitions by transition and result.",
		}, []string{"transition", "result"}),
		poolCalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revenue_pool_calculations_total",
			Help: "Pool distribution calculation runs by result.",
		}, []string{"result"}),
		aggregationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revenue_engagement_aggregations_total",
			Help: "Engagement aggregation runs by result.",
		}, []string{"result"}),
		distributedCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "revenue_pool_distributed_minor_units_total",
			Help: "Total minor units distributed to creator payouts.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.payoutTransitions,
		m.poolCalculations,
		m.aggregationRuns,
		m.distributedCents,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObservePayoutTransition(transition, result string) {
	if m == nil {
		return
	}
	m.payoutTransitions.WithLabelValues(transition, result).Inc()
}

func (m *Metrics) ObservePoolCalculation(result string) {
	if m == nil {
		return
	}
	m.poolCalculations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAggregationRun(result string) {
	if m == nil {
		return
	}
	m.aggregationRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) AddDistributedAmount(minorUnits int64) {
	if m == nil || minorUnits <= 0 {
		return
	}
	m.distributedCents.Add(float64(minorUnits))
}
