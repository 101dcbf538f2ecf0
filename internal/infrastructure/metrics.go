package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LifecycleMetrics counts license lifecycle outcomes. Outcome is "success"
// or the failure class, so operators can alert on provider vs persistence
// failures separately.
type LifecycleMetrics struct {
	Operations          *prometheus.CounterVec
	ProviderCalls       *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	SagaCompensations   prometheus.Counter
}

// NewLifecycleMetrics registers the lifecycle counters with the given
// registerer. Pass prometheus.DefaultRegisterer in production.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	factory := promauto.With(reg)

	return &LifecycleMetrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keygate_lifecycle_operations_total",
			Help: "License lifecycle operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keygate_provider_calls_total",
			Help: "License provider API calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		PersistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "keygate_persistence_failures_total",
			Help: "Repository writes that failed after a provider mutation succeeded",
		}),
		SagaCompensations: factory.NewCounter(prometheus.CounterOpts{
			Name: "keygate_saga_compensations_total",
			Help: "Compensating actions executed during failed provisioning sagas",
		}),
	}
}

// RecordOperation counts one lifecycle operation outcome
func (m *LifecycleMetrics) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// RecordProviderCall counts one provider API call outcome
func (m *LifecycleMetrics) RecordProviderCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(operation, outcome).Inc()
}
