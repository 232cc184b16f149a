package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Reservation outcomes.
const (
	ReservationReserved     = "reserved"
	ReservationInsufficient = "insufficient_stock"
	ReservationFailed       = "failed"
)

// OrderMetrics tracks reservation outcomes and order status transitions.
type OrderMetrics struct {
	reservations *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	compensated  prometheus.Counter
}

// NewOrderMetrics registers the order lifecycle metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhold_reservations_total",
		Help: "Checkout reservation attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhold_order_transitions_total",
		Help: "Order status transitions applied.",
	}, []string{"from", "to"})
	compensated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockhold_units_compensated_total",
		Help: "Units of work rolled back through compensations.",
	})
	reg.MustRegister(reservations, transitions, compensated)
	return &OrderMetrics{
		reservations: reservations,
		transitions:  transitions,
		compensated:  compensated,
	}
}

func (m *OrderMetrics) ObserveReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) ObserveTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncCompensated counts a unit that failed without a transaction.
func (m *OrderMetrics) IncCompensated() {
	if m == nil || m.compensated == nil {
		return
	}
	m.compensated.Inc()
}
