package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderFlowMetrics counts the business transitions of the order pipeline.
type OrderFlowMetrics struct {
	checkouts     *prometheus.CounterVec
	paymentEvents *prometheus.CounterVec
	cancellations *prometheus.CounterVec
}

// NewOrderFlowMetrics registers the order flow metrics on the provided registerer.
func NewOrderFlowMetrics(reg prometheus.Registerer) *OrderFlowMetrics {
	if reg == nil {
		return &OrderFlowMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by result.",
	}, []string{"result"})
	paymentEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_events_total",
		Help: "Payment gateway events by outcome.",
	}, []string{"outcome"})
	cancellations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_cancellations_total",
		Help: "Order cancellations by result.",
	}, []string{"result"})
	reg.MustRegister(checkouts, paymentEvents, cancellations)
	return &OrderFlowMetrics{
		checkouts:     checkouts,
		paymentEvents: paymentEvents,
		cancellations: cancellations,
	}
}

// IncCheckout increments the checkout counter for the given result.
func (m *OrderFlowMetrics) IncCheckout(result string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncPaymentEvent increments the payment event counter for the given outcome.
func (m *OrderFlowMetrics) IncPaymentEvent(outcome string) {
	if m == nil || m.paymentEvents == nil {
		return
	}
	m.paymentEvents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncCancellation increments the cancellation counter for the given result.
func (m *OrderFlowMetrics) IncCancellation(result string) {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
