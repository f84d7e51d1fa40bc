package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// OrdersCreated counts repair orders persisted together with their invoice.
	OrdersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "repair_orders_created_total",
		Help: "Repair orders created together with their invoice.",
	})

	// OrderFailures counts order/invoice creations that returned no ids, by
	// the step that failed.
	OrderFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "repair_order_failures_total",
		Help: "Failed repair order creations by step.",
	}, []string{"step"})

	// InvoicesPaid counts markAsPaid calls that reached the store.
	InvoicesPaid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invoices_paid_total",
		Help: "Invoices marked as paid.",
	})

	// ListenerFallbacks counts realtime streams that degraded to a one-shot
	// fetch, by stream name.
	ListenerFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listener_fallbacks_total",
		Help: "Realtime listeners that fell back to a one-shot query.",
	}, []string{"stream"})

	// ActiveListeners gauges open realtime subscriptions by stream name.
	ActiveListeners = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "active_listeners",
		Help: "Currently open realtime subscriptions.",
	}, []string{"stream"})

	// ChatSummaryHeals counts chat sessions recreated after the last-message
	// update failed.
	ChatSummaryHeals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_summary_heals_total",
		Help: "Chat sessions recreated by the last-message self-heal.",
	})
)

func init() {
	prometheus.MustRegister(OrdersCreated, OrderFailures, InvoicesPaid, ListenerFallbacks, ActiveListeners, ChatSummaryHeals)
}
