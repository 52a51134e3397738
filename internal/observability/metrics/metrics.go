package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics exposes counters for the purchase reconciliation flow.
type Metrics struct {
	OrdersCreated  prometheus.Counter
	WebhookEvents  *prometheus.CounterVec
	CheckoutCalls  *prometheus.CounterVec
	TokensCredited prometheus.Counter
	OrdersExpired  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		OrdersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aipasta_orders_created_total",
			Help: "Purchase orders created in pending state.",
		}),
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aipasta_webhook_events_total",
			Help: "Webhook deliveries by outcome.",
		}, []string{"result"}),
		CheckoutCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aipasta_checkout_verifications_total",
			Help: "Client checkout verification calls by outcome.",
		}, []string{"result"}),
		TokensCredited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aipasta_tokens_credited_total",
			Help: "Tokens credited through captured orders.",
		}),
		OrdersExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aipasta_orders_expired_total",
			Help: "Stale orders expired by the sweep.",
		}),
	}
}

func (m *Metrics) RecordWebhook(result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCheckout(result string) {
	if m == nil {
		return
	}
	m.CheckoutCalls.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCredit(tokens int64) {
	if m == nil {
		return
	}
	m.TokensCredited.Add(float64(tokens))
}

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)
