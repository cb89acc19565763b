// Package metrics содержит метрики Prometheus для конвейера отправки заказов.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics собирает счётчики попыток записи в леджер и итогов заказов.
type Metrics struct {
	attempts     *prometheus.CounterVec
	items        *prometheus.CounterVec
	batches      *prometheus.CounterVec
	callDuration prometheus.Histogram
	gatherer     prometheus.Gatherer
}

// New создаёт и регистрирует метрики в указанном реестре.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderprocessor",
			Name:      "ledger_attempts_total",
			Help:      "Ledger record attempts by result.",
		}, []string{"result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderprocessor",
			Name:      "items_total",
			Help:      "Order items by final outcome.",
		}, []string{"outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderprocessor",
			Name:      "orders_total",
			Help:      "Submitted orders by status label and HTTP status code.",
		}, []string{"status", "code"}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "orderprocessor",
			Name:      "ledger_call_duration_seconds",
			Help:      "Duration of a single ledger call.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		gatherer: reg,
	}

	reg.MustRegister(m.attempts, m.items, m.batches, m.callDuration)

	return m
}

// ObserveAttempt учитывает одну попытку записи в леджер.
func (m *Metrics) ObserveAttempt(result string, seconds float64) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
	m.callDuration.Observe(seconds)
}

// ObserveItem учитывает итог доставки позиции.
func (m *Metrics) ObserveItem(outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(outcome).Inc()
}

// ObserveBatch учитывает итог обработки заказа.
func (m *Metrics) ObserveBatch(status, code string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(status, code).Inc()
}

// Handler возвращает HTTP-обработчик для выдачи метрик.
// Сжатие ответа выполняет общий gzip middleware роутера.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{DisableCompression: true})
}
