// Package metrics holds the Prometheus collectors for fulfillment, stock
// compensation and courier calls. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess    = "success"
	OutcomeOutOfStock = "out_of_stock"
	OutcomeInvalid    = "invalid"
	OutcomeInProgress = "in_progress"
	OutcomeRemote     = "remote_error"
	OutcomeError      = "error"

	CompensationRestored = "restored"
	CompensationFailed   = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	FulfillmentsTotal       *prometheus.CounterVec
	StockAllocationsTotal   prometheus.Counter
	StockCompensationsTotal *prometheus.CounterVec
	CourierRequestDuration  *prometheus.HistogramVec
}

type Config struct {
	ServiceName string
	Namespace   string
}

func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "fulfillment",
	}
}

func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	constLabels := prometheus.Labels{"service": config.ServiceName}

	m := &Metrics{registry: registry}

	m.FulfillmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "fulfillments_total",
			Help:        "Fulfillment attempts by outcome",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)

	m.StockAllocationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "stock_allocations_total",
			Help:        "Committed (branch, variant) stock decrements",
			ConstLabels: constLabels,
		},
	)

	m.StockCompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "stock_compensations_total",
			Help:        "Stock restorations after failed shipment creation",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)

	m.CourierRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "courier_request_duration_seconds",
			Help:        "Courier aggregator request duration in seconds",
			Buckets:     []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		},
		[]string{"operation", "status"},
	)

	registry.MustRegister(
		m.FulfillmentsTotal,
		m.StockAllocationsTotal,
		m.StockCompensationsTotal,
		m.CourierRequestDuration,
	)

	return m
}

func (m *Metrics) RecordFulfillment(outcome string) {
	if m == nil {
		return
	}
	m.FulfillmentsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordAllocations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.StockAllocationsTotal.Add(float64(n))
}

func (m *Metrics) RecordCompensation(result string) {
	if m == nil {
		return
	}
	m.StockCompensationsTotal.WithLabelValues(result).Inc()
}

// RecordCourierRequest labels the call with the HTTP status code, or
// "error" when no response arrived.
func (m *Metrics) RecordCourierRequest(operation string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.CourierRequestDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
