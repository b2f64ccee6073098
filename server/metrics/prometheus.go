package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PrometheusMetricsService struct {
	registry *prometheus.Registry

	pollCyclesTotal   *prometheus.CounterVec
	pollFailuresTotal *prometheus.CounterVec
	pollDuration      *prometheus.HistogramVec
	unprocessedCount  *prometheus.GaugeVec
	itemsCount        prometheus.Gauge
	mutationsTotal    *prometheus.CounterVec
}

func newPrometheusMetricsService() *PrometheusMetricsService {
	srv := &PrometheusMetricsService{
		// own registry instead of the global one, as the plugin can be activated several times within one process
		registry: prometheus.NewRegistry(),

		pollCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sbmq_poll_cycles_total",
				Help: "Total number of reconciliation cycles run by the poll loop",
			},
			[]string{"service_bus"},
		),

		pollFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sbmq_poll_failures_total",
				Help: "Total number of poll cycles that failed to reach the backend or aborted with an error",
			},
			[]string{"service_bus", "reason"},
		),

		pollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sbmq_poll_duration_seconds",
				Help:    "Duration of reconciliation cycles",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service_bus"},
		),

		// category label values are Command, Event, Message and Error
		unprocessedCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sbmq_unprocessed_messages",
				Help: "Number of unprocessed messages per queue category as of the last poll cycle",
			},
			[]string{"category"},
		),

		itemsCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sbmq_items",
				Help: "Number of items held in the monitored item list, processed ones included",
			},
		),

		// operation is the name of the destructive operation, e.g. purge_all or move_error_to_origin
		mutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sbmq_mutations_total",
				Help: "Total number of purge and requeue operations by result",
			},
			[]string{"operation", "result"},
		),
	}

	srv.registry.MustRegister(srv.pollCyclesTotal)
	srv.registry.MustRegister(srv.pollFailuresTotal)
	srv.registry.MustRegister(srv.pollDuration)
	srv.registry.MustRegister(srv.unprocessedCount)
	srv.registry.MustRegister(srv.itemsCount)
	srv.registry.MustRegister(srv.mutationsTotal)

	return srv
}

func (pms *PrometheusMetricsService) IncPollCyclesTotal(serviceBus string) {
	pms.pollCyclesTotal.WithLabelValues(serviceBus).Inc()
}

func (pms *PrometheusMetricsService) IncPollFailuresTotal(serviceBus string, reason string) {
	pms.pollFailuresTotal.WithLabelValues(serviceBus, reason).Inc()
}

func (pms *PrometheusMetricsService) ObservePollDuration(serviceBus string, duration time.Duration) {
	pms.pollDuration.WithLabelValues(serviceBus).Observe(duration.Seconds())
}

func (pms *PrometheusMetricsService) SetUnprocessedCount(category string, count uint32) {
	pms.unprocessedCount.WithLabelValues(category).Set(float64(count))
}

func (pms *PrometheusMetricsService) SetItemsCount(count int) {
	pms.itemsCount.Set(float64(count))
}

func (pms *PrometheusMetricsService) IncMutationsTotal(operation string, result string) {
	pms.mutationsTotal.WithLabelValues(operation, result).Inc()
}

func (pms *PrometheusMetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(pms.registry, promhttp.HandlerOpts{})
}
