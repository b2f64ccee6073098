package metrics

import (
	"net/http"
	"time"
)

const (
	ConnectionFailedReason = "connection_failed"
	CycleErrorReason       = "cycle_error"

	SucceededResult = "succeeded"
	FailedResult    = "failed"
	SkippedResult   = "skipped"
)

type Service interface {
	IncPollCyclesTotal(serviceBus string)
	IncPollFailuresTotal(serviceBus string, reason string)
	ObservePollDuration(serviceBus string, duration time.Duration)
	SetUnprocessedCount(category string, count uint32)
	SetItemsCount(count int)
	IncMutationsTotal(operation string, result string)
	Handler() http.Handler
}

func NewMetricsService(metricsEnabled bool) Service {
	if metricsEnabled {
		return newPrometheusMetricsService()
	}
	return newNoopMetricsService()
}
