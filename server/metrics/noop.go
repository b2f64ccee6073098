package metrics

import (
	"net/http"
	"time"
)

type NoopMetricsService struct {
}

func newNoopMetricsService() *NoopMetricsService {
	return &NoopMetricsService{}
}

func (nms *NoopMetricsService) IncPollCyclesTotal(serviceBus string) {
	// no-op
}

func (nms *NoopMetricsService) IncPollFailuresTotal(serviceBus string, reason string) {
	// no-op
}

func (nms *NoopMetricsService) ObservePollDuration(serviceBus string, duration time.Duration) {
	// no-op
}

func (nms *NoopMetricsService) SetUnprocessedCount(category string, count uint32) {
	// no-op
}

func (nms *NoopMetricsService) SetItemsCount(count int) {
	// no-op
}

func (nms *NoopMetricsService) IncMutationsTotal(operation string, result string) {
	// no-op
}

func (nms *NoopMetricsService) Handler() http.Handler {
	return http.NotFoundHandler()
}
