package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/metrics"
)

// Reconciler merges adapter fetch results into the item store.
type Reconciler struct {
	// cycleMu serializes whole cycles, fetch and merge together, so a stale
	// fetch can never be merged after a newer one.
	cycleMu sync.Mutex

	store   *ItemStore
	state   *MonitorState
	adapter func() backend.Adapter
	events  Listener
	logger  backend.Logger
	metrics metrics.Service
	now     func() time.Time
}

// NewReconciler creates a reconciler. adapter is called at the start of every
// cycle so that a backend switch takes effect on the next poll.
func NewReconciler(store *ItemStore, state *MonitorState, adapter func() backend.Adapter, events Listener, logger backend.Logger, metricsService metrics.Service) *Reconciler {
	if events == nil {
		events = BaseListener{}
	}
	if logger == nil {
		logger = backend.NopLogger{}
	}
	if metricsService == nil {
		metricsService = metrics.NewMetricsService(false)
	}

	return &Reconciler{
		store:   store,
		state:   state,
		adapter: adapter,
		events:  events,
		logger:  logger,
		metrics: metricsService,
		now:     time.Now,
	}
}

// RefreshUnprocessed runs one reconciliation cycle: it fetches every watched
// category in order and merges the result. It reports whether the item list
// or any count changed. A backend that cannot be reached is reported as a
// warning and leaves the affected queues untouched. Any other adapter error is returned.
func (r *Reconciler) RefreshUnprocessed(ctx context.Context) (bool, error) {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	adapter := r.adapter()
	if adapter == nil {
		return false, backend.ErrNotInitialized
	}

	queues := adapter.MonitorQueues()
	if len(queues) == 0 || !r.state.AnyWatched() {
		return false, nil
	}

	watchedAtFetch := r.state.Snapshot()
	known, previousCounts, previousErrorFetchCount := r.store.fetchHints()

	counts := previousCounts
	errorFetchCount := previousErrorFetchCount
	if !watchedAtFetch[backend.Error] {
		errorFetchCount = 0
	}

	var batch []backend.Item
	seen := make(map[string]struct{})
	unchanged := make(map[string]struct{})
	surfacedErrors := make(map[string]struct{})
	var errorFetchIDs map[string]struct{}

fetch:
	for i, category := range backend.Categories {
		if !watchedAtFetch[category] {
			continue
		}

		knownCount := previousCounts[category]
		if category == backend.Error {
			knownCount = previousErrorFetchCount
		}

		result, err := adapter.GetUnprocessedMessages(ctx, backend.FetchUnprocessedRequest{
			Category:   category,
			KnownItems: known,
			KnownCount: knownCount,
		})
		if err != nil {
			return false, errors.Wrapf(err, "failed to fetch unprocessed %s messages", category)
		}

		switch result.Status {
		case backend.FetchConnectionFailed:
			// the remaining categories are not fetched this cycle
			for _, c := range backend.Categories[i:] {
				markUnchanged(unchanged, queues, c)
			}
			r.reportConnectionFailure(adapter.Descriptor(), category)
			break fetch
		case backend.FetchNotChanged:
			markUnchanged(unchanged, queues, category)
			continue
		}

		if category == backend.Error {
			errorFetchCount = result.Count
			errorFetchIDs = make(map[string]struct{}, len(result.Items))
		} else {
			counts[category] = result.Count
		}

		for _, item := range result.Items {
			if category == backend.Error {
				errorFetchIDs[item.ID] = struct{}{}
			} else if item.Queue.Category == backend.Error {
				surfacedErrors[item.ID] = struct{}{}
			}

			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			batch = append(batch, item.Clone())
		}
	}

	if errorFetchIDs == nil {
		// the Error category was not fetched: the known error items stand in for it
		errorFetchIDs = make(map[string]struct{})
		if watchedAtFetch[backend.Error] {
			for _, item := range known {
				if item.Queue.Category == backend.Error && !item.Processed {
					errorFetchIDs[item.ID] = struct{}{}
				}
			}
		}
	}

	extraErrors := uint32(0)
	for id := range surfacedErrors {
		if _, ok := errorFetchIDs[id]; !ok {
			extraErrors++
		}
	}
	counts[backend.Error] = errorFetchCount + extraErrors

	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].ArrivedTime.Before(batch[j].ArrivedTime)
	})

	changed := r.store.applyUnprocessed(r.state, watchedAtFetch, batch, unchanged, counts, errorFetchCount)
	r.publishGauges()

	return changed, nil
}

// RetrieveProcessed asks the adapter for items processed within window and
// adds those not already known. It reports whether the item list changed.
func (r *Reconciler) RetrieveProcessed(ctx context.Context, window time.Duration) (bool, error) {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	adapter := r.adapter()
	if adapter == nil {
		return false, backend.ErrNotInitialized
	}

	if len(adapter.MonitorQueues()) == 0 {
		return false, nil
	}

	since := r.now().Add(-window)
	known := r.store.Snapshot()

	var fetched []backend.Item
	for _, category := range r.state.Watched() {
		result, err := adapter.GetProcessedMessages(ctx, category, since, known)
		if err != nil {
			return false, errors.Wrapf(err, "failed to fetch processed %s messages", category)
		}
		if result.Status == backend.FetchConnectionFailed {
			r.reportConnectionFailure(adapter.Descriptor(), category)
			break
		}
		fetched = append(fetched, result.Items...)
	}

	changed := r.store.applyProcessed(r.state, fetched)
	r.publishGauges()

	return changed, nil
}

func (r *Reconciler) reportConnectionFailure(descriptor backend.Descriptor, category backend.Category) {
	message := fmt.Sprintf("Could not connect to %s while fetching %s messages", descriptor, category)
	r.logger.Warn(message, "serviceBus", descriptor.String(), "category", category.String())
	r.metrics.IncPollFailuresTotal(descriptor.String(), metrics.ConnectionFailedReason)
	r.events.Warning(WarningEvent{Message: message})
}

func (r *Reconciler) publishGauges() {
	counts := r.store.Counts()
	for _, c := range backend.Categories {
		r.metrics.SetUnprocessedCount(c.String(), counts[c])
	}
	r.metrics.SetItemsCount(r.store.Len())
}

func markUnchanged(unchanged map[string]struct{}, queues []backend.Queue, category backend.Category) {
	for _, q := range queues {
		if q.Category == category {
			unchanged[q.Name] = struct{}{}
		}
	}
}
