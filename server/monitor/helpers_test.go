package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
)

var (
	commandQueue = backend.Queue{Name: "orders.commands", Category: backend.Command}
	eventQueue   = backend.Queue{Name: "orders.events", Category: backend.Event}
	messageQueue = backend.Queue{Name: "orders.messages", Category: backend.Message}
	errorQueue   = backend.Queue{Name: "orders.errors", Category: backend.Error}

	testQueues = []backend.Queue{commandQueue, eventQueue, messageQueue, errorQueue}

	baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func item(id string, queue backend.Queue, minute int) backend.Item {
	return backend.Item{
		ID:          id,
		Queue:       queue,
		ArrivedTime: baseTime.Add(time.Duration(minute) * time.Minute),
		DisplayName: "Order" + id,
	}
}

func ok(items ...backend.Item) backend.FetchResult {
	return backend.FetchResult{Status: backend.FetchOK, Items: items, Count: uint32(len(items))}
}

func ids(items []backend.Item) []string {
	result := make([]string, len(items))
	for i, it := range items {
		result[i] = it.ID
	}
	return result
}

// fakeAdapter answers fetches from per-category scripts. The last scripted
// result of a category repeats once the script is exhausted.
type fakeAdapter struct {
	mu          sync.Mutex
	descriptor  backend.Descriptor
	queues      []backend.Queue
	unprocessed map[backend.Category][]backend.FetchResult
	processed   map[backend.Category][]backend.Item
	fetchErr    error
	onFetch     func(category backend.Category)
	calls       []backend.Category
	requests    []backend.FetchUnprocessedRequest
	purged      []string
	initErr     error
	initialized bool
	terminated  bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		descriptor:  backend.Descriptor{Name: "Fake", Version: "1.0", QueueType: "Test"},
		queues:      testQueues,
		unprocessed: make(map[backend.Category][]backend.FetchResult),
		processed:   make(map[backend.Category][]backend.Item),
	}
}

func (f *fakeAdapter) script(category backend.Category, results ...backend.FetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.unprocessed[category] = append(f.unprocessed[category], results...)
}

func (f *fakeAdapter) fetchCalls() []backend.Category {
	f.mu.Lock()
	defer f.mu.Unlock()

	calls := make([]backend.Category, len(f.calls))
	copy(calls, f.calls)
	return calls
}

func (f *fakeAdapter) Descriptor() backend.Descriptor { return f.descriptor }

func (f *fakeAdapter) MonitorQueues() []backend.Queue { return f.queues }

func (f *fakeAdapter) Initialize(_ backend.ConnectionSettings, queues []backend.Queue, _ backend.WatchState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initErr != nil {
		return f.initErr
	}
	if queues != nil {
		f.queues = queues
	}
	f.initialized = true
	return nil
}

func (f *fakeAdapter) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.terminated = true
	return nil
}

func (f *fakeAdapter) GetUnprocessedMessages(_ context.Context, req backend.FetchUnprocessedRequest) (backend.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Category)
	f.requests = append(f.requests, req)
	onFetch := f.onFetch
	err := f.fetchErr

	var result backend.FetchResult
	script := f.unprocessed[req.Category]
	switch {
	case len(script) > 1:
		result = script[0]
		f.unprocessed[req.Category] = script[1:]
	case len(script) == 1:
		result = script[0]
	default:
		result = ok()
	}
	f.mu.Unlock()

	if onFetch != nil {
		onFetch(req.Category)
	}
	if err != nil {
		return backend.FetchResult{}, err
	}
	return result, nil
}

func (f *fakeAdapter) GetProcessedMessages(_ context.Context, category backend.Category, _ time.Time, _ []backend.Item) (backend.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return ok(f.processed[category]...), nil
}

func (f *fakeAdapter) PurgeMessage(_ context.Context, it backend.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.purged = append(f.purged, it.ID)
	return nil
}

func (f *fakeAdapter) PurgeAllMessages(context.Context) error { return nil }

func (f *fakeAdapter) PurgeErrorMessages(context.Context, string) error { return nil }

func (f *fakeAdapter) PurgeErrorAllMessages(context.Context) error { return nil }

func (f *fakeAdapter) MoveErrorMessageToOriginQueue(context.Context, backend.Item) error { return nil }

func (f *fakeAdapter) MoveAllErrorMessagesToOriginQueue(context.Context, string) error { return nil }

// commandingAdapter adds the optional capabilities to fakeAdapter.
type commandingAdapter struct {
	*fakeAdapter
	sent []string
}

func (c *commandingAdapter) AvailableCommands() []string {
	return []string{"CreateOrder", "CancelOrder"}
}

func (c *commandingAdapter) SendCommand(_ context.Context, destinationQueue, displayName, _ string) error {
	c.sent = append(c.sent, destinationQueue+":"+displayName)
	return nil
}

func (c *commandingAdapter) MessageSubscriptions(_ context.Context, queueNames []string) ([]backend.Subscription, error) {
	return []backend.Subscription{{Name: "OrderCreated", Subscribers: queueNames}}, nil
}

// recordingListener captures events for assertions.
type recordingListener struct {
	mu       sync.Mutex
	changes  []ItemChangeOrigin
	errors   []ErrorEvent
	warnings []WarningEvent
	started  int
	finished int
}

func (r *recordingListener) ItemsChanged(origin ItemChangeOrigin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, origin)
}

func (r *recordingListener) LoadingStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recordingListener) LoadingFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
}

func (r *recordingListener) Error(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, event)
}

func (r *recordingListener) Warning(event WarningEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, event)
}

func (r *recordingListener) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func (r *recordingListener) warningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

func (r *recordingListener) changeCount(origin ItemChangeOrigin) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, o := range r.changes {
		if o == origin {
			count++
		}
	}
	return count
}

func newTestReconciler(adapter backend.Adapter, watched ...backend.Category) (*Reconciler, *ItemStore, *MonitorState, *recordingListener) {
	store := NewItemStore()
	state := NewMonitorState(watched...)
	listener := &recordingListener{}
	r := NewReconciler(store, state, func() backend.Adapter { return adapter }, listener, nil, nil)
	return r, store, state, listener
}
