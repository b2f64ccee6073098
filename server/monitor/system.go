package monitor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/metrics"
)

// Options configures a System.
type Options struct {
	// Descriptor is the preferred backend; the registry may fall back to another version
	Descriptor backend.Descriptor

	// Settings are passed to the adapter on Initialize
	Settings backend.ConnectionSettings

	// Queues are the monitored queues
	Queues []backend.Queue

	// Watched are the categories watched from the start
	Watched []backend.Category

	PollInterval   time.Duration
	PausedInterval time.Duration
	GateTimeout    time.Duration

	// LoadedDescriptors are backends already loaded earlier in this process,
	// used to detect version changes that require a restart
	LoadedDescriptors []backend.Descriptor

	Logger  backend.Logger
	Metrics metrics.Service
}

// System ties an adapter, the item store, the poll loop and the mutation gate together.
// It is the only entry point the consuming layer needs.
type System struct {
	registry   *backend.Registry
	opts       Options
	logger     backend.Logger
	metrics    metrics.Service
	events     *EventBus
	state      *MonitorState
	store      *ItemStore
	reconciler *Reconciler
	gate       *MutationGate

	// switchMu serializes backend switches and Close
	switchMu sync.Mutex

	mu         sync.Mutex
	adapter    backend.Adapter
	descriptor backend.Descriptor
	loop       *PollLoop
	history    []backend.Descriptor

	filterMu sync.RWMutex
	filter   []string
}

// New selects an adapter for opts.Descriptor, creates it and initializes it.
// Monitoring does not start until StartMonitoring is called.
func New(registry *backend.Registry, opts Options) (*System, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = backend.NopLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetricsService(false)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = backend.DefaultPollIntervalSeconds * time.Second
	}
	if opts.PausedInterval <= 0 {
		opts.PausedInterval = backend.DefaultPausedCheckInterval
	}
	if opts.GateTimeout <= 0 {
		opts.GateTimeout = backend.DefaultGateTimeout
	}

	if err := backend.ValidateQueues(opts.Queues); err != nil {
		return nil, errors.Wrap(err, "invalid queue configuration")
	}

	s := &System{
		registry: registry,
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		events:   NewEventBus(),
		state:    NewMonitorState(opts.Watched...),
		store:    NewItemStore(),
		history:  append([]backend.Descriptor(nil), opts.LoadedDescriptors...),
	}
	s.reconciler = NewReconciler(s.store, s.state, s.currentAdapter, s.events, s.logger, s.metrics)
	s.gate = newMutationGate(s, s.events, s.logger, s.metrics, opts.GateTimeout)

	descriptor, err := registry.Select(opts.Descriptor)
	if err != nil {
		return nil, err
	}

	if err := s.checkRestart(descriptor); err != nil {
		return nil, err
	}

	if err := s.attach(descriptor); err != nil {
		return nil, err
	}

	return s, nil
}

// attach creates and initializes the adapter for descriptor and makes it current.
func (s *System) attach(descriptor backend.Descriptor) error {
	adapter, err := s.registry.Create(descriptor)
	if err != nil {
		return err
	}

	if err := adapter.Initialize(s.opts.Settings, s.opts.Queues, s.state); err != nil {
		// a partially initialized adapter may hold open resources
		if termErr := adapter.Terminate(); termErr != nil {
			s.logger.Warn("Failed to terminate service bus adapter", "serviceBus", descriptor.String(), "error", termErr.Error())
		}
		return errors.Wrapf(err, "failed to initialize %s", descriptor)
	}

	s.store.Clear()

	s.mu.Lock()
	s.adapter = adapter
	s.descriptor = descriptor
	s.history = append(s.history, descriptor)
	s.mu.Unlock()

	s.logger.Info("Service bus adapter ready", "serviceBus", descriptor.String(), "queues", len(s.opts.Queues))

	return nil
}

func (s *System) currentAdapter() backend.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adapter
}

func (s *System) currentLoop() *PollLoop {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loop
}

// Descriptor returns the descriptor of the active adapter.
func (s *System) Descriptor() backend.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.descriptor
}

// Adapter returns the active adapter, nil if a switch failed.
func (s *System) Adapter() backend.Adapter {
	return s.currentAdapter()
}

// Events returns the bus listeners subscribe to.
func (s *System) Events() *EventBus {
	return s.events
}

// Queues returns the monitored queues.
func (s *System) Queues() []backend.Queue {
	queues := make([]backend.Queue, len(s.opts.Queues))
	copy(queues, s.opts.Queues)
	return queues
}

// StartMonitoring starts a poll loop unless one is already running.
func (s *System) StartMonitoring() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adapter == nil {
		return backend.ErrNotInitialized
	}
	if s.loop != nil && s.loop.State() != StateStopped {
		return nil
	}

	s.loop = NewPollLoop(s.reconciler.RefreshUnprocessed, s.events, s.logger, s.metrics, LoopOptions{
		Name:           s.descriptor.String(),
		PollInterval:   s.opts.PollInterval,
		PausedInterval: s.opts.PausedInterval,
	})

	return s.loop.Start()
}

// StopMonitoring asks the poll loop to stop and forgets it. It does not wait.
func (s *System) StopMonitoring() {
	s.detachLoop()
}

func (s *System) detachLoop() *PollLoop {
	s.mu.Lock()
	loop := s.loop
	s.loop = nil
	s.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	return loop
}

// PauseMonitoring asks the poll loop to pause at its next checkpoint.
func (s *System) PauseMonitoring() {
	if loop := s.currentLoop(); loop != nil {
		loop.Pause()
	}
}

// ResumeMonitoring resumes a paused poll loop.
func (s *System) ResumeMonitoring() {
	if loop := s.currentLoop(); loop != nil {
		loop.Resume()
	}
}

// MonitoringState returns the state of the poll loop, Stopped when there is none.
func (s *System) MonitoringState() ThreadState {
	if loop := s.currentLoop(); loop != nil {
		return loop.State()
	}
	return StateStopped
}

// SetWatched changes whether a category is watched. Unwatching removes the
// category's items immediately, whatever the loop is doing.
func (s *System) SetWatched(category backend.Category, watched bool) {
	if removed := s.store.SetWatched(s.state, category, watched); removed > 0 {
		s.metrics.SetItemsCount(s.store.Len())
		s.events.ItemsChanged(OriginQueue)
	}
}

// IsWatched reports whether a category is watched.
func (s *System) IsWatched(category backend.Category) bool {
	return s.state.IsWatched(category)
}

// WatchedCategories returns the watched categories in fetch order.
func (s *System) WatchedCategories() []backend.Category {
	return s.state.Watched()
}

// Items returns a copy of the item list, newest first, with the current filter applied.
func (s *System) Items() []backend.Item {
	s.filterMu.RLock()
	terms := s.filter
	s.filterMu.RUnlock()

	return s.store.Filtered(terms)
}

// FindItem looks an item up by id, ignoring the filter.
func (s *System) FindItem(id string) (backend.Item, bool) {
	return s.store.Find(id)
}

// UnprocessedCount returns the unprocessed count of a category.
func (s *System) UnprocessedCount(category backend.Category) uint32 {
	return s.store.Count(category)
}

// RefreshUnprocessed runs one reconciliation cycle outside the poll loop.
func (s *System) RefreshUnprocessed(ctx context.Context) (bool, error) {
	changed, err := s.reconciler.RefreshUnprocessed(ctx)
	if err != nil {
		return false, err
	}
	if changed {
		s.events.ItemsChanged(OriginQueue)
	}
	return changed, nil
}

// RetrieveProcessedItems adds items processed within window to the list.
func (s *System) RetrieveProcessedItems(ctx context.Context, window time.Duration) error {
	changed, err := s.reconciler.RetrieveProcessed(ctx, window)
	if err != nil {
		s.events.Error(ErrorEvent{Message: "Failed to retrieve processed messages", Err: err})
		return err
	}
	if changed {
		s.events.ItemsChanged(OriginQueue)
	}
	return nil
}

// ClearProcessedItems removes every processed item from the list.
func (s *System) ClearProcessedItems() int {
	removed := s.store.ClearProcessed()
	if removed > 0 {
		s.metrics.SetItemsCount(s.store.Len())
		s.events.ItemsChanged(OriginQueue)
	}
	return removed
}

// EvictOverflow bounds every queue to max items.
func (s *System) EvictOverflow(max int) int {
	removed := s.store.EvictOverflow(max)
	if removed > 0 {
		s.logger.Debug("Evicted items above the per-queue bound", "removed", removed, "max", max)
		s.metrics.SetItemsCount(s.store.Len())
	}
	return removed
}

// FilterItems restricts Items to entries matching every space separated term.
func (s *System) FilterItems(text string) {
	terms := ParseFilter(text)

	s.filterMu.Lock()
	s.filter = terms
	s.filterMu.Unlock()

	s.events.ItemsChanged(OriginFilter)
}

// ClearFilter removes the item filter.
func (s *System) ClearFilter() {
	s.FilterItems("")
}

// Filter returns the active filter text.
func (s *System) Filter() string {
	s.filterMu.RLock()
	defer s.filterMu.RUnlock()

	return strings.Join(s.filter, " ")
}

func (s *System) gated(name string, mode GateMode, op func(ctx context.Context, adapter backend.Adapter) error) <-chan error {
	return s.gate.Run(name, mode, func(ctx context.Context) error {
		adapter := s.currentAdapter()
		if adapter == nil {
			return backend.ErrNotInitialized
		}
		return op(ctx, adapter)
	})
}

// PurgeMessage deletes one message from its queue.
func (s *System) PurgeMessage(item backend.Item) <-chan error {
	return s.gated("purge message", GatePause, func(ctx context.Context, adapter backend.Adapter) error {
		return adapter.PurgeMessage(ctx, item)
	})
}

// PurgeMessages deletes several messages. It stops at the first failure.
func (s *System) PurgeMessages(items []backend.Item) <-chan error {
	return s.gated("purge messages", GatePause, func(ctx context.Context, adapter backend.Adapter) error {
		for _, item := range items {
			if err := adapter.PurgeMessage(ctx, item); err != nil {
				return errors.Wrapf(err, "failed to purge message %s", item.ID)
			}
		}
		return nil
	})
}

// PurgeAllMessages deletes every message of every monitored queue.
func (s *System) PurgeAllMessages() <-chan error {
	return s.gated("purge all messages", GateStop, func(ctx context.Context, adapter backend.Adapter) error {
		return adapter.PurgeAllMessages(ctx)
	})
}

// PurgeErrorMessages deletes every message of one error queue.
func (s *System) PurgeErrorMessages(queueName string) <-chan error {
	return s.gated("purge error messages", GatePause, func(ctx context.Context, adapter backend.Adapter) error {
		return adapter.PurgeErrorMessages(ctx, queueName)
	})
}

// PurgeErrorAllMessages deletes every message of every monitored error queue.
func (s *System) PurgeErrorAllMessages() <-chan error {
	return s.gated("purge all error messages", GateStop, func(ctx context.Context, adapter backend.Adapter) error {
		return adapter.PurgeErrorAllMessages(ctx)
	})
}

// MoveErrorMessageToOriginQueue requeues a dead-lettered message.
func (s *System) MoveErrorMessageToOriginQueue(item backend.Item) <-chan error {
	return s.gated("move error message to origin queue", GatePause, func(ctx context.Context, adapter backend.Adapter) error {
		return adapter.MoveErrorMessageToOriginQueue(ctx, item)
	})
}

// MoveAllErrorMessagesToOriginQueue requeues every message of an error queue.
func (s *System) MoveAllErrorMessagesToOriginQueue(queueName string) <-chan error {
	return s.gated("move all error messages to origin queue", GatePause, func(ctx context.Context, adapter backend.Adapter) error {
		return adapter.MoveAllErrorMessagesToOriginQueue(ctx, queueName)
	})
}

// SwitchServiceBus replaces the active adapter. The requested descriptor goes
// through the same fallback selection as New. Switching to another version
// of a backend already used in this session requires a restart and is
// rejected before anything is stopped. Monitoring is left stopped, unless the
// selection resolves to the active adapter, which is then kept as is.
func (s *System) SwitchServiceBus(requested backend.Descriptor) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	descriptor, err := s.registry.Select(requested)
	if err != nil {
		return err
	}

	if err := s.checkRestart(descriptor); err != nil {
		return err
	}
	previous := s.Descriptor()

	if descriptor == previous && s.currentAdapter() != nil {
		s.logger.Info("Service bus already active", "serviceBus", descriptor.String(), "requested", requested.String())
		return nil
	}

	unlock := s.gate.lock()
	defer unlock()

	if err := s.shutdown(); err != nil {
		return err
	}

	if err := s.attach(descriptor); err != nil {
		s.logger.Error("Failed to switch service bus", "serviceBus", descriptor.String(), "error", err.Error())

		if restoreErr := s.attach(previous); restoreErr != nil {
			s.events.Error(ErrorEvent{
				Message: "No service bus adapter is available: " + restoreErr.Error(),
				Err:     restoreErr,
				Fatal:   true,
			})
		}
		return err
	}

	return nil
}

// checkRestart rejects a descriptor whose backend was already loaded with another version.
func (s *System) checkRestart(descriptor backend.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, used := range s.history {
		if strings.EqualFold(used.Name, descriptor.Name) && used.Version != descriptor.Version {
			return errors.Wrapf(backend.ErrRestartRequired, "%s was already loaded as version %s", descriptor.Name, used.Version)
		}
	}
	return nil
}

// History returns every descriptor loaded so far, oldest first.
func (s *System) History() []backend.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]backend.Descriptor(nil), s.history...)
}

// shutdown stops the poll loop, waits for it and terminates the adapter.
func (s *System) shutdown() error {
	if loop := s.detachLoop(); loop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.GateTimeout)
		defer cancel()

		if err := loop.WaitState(ctx, StateStopped); err != nil {
			return errors.Wrap(err, "failed to stop monitoring")
		}
	}

	s.mu.Lock()
	adapter := s.adapter
	s.adapter = nil
	s.mu.Unlock()

	if adapter != nil {
		if err := adapter.Terminate(); err != nil {
			s.logger.Warn("Failed to terminate service bus adapter", "serviceBus", adapter.Descriptor().String(), "error", err.Error())
		}
	}

	return nil
}

// Close stops monitoring and terminates the adapter.
func (s *System) Close() error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	unlock := s.gate.lock()
	defer unlock()

	return s.shutdown()
}

// CanSendCommand reports whether the active adapter can send commands.
func (s *System) CanSendCommand() bool {
	_, ok := s.currentAdapter().(backend.CommandSender)
	return ok
}

// CanViewSubscriptions reports whether the active adapter exposes subscriptions.
func (s *System) CanViewSubscriptions() bool {
	_, ok := s.currentAdapter().(backend.SubscriptionViewer)
	return ok
}

// AvailableCommands returns the commands the active adapter can send, if any.
func (s *System) AvailableCommands() []string {
	sender, ok := s.currentAdapter().(backend.CommandSender)
	if !ok {
		return []string{}
	}
	return sender.AvailableCommands()
}

// SendCommand sends a command through the active adapter.
func (s *System) SendCommand(ctx context.Context, destinationQueue, displayName, payload string) error {
	sender, ok := s.currentAdapter().(backend.CommandSender)
	if !ok {
		return errors.Wrapf(backend.ErrCapabilityNotSupported, "%s cannot send commands", s.Descriptor())
	}
	return sender.SendCommand(ctx, destinationQueue, displayName, payload)
}

// MessageSubscriptions returns the subscriptions of the monitored queues, if
// the active adapter exposes them.
func (s *System) MessageSubscriptions(ctx context.Context) ([]backend.Subscription, error) {
	viewer, ok := s.currentAdapter().(backend.SubscriptionViewer)
	if !ok {
		return []backend.Subscription{}, nil
	}
	names := make([]string, len(s.opts.Queues))
	for i, q := range s.opts.Queues {
		names[i] = q.Name
	}
	return viewer.MessageSubscriptions(ctx, names)
}
