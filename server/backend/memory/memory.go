// Package memory is an in-process backend. Messages live in memory and are
// published by the host, which makes it useful for demos and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
)

// Descriptor identifies the in-process adapter.
var Descriptor = backend.Descriptor{Name: "Memory", Version: "1.0", QueueType: "InProcess"}

func init() {
	backend.RegisterAdapterFactory(Descriptor, func() backend.Adapter { return New() })
}

type message struct {
	item      backend.Item
	origin    string
	processed bool
	doneAt    time.Time
}

// Adapter keeps messages per queue. Consumed messages are remembered as
// processed so that processed-item retrieval has something to return.
type Adapter struct {
	mu          sync.Mutex
	queues      []backend.Queue
	queueIndex  map[string]backend.Queue
	messages    map[string]*message
	commands    []string
	unreachable bool
	now         func() time.Time
}

// New creates an empty adapter.
func New() *Adapter {
	return &Adapter{
		messages: make(map[string]*message),
		commands: []string{"Ping"},
		now:      time.Now,
	}
}

func (a *Adapter) Descriptor() backend.Descriptor {
	return Descriptor
}

func (a *Adapter) MonitorQueues() []backend.Queue {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.queues
}

// Initialize records the queues. The "commands" setting lists the command
// names offered by AvailableCommands.
func (a *Adapter) Initialize(settings backend.ConnectionSettings, queues []backend.Queue, _ backend.WatchState) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.queues = queues
	a.queueIndex = make(map[string]backend.Queue, len(queues))
	for _, q := range queues {
		a.queueIndex[q.Name] = q
	}
	if commands := settings.List("commands"); len(commands) > 0 {
		a.commands = commands
	}
	return nil
}

func (a *Adapter) Terminate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.messages = make(map[string]*message)
	return nil
}

// SetUnreachable simulates a backend outage: fetches report a connection failure.
func (a *Adapter) SetUnreachable(unreachable bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.unreachable = unreachable
}

// Publish adds a message to a monitored queue and returns its id.
func (a *Adapter) Publish(queueName, displayName, payload string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	queue, ok := a.queueIndex[queueName]
	if !ok {
		return "", fmt.Errorf("queue '%s' is not monitored", queueName)
	}

	id := uuid.NewString()
	a.messages[id] = &message{
		item: backend.Item{
			ID:          id,
			Queue:       queue,
			ArrivedTime: a.now(),
			DisplayName: displayName,
			Payload:     payload,
		},
		origin: queueName,
	}
	return id, nil
}

// Consume marks a message as processed.
func (a *Adapter) Consume(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.messages[id]
	if !ok || m.processed {
		return fmt.Errorf("message %s not found", id)
	}
	m.processed = true
	m.doneAt = a.now()
	return nil
}

// DeadLetter moves a message to an error queue, remembering where it came from.
func (a *Adapter) DeadLetter(id, errorQueue string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.messages[id]
	if !ok || m.processed {
		return fmt.Errorf("message %s not found", id)
	}
	queue, ok := a.queueIndex[errorQueue]
	if !ok || queue.Category != backend.Error {
		return fmt.Errorf("'%s' is not a monitored error queue", errorQueue)
	}
	m.item.Queue = queue
	return nil
}

func (a *Adapter) GetUnprocessedMessages(_ context.Context, req backend.FetchUnprocessedRequest) (backend.FetchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.unreachable {
		return backend.FetchResult{Status: backend.FetchConnectionFailed}, nil
	}

	items := a.collect(func(m *message) bool {
		return !m.processed && m.item.Queue.Category == req.Category
	})
	return backend.FetchResult{Status: backend.FetchOK, Items: items, Count: uint32(len(items))}, nil
}

func (a *Adapter) GetProcessedMessages(_ context.Context, category backend.Category, since time.Time, _ []backend.Item) (backend.FetchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.unreachable {
		return backend.FetchResult{Status: backend.FetchConnectionFailed}, nil
	}

	items := a.collect(func(m *message) bool {
		return m.processed && m.item.Queue.Category == category && !m.item.ArrivedTime.Before(since)
	})
	return backend.FetchResult{Status: backend.FetchOK, Items: items, Count: uint32(len(items))}, nil
}

// collect must be called with the lock held.
func (a *Adapter) collect(keep func(*message) bool) []backend.Item {
	var items []backend.Item
	for _, m := range a.messages {
		if keep(m) {
			items = append(items, m.item.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ArrivedTime.After(items[j].ArrivedTime)
	})
	return items
}

func (a *Adapter) PurgeMessage(_ context.Context, item backend.Item) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.messages, item.ID)
	return nil
}

func (a *Adapter) PurgeAllMessages(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.messages = make(map[string]*message)
	return nil
}

func (a *Adapter) PurgeErrorMessages(_ context.Context, queueName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deleteWhere(func(m *message) bool {
		return m.item.Queue.Name == queueName && m.item.Queue.Category == backend.Error
	})
	return nil
}

func (a *Adapter) PurgeErrorAllMessages(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deleteWhere(func(m *message) bool {
		return m.item.Queue.Category == backend.Error
	})
	return nil
}

func (a *Adapter) deleteWhere(match func(*message) bool) {
	for id, m := range a.messages {
		if match(m) {
			delete(a.messages, id)
		}
	}
}

func (a *Adapter) MoveErrorMessageToOriginQueue(_ context.Context, item backend.Item) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.messages[item.ID]
	if !ok || m.item.Queue.Category != backend.Error {
		return fmt.Errorf("message %s not found in an error queue", item.ID)
	}
	a.requeue(m)
	return nil
}

func (a *Adapter) MoveAllErrorMessagesToOriginQueue(_ context.Context, queueName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, m := range a.messages {
		if m.item.Queue.Name == queueName && m.item.Queue.Category == backend.Error {
			a.requeue(m)
		}
	}
	return nil
}

// requeue must be called with the lock held.
func (a *Adapter) requeue(m *message) {
	m.item.Queue = a.queueIndex[m.origin]
	m.item.ArrivedTime = a.now()
}

// AvailableCommands returns the command names offered by this backend.
func (a *Adapter) AvailableCommands() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	commands := make([]string, len(a.commands))
	copy(commands, a.commands)
	return commands
}

// SendCommand publishes a message on a command queue.
func (a *Adapter) SendCommand(_ context.Context, destinationQueue, displayName, payload string) error {
	a.mu.Lock()
	queue, ok := a.queueIndex[destinationQueue]
	a.mu.Unlock()

	if !ok || queue.Category != backend.Command {
		return fmt.Errorf("'%s' is not a monitored command queue", destinationQueue)
	}

	_, err := a.Publish(destinationQueue, displayName, payload)
	return err
}

// MessageSubscriptions reports one subscription per message type seen on the
// given queues, with the queues it was seen on as subscribers.
func (a *Adapter) MessageSubscriptions(_ context.Context, queueNames []string) ([]backend.Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	wanted := make(map[string]bool, len(queueNames))
	for _, name := range queueNames {
		wanted[name] = true
	}

	seen := make(map[string]map[string]bool)
	for _, m := range a.messages {
		if !wanted[m.origin] || m.item.DisplayName == "" {
			continue
		}
		if seen[m.item.DisplayName] == nil {
			seen[m.item.DisplayName] = make(map[string]bool)
		}
		seen[m.item.DisplayName][m.origin] = true
	}

	subscriptions := make([]backend.Subscription, 0, len(seen))
	for name, queues := range seen {
		subscription := backend.Subscription{Name: name, Publisher: Descriptor.Name}
		for q := range queues {
			subscription.Subscribers = append(subscription.Subscribers, q)
		}
		sort.Strings(subscription.Subscribers)
		subscriptions = append(subscriptions, subscription)
	}
	sort.Slice(subscriptions, func(i, j int) bool {
		return subscriptions[i].Name < subscriptions[j].Name
	})

	return subscriptions, nil
}
