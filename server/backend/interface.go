package backend

import (
	"context"
	"time"
)

// WatchState is the read-only view of which categories are being monitored.
// Adapters receive it on Initialize and may consult it while fetching.
type WatchState interface {
	IsWatched(category Category) bool
}

//go:generate mockgen -destination=mock_backend/mock_adapter.go -package=mock_backend github.com/mattermost/mattermost-plugin-sbmq/server/backend Adapter

// Adapter defines the interface that every backend adapter must satisfy.
// One implementation exists per (backend, version, queue type) triple; the
// monitoring engine depends on nothing else.
type Adapter interface {
	// Descriptor returns the (backend, version, queue type) triple this adapter implements.
	Descriptor() Descriptor

	// MonitorQueues returns the queues passed to Initialize.
	MonitorQueues() []Queue

	// Initialize connects the adapter to the backend and records the monitored queues.
	Initialize(settings ConnectionSettings, queues []Queue, state WatchState) error

	// Terminate releases every resource held by the adapter.
	// The adapter is not used again after Terminate returns.
	Terminate() error

	// GetUnprocessedMessages returns the items currently visible on the queues of one category.
	// A backend that cannot be reached is reported with FetchConnectionFailed, not an error.
	GetUnprocessedMessages(ctx context.Context, req FetchUnprocessedRequest) (FetchResult, error)

	// GetProcessedMessages returns items of one category that arrived after since
	// and are no longer pending, when the backend keeps such history.
	GetProcessedMessages(ctx context.Context, category Category, since time.Time, knownItems []Item) (FetchResult, error)

	// PurgeMessage deletes a single message from its queue.
	PurgeMessage(ctx context.Context, item Item) error

	// PurgeAllMessages deletes every message from all monitored queues.
	PurgeAllMessages(ctx context.Context) error

	// PurgeErrorMessages deletes every message from one error queue.
	PurgeErrorMessages(ctx context.Context, queueName string) error

	// PurgeErrorAllMessages deletes every message from all monitored error queues.
	PurgeErrorAllMessages(ctx context.Context) error

	// MoveErrorMessageToOriginQueue moves a dead-lettered message back to the queue it failed on.
	MoveErrorMessageToOriginQueue(ctx context.Context, item Item) error

	// MoveAllErrorMessagesToOriginQueue moves every message of an error queue back to its origin.
	MoveAllErrorMessagesToOriginQueue(ctx context.Context, queueName string) error
}

// CommandSender is an optional capability for adapters that can send commands to a queue.
type CommandSender interface {
	// AvailableCommands returns the command types the adapter knows how to send.
	AvailableCommands() []string

	// SendCommand sends a message to the destination queue.
	SendCommand(ctx context.Context, destinationQueue string, displayName string, payload string) error
}

// SubscriptionViewer is an optional capability for adapters that expose message subscriptions.
type SubscriptionViewer interface {
	MessageSubscriptions(ctx context.Context, queueNames []string) ([]Subscription, error)
}
