package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/formatter"
	"github.com/mattermost/mattermost-plugin-sbmq/server/monitor"
)

// NotificationPoster posts monitoring notifications to a channel.
type NotificationPoster interface {
	PostNotification(n formatter.Notification, channelID string) error
}

// statusRecorder persists the outcome of each backend interaction.
type statusRecorder interface {
	RecordSuccess(t time.Time) error
	RecordFailure(t time.Time, errMsg string) (int, error)
}

// monitoredSystem is the part of monitor.System the notifier drives.
type monitoredSystem interface {
	Descriptor() backend.Descriptor
	WatchedCategories() []backend.Category
	UnprocessedCount(category backend.Category) uint32
	EvictOverflow(max int) int
	StopMonitoring()
}

// notifier listens to a monitoring system. It persists poll health, posts
// errors to the notification channel and keeps the item list bounded.
type notifier struct {
	monitor.BaseListener

	system monitoredSystem
	status statusRecorder
	poster NotificationPoster
	logger backend.Logger
	config func() *configuration

	// throttle suppresses repeated error posts; nil posts every error
	throttle *notificationThrottle

	// onFatal runs on its own goroutine after a fatal error
	onFatal func(err error)

	now func() time.Time

	mu        sync.Mutex
	loading   bool
	problem   string
	unhealthy bool
}

func newNotifier(system monitoredSystem, status statusRecorder, poster NotificationPoster, logger backend.Logger, config func() *configuration, throttle *notificationThrottle, onFatal func(error)) *notifier {
	return &notifier{
		system:   system,
		status:   status,
		poster:   poster,
		logger:   logger,
		config:   config,
		throttle: throttle,
		onFatal:  onFatal,
		now:      time.Now,
	}
}

func (n *notifier) LoadingStarted() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.loading = true
	n.problem = ""
}

func (n *notifier) LoadingFinished() {
	n.mu.Lock()
	problem := n.problem
	n.loading = false
	n.problem = ""
	n.mu.Unlock()

	if problem != "" {
		n.recordFailure(problem)
		return
	}
	n.recordSuccess()
}

func (n *notifier) Warning(event monitor.WarningEvent) {
	n.noteProblem(event.Message)
}

func (n *notifier) Error(event monitor.ErrorEvent) {
	n.noteProblem(event.Message)

	severity := formatter.SeverityError
	if event.Fatal {
		severity = formatter.SeverityFatal
	}

	detail := ""
	if event.Err != nil {
		detail = event.Err.Error()
	}

	if !event.Fatal && n.throttle != nil && !n.throttle.Allow(n.system.Descriptor().Name, event.Message) {
		n.logger.Debug("Suppressed repeated error notification", "message", event.Message)
	} else {
		n.post(severity, event.Message, detail, 0)
	}

	if event.Fatal {
		n.system.StopMonitoring()
		if n.onFatal != nil {
			go n.onFatal(event.Err)
		}
	}
}

func (n *notifier) ItemsChanged(origin monitor.ItemChangeOrigin) {
	if origin != monitor.OriginQueue {
		return
	}
	n.system.EvictOverflow(n.config().maxItems())
}

// noteProblem attributes a warning or error to the interaction in progress.
func (n *notifier) noteProblem(problem string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.loading && n.problem == "" {
		n.problem = problem
	}
}

func (n *notifier) recordSuccess() {
	if err := n.status.RecordSuccess(n.now()); err != nil {
		n.logger.Warn("Failed to record poll status", "error", err.Error())
	}

	n.mu.Lock()
	recovered := n.unhealthy
	n.unhealthy = false
	n.mu.Unlock()

	if recovered {
		n.post(formatter.SeverityRecovered, fmt.Sprintf("%s is reachable again", n.system.Descriptor().Name), formatter.FormatItemSummary(n.counts()), 0)
	}
}

func (n *notifier) recordFailure(problem string) {
	failures, err := n.status.RecordFailure(n.now(), problem)
	if err != nil {
		n.logger.Warn("Failed to record poll status", "error", err.Error())
		return
	}

	// Post once when the threshold is crossed, not on every failed cycle after it.
	if failures != backend.MaxConsecutiveFailures {
		return
	}

	n.mu.Lock()
	n.unhealthy = true
	n.mu.Unlock()

	n.post(formatter.SeverityWarning, fmt.Sprintf("%s is unreachable", n.system.Descriptor().Name), problem, failures)
}

func (n *notifier) counts() map[backend.Category]uint32 {
	counts := make(map[backend.Category]uint32)
	for _, category := range n.system.WatchedCategories() {
		counts[category] = n.system.UnprocessedCount(category)
	}
	return counts
}

func (n *notifier) post(severity formatter.Severity, message, detail string, failures int) {
	channelID := n.config().NotificationChannelID
	if channelID == "" {
		return
	}

	descriptor := n.system.Descriptor()
	err := n.poster.PostNotification(formatter.Notification{
		Severity:   severity,
		ServiceBus: descriptor.String(),
		Message:    message,
		Detail:     detail,
		Failures:   failures,
		Time:       n.now(),
		Topics:     []string{descriptor.Name, descriptor.QueueType},
	}, channelID)
	if err != nil {
		n.logger.Error("Failed to post notification", "channelID", channelID, "error", err.Error())
	}
}
