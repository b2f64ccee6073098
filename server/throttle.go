package main

import (
	"sync"
	"time"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
)

const (
	// NotificationRepeatWindow is how long an identical error notification is suppressed
	NotificationRepeatWindow = 15 * time.Minute

	// ThrottleCleanupInterval is how often expired entries are dropped
	ThrottleCleanupInterval = 5 * time.Minute
)

// notificationThrottle suppresses repeated error posts, such as a purge that
// keeps timing out, so a misbehaving backend cannot flood the channel.
type notificationThrottle struct {
	logger      backend.Logger
	window      time.Duration
	now         func() time.Time
	lastPosted  map[string]time.Time
	mu          sync.Mutex
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// newNotificationThrottle creates a throttle and starts its cleanup loop.
func newNotificationThrottle(logger backend.Logger, window time.Duration) *notificationThrottle {
	t := &notificationThrottle{
		logger:      logger,
		window:      window,
		now:         time.Now,
		lastPosted:  make(map[string]time.Time),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	go t.cleanupLoop()

	return t
}

// Allow reports whether a notification may be posted and, if so, marks it as
// posted. Check and mark happen under one lock.
func (t *notificationThrottle) Allow(serviceBus, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := serviceBus + ":" + message
	now := t.now()

	if last, exists := t.lastPosted[key]; exists && now.Sub(last) < t.window {
		return false
	}

	t.lastPosted[key] = now
	return true
}

// Reset forgets every posted notification, e.g. after the service bus changed.
func (t *notificationThrottle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastPosted = make(map[string]time.Time)
}

func (t *notificationThrottle) cleanupLoop() {
	ticker := time.NewTicker(ThrottleCleanupInterval)
	defer ticker.Stop()
	defer close(t.cleanupDone)

	for {
		select {
		case <-ticker.C:
			t.cleanup()
		case <-t.stopCleanup:
			return
		}
	}
}

// cleanup removes entries older than the repeat window
func (t *notificationThrottle) cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	expired := 0

	for key, postedAt := range t.lastPosted {
		if now.Sub(postedAt) >= t.window {
			delete(t.lastPosted, key)
			expired++
		}
	}

	if expired > 0 {
		t.logger.Debug("Cleaned up expired notification throttle entries",
			"expired", expired,
			"remaining", len(t.lastPosted))
	}
}

// Stop stops the cleanup goroutine and waits for it to finish
func (t *notificationThrottle) Stop() {
	close(t.stopCleanup)
	<-t.cleanupDone
}
