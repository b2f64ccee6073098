package backend

import "time"

// Constants for monitoring behavior and thresholds
const (
	// MaxItemsPerQueue is the default number of items kept per queue before the
	// consuming layer starts evicting the oldest ones.
	MaxItemsPerQueue = 500

	// MinPollIntervalSeconds is the minimum allowed poll interval
	MinPollIntervalSeconds = 1

	// DefaultPollIntervalSeconds is the recommended default poll interval
	DefaultPollIntervalSeconds = 5

	// DefaultPausedCheckInterval is how often a paused poll loop re-checks for resume or stop.
	DefaultPausedCheckInterval = time.Second

	// DefaultGateTimeout bounds how long a destructive operation waits for the
	// poll loop to reach the paused or stopped state.
	DefaultGateTimeout = 30 * time.Second

	// MaxConsecutiveFailures is the number of consecutive failed poll cycles after
	// which the persisted status reports the backend as unhealthy.
	MaxConsecutiveFailures = 5
)
