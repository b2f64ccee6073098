package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/metrics"
)

// ThreadState is the lifecycle state of a poll loop.
type ThreadState int

const (
	StateStopped ThreadState = iota
	StateExecuting
	StatePaused
)

// String returns the state name.
func (s ThreadState) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateExecuting:
		return "Executing"
	case StatePaused:
		return "Paused"
	default:
		return fmt.Sprintf("ThreadState(%d)", int(s))
	}
}

// CycleFunc runs one poll cycle and reports whether anything changed.
type CycleFunc func(ctx context.Context) (bool, error)

// LoopOptions configures a poll loop.
type LoopOptions struct {
	// Name labels log entries and metrics, usually the service bus descriptor
	Name string

	// PollInterval is the pause between two cycles
	PollInterval time.Duration

	// PausedInterval is how often a paused loop re-checks for resume or stop
	PausedInterval time.Duration
}

// PollLoop runs a cycle function repeatedly on its own goroutine.
//
// Pause and stop are requests: the loop applies them at its checkpoint, which
// sits between two cycles, so a cycle in progress always completes before the
// loop reports Paused. A cycle that fails or panics stops the loop.
type PollLoop struct {
	name           string
	cycle          CycleFunc
	events         Listener
	logger         backend.Logger
	metrics        metrics.Service
	pollInterval   time.Duration
	pausedInterval time.Duration

	mu          sync.Mutex
	state       ThreadState
	started     bool
	shouldPause bool
	changed     chan struct{}

	wake     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

// NewPollLoop creates a stopped loop. Call Start to run it.
func NewPollLoop(cycle CycleFunc, events Listener, logger backend.Logger, metricsService metrics.Service, opts LoopOptions) *PollLoop {
	if events == nil {
		events = BaseListener{}
	}
	if logger == nil {
		logger = backend.NopLogger{}
	}
	if metricsService == nil {
		metricsService = metrics.NewMetricsService(false)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = backend.DefaultPollIntervalSeconds * time.Second
	}
	if opts.PausedInterval <= 0 {
		opts.PausedInterval = backend.DefaultPausedCheckInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &PollLoop{
		name:           opts.Name,
		cycle:          cycle,
		events:         events,
		logger:         logger,
		metrics:        metricsService,
		pollInterval:   opts.PollInterval,
		pausedInterval: opts.PausedInterval,
		state:          StateStopped,
		changed:        make(chan struct{}),
		wake:           make(chan struct{}, 1),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// Start launches the loop goroutine. A loop can only be started once.
func (l *PollLoop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return errors.New("poll loop already started")
	}
	if l.ctx.Err() != nil {
		return errors.New("poll loop already stopped")
	}

	l.started = true
	l.setStateLocked(StateExecuting)

	go l.run()

	return nil
}

// Pause asks the loop to pause at its next checkpoint.
func (l *PollLoop) Pause() {
	l.mu.Lock()
	l.shouldPause = true
	l.mu.Unlock()

	l.nudge()
}

// Resume clears a pause request and wakes a paused loop.
func (l *PollLoop) Resume() {
	l.mu.Lock()
	l.shouldPause = false
	wasPaused := l.state == StatePaused
	if wasPaused {
		l.setStateLocked(StateExecuting)
	}
	l.mu.Unlock()

	if wasPaused {
		l.nudge()
	}
}

// Stop asks the loop to exit. It does not wait; use Done or WaitState for that.
func (l *PollLoop) Stop() {
	l.cancel()

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()

	if !started {
		l.finish()
	}
}

// State returns the current lifecycle state.
func (l *PollLoop) State() ThreadState {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// Done is closed once the loop has exited.
func (l *PollLoop) Done() <-chan struct{} {
	return l.done
}

// WaitState blocks until the loop is in one of the target states or ctx ends.
func (l *PollLoop) WaitState(ctx context.Context, targets ...ThreadState) error {
	for {
		l.mu.Lock()
		state := l.state
		changed := l.changed
		l.mu.Unlock()

		for _, target := range targets {
			if state == target {
				return nil
			}
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "poll loop still %s", state)
		}
	}
}

func (l *PollLoop) run() {
	defer l.finish()

	l.logger.Debug("Poll loop started", "serviceBus", l.name)

	for {
		if !l.checkpoint() {
			l.logger.Debug("Poll loop stopped", "serviceBus", l.name)
			return
		}

		if err := l.runCycle(); err != nil {
			return
		}

		if !l.sleep(l.pollInterval) {
			l.logger.Debug("Poll loop stopped", "serviceBus", l.name)
			return
		}
	}
}

// checkpoint applies a pending pause and blocks while paused. It returns
// false once the loop has been asked to stop.
func (l *PollLoop) checkpoint() bool {
	for {
		l.mu.Lock()
		if l.ctx.Err() != nil {
			l.mu.Unlock()
			return false
		}
		if l.shouldPause && l.state == StateExecuting {
			l.setStateLocked(StatePaused)
		}
		paused := l.state == StatePaused
		l.mu.Unlock()

		if !paused {
			return true
		}

		if !l.sleep(l.pausedInterval) {
			return false
		}
	}
}

func (l *PollLoop) runCycle() (err error) {
	start := time.Now()
	l.events.LoadingStarted()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("poll cycle panicked: %v", r)
		}
		l.metrics.IncPollCyclesTotal(l.name)
		l.metrics.ObservePollDuration(l.name, time.Since(start))

		// stopped while the cycle was running is not a failure
		if err != nil && l.ctx.Err() == nil {
			l.reportFailure(err)
		}
		l.events.LoadingFinished()
	}()

	changed, err := l.cycle(l.ctx)
	if err != nil {
		return err
	}

	if changed {
		l.events.ItemsChanged(OriginQueue)
	}

	return nil
}

// reportFailure stops the loop after a failed cycle. The error is reported
// before LoadingFinished so listeners can attribute it to the cycle.
func (l *PollLoop) reportFailure(err error) {
	l.logger.Error("Poll cycle failed, monitoring stopped", "serviceBus", l.name, "error", err.Error())
	l.metrics.IncPollFailuresTotal(l.name, metrics.CycleErrorReason)
	l.setState(StateStopped)
	l.events.Error(ErrorEvent{
		Message: fmt.Sprintf("Monitoring of %s stopped: %s", l.name, err.Error()),
		Err:     err,
	})
}

// sleep waits for d, a nudge or a stop request. It returns false on stop.
func (l *PollLoop) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-l.ctx.Done():
		return false
	case <-l.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (l *PollLoop) nudge() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *PollLoop) setState(state ThreadState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setStateLocked(state)
}

func (l *PollLoop) setStateLocked(state ThreadState) {
	if l.state == state {
		return
	}
	l.state = state
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *PollLoop) finish() {
	l.doneOnce.Do(func() {
		l.setState(StateStopped)
		l.cancel()
		close(l.done)
	})
}
