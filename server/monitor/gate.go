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

// GateMode selects how the poll loop is quiesced around a mutation.
type GateMode int

const (
	// GatePause pauses the loop and resumes it afterwards
	GatePause GateMode = iota

	// GateStop stops the loop and starts a new one afterwards
	GateStop
)

// Operation is a backend mutation run by the gate.
type Operation func(ctx context.Context) error

// loopHost owns the poll loop the gate coordinates with.
type loopHost interface {
	currentLoop() *PollLoop
	StartMonitoring() error
}

// MutationGate runs destructive backend operations while the poll loop is
// quiescent, so that a merge never interleaves with a purge or a move.
// Operations are serialized and run asynchronously.
type MutationGate struct {
	mu      sync.Mutex
	host    loopHost
	events  Listener
	logger  backend.Logger
	metrics metrics.Service
	timeout time.Duration
}

func newMutationGate(host loopHost, events Listener, logger backend.Logger, metricsService metrics.Service, timeout time.Duration) *MutationGate {
	if timeout <= 0 {
		timeout = backend.DefaultGateTimeout
	}

	return &MutationGate{
		host:    host,
		events:  events,
		logger:  logger,
		metrics: metricsService,
		timeout: timeout,
	}
}

// Run schedules op and returns a channel that receives its outcome once.
// When monitoring is not running the operation is skipped and the channel
// receives nil immediately.
func (g *MutationGate) Run(name string, mode GateMode, op Operation) <-chan error {
	result := make(chan error, 1)

	loop := g.host.currentLoop()
	if loop == nil || loop.State() == StateStopped {
		g.skip(name)
		result <- nil
		close(result)
		return result
	}

	go func() {
		result <- g.execute(loop, name, mode, op)
		close(result)
	}()

	return result
}

func (g *MutationGate) skip(name string) {
	g.logger.Debug("Monitoring is not running, skipping operation", "operation", name)
	g.metrics.IncMutationsTotal(name, metrics.SkippedResult)
}

func (g *MutationGate) execute(loop *PollLoop, name string, mode GateMode, op Operation) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// the loop may have stopped while an earlier operation held the gate
	if loop.State() == StateStopped {
		g.skip(name)
		return nil
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if mode == GateStop {
		loop.Stop()
		if err := loop.WaitState(waitCtx, StateStopped); err != nil {
			return g.fail(name, errors.Wrap(err, "timed out waiting for monitoring to stop"))
		}
		defer g.restart(name)
	} else {
		loop.Pause()
		if err := loop.WaitState(waitCtx, StatePaused, StateStopped); err != nil {
			loop.Resume()
			return g.fail(name, errors.Wrap(err, "timed out waiting for monitoring to pause"))
		}
		if loop.State() == StateStopped {
			g.skip(name)
			return nil
		}
		defer loop.Resume()
	}

	g.events.LoadingStarted()
	defer g.events.LoadingFinished()

	if err := g.invoke(op); err != nil {
		return g.fail(name, err)
	}

	g.logger.Debug("Operation completed", "operation", name)
	g.metrics.IncMutationsTotal(name, metrics.SucceededResult)
	g.events.ItemsChanged(OriginQueue)

	return nil
}

func (g *MutationGate) invoke(op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("operation panicked: %v", r)
		}
	}()

	return op(context.Background())
}

func (g *MutationGate) restart(name string) {
	if err := g.host.StartMonitoring(); err != nil {
		g.logger.Error("Failed to restart monitoring", "operation", name, "error", err.Error())
		g.events.Error(ErrorEvent{Message: "Failed to restart monitoring after " + name, Err: err})
	}
}

func (g *MutationGate) fail(name string, err error) error {
	g.logger.Error("Operation failed", "operation", name, "error", err.Error())
	g.metrics.IncMutationsTotal(name, metrics.FailedResult)
	g.events.Error(ErrorEvent{Message: fmt.Sprintf("Failed to %s: %s", name, err.Error()), Err: err})
	return err
}

// lock blocks until no operation is running and prevents new ones from starting.
func (g *MutationGate) lock() func() {
	g.mu.Lock()
	return g.mu.Unlock
}
