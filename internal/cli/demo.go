package cli

import (
	"context"
	"math/rand"
	"time"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/backend/memory"
)

var demoMessageTypes = map[backend.Category][]string{
	backend.Command: {"CreateOrder", "CancelOrder", "ShipOrder"},
	backend.Event:   {"OrderCreated", "OrderCancelled", "OrderShipped"},
	backend.Message: {"InvoiceIssued", "PaymentReceived"},
}

// demoTraffic publishes, consumes and dead-letters synthetic messages on the
// in-process backend so the monitor has something to show.
type demoTraffic struct {
	adapter *memory.Adapter
	queues  []backend.Queue
	logger  *Logger
	rng     *rand.Rand

	inFlight []string
}

func newDemoTraffic(adapter *memory.Adapter, queues []backend.Queue, logger *Logger, seed int64) *demoTraffic {
	return &demoTraffic{
		adapter: adapter,
		queues:  queues,
		logger:  logger,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Run generates traffic every interval until ctx is done.
func (d *demoTraffic) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.step()
		}
	}
}

// step publishes one message and settles an older one.
func (d *demoTraffic) step() {
	var sources []backend.Queue
	var errorQueues []string
	for _, q := range d.queues {
		if q.Category == backend.Error {
			errorQueues = append(errorQueues, q.Name)
		} else {
			sources = append(sources, q)
		}
	}
	if len(sources) == 0 {
		return
	}

	queue := sources[d.rng.Intn(len(sources))]
	names := demoMessageTypes[queue.Category]
	id, err := d.adapter.Publish(queue.Name, names[d.rng.Intn(len(names))], "{}")
	if err != nil {
		d.logger.Warn("Demo publish failed", "queue", queue.Name, "error", err.Error())
		return
	}
	d.inFlight = append(d.inFlight, id)

	if len(d.inFlight) < 3 {
		return
	}

	oldest := d.inFlight[0]
	d.inFlight = d.inFlight[1:]

	// roughly one message in five fails
	if len(errorQueues) > 0 && d.rng.Intn(5) == 0 {
		if err := d.adapter.DeadLetter(oldest, errorQueues[d.rng.Intn(len(errorQueues))]); err != nil {
			d.logger.Debug("Demo dead-letter skipped", "id", oldest, "error", err.Error())
		}
		return
	}

	if err := d.adapter.Consume(oldest); err != nil {
		d.logger.Debug("Demo consume skipped", "id", oldest, "error", err.Error())
	}
}
