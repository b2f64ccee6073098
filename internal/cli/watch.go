package cli

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/backend/memory"
	"github.com/mattermost/mattermost-plugin-sbmq/server/monitor"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	Out    io.Writer
	Logger *Logger
	Demo   bool

	// DemoInterval is how often demo traffic is generated. Defaults to half the poll interval.
	DemoInterval time.Duration
}

// Watch monitors the configured queues until ctx is done or monitoring fails.
// Returning nil means a clean shutdown.
func Watch(ctx context.Context, cfg Config, opts WatchOptions) error {
	watched, err := cfg.Watched()
	if err != nil {
		return err
	}

	registry := backend.NewRegistry(opts.Logger)
	system, err := monitor.New(registry, monitor.Options{
		Descriptor:   cfg.Descriptor(),
		Settings:     backend.ConnectionSettings(cfg.ConnectionSettings),
		Queues:       cfg.Queues,
		Watched:      watched,
		PollInterval: cfg.PollInterval(),
		Logger:       opts.Logger,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create monitoring system")
	}
	defer func() {
		if err := system.Close(); err != nil {
			opts.Logger.Warn("Failed to close monitoring system", "error", err.Error())
		}
	}()

	console := newConsole(opts.Out, system, opts.Logger, cfg.MaxItemsPerQueue)
	unsubscribe := system.Events().Subscribe(console)
	defer unsubscribe()

	if opts.Demo {
		adapter, ok := system.Adapter().(*memory.Adapter)
		if !ok {
			return errors.Errorf("--demo requires the %s backend, got %s", memory.Descriptor.Name, system.Descriptor())
		}

		interval := opts.DemoInterval
		if interval <= 0 {
			interval = cfg.PollInterval() / 2
		}

		demoCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go newDemoTraffic(adapter, cfg.Queues, opts.Logger, time.Now().UnixNano()).Run(demoCtx, interval)
	}

	if err := system.StartMonitoring(); err != nil {
		return errors.Wrap(err, "failed to start monitoring")
	}

	opts.Logger.Info("Monitoring started", "serviceBus", system.Descriptor().String(), "queues", len(cfg.Queues))

	select {
	case <-ctx.Done():
		opts.Logger.Info("Stopping monitoring")
		return nil
	case err := <-console.Done():
		return err
	}
}
