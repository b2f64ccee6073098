package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/backend/memory"
)

// Config is the standalone monitor configuration, loaded from a JSON file.
type Config struct {
	ServiceBus          string            `json:"serviceBus"`
	Version             string            `json:"version"`
	QueueType           string            `json:"queueType"`
	ConnectionSettings  map[string]string `json:"connectionSettings"`
	Queues              []backend.Queue   `json:"queues"`
	WatchedCategories   []string          `json:"watchedCategories"`
	PollIntervalSeconds int               `json:"pollIntervalSeconds"`
	MaxItemsPerQueue    int               `json:"maxItemsPerQueue"`
	LogLevel            string            `json:"logLevel"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		ConnectionSettings:  map[string]string{},
		PollIntervalSeconds: backend.DefaultPollIntervalSeconds,
		MaxItemsPerQueue:    backend.MaxItemsPerQueue,
		LogLevel:            "info",
	}
}

// DemoQueues are used by --demo when the configuration names no queues.
func DemoQueues() []backend.Queue {
	return []backend.Queue{
		{Name: "orders.commands", Category: backend.Command, Color: "#5DADE2"},
		{Name: "orders.events", Category: backend.Event, Color: "#58D68D"},
		{Name: "billing.messages", Category: backend.Message, Color: "#F5B041"},
		{Name: "orders.errors", Category: backend.Error, Color: "#EC7063"},
	}
}

// Load reads configuration from a JSON file on top of Default. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDemo switches the configuration to the in-process backend.
func (c *Config) ApplyDemo() {
	c.ServiceBus = memory.Descriptor.Name
	c.Version = memory.Descriptor.Version
	c.QueueType = memory.Descriptor.QueueType
	if len(c.Queues) == 0 {
		c.Queues = DemoQueues()
	}
}

// Validate checks the configuration before a monitoring system is built.
func (c Config) Validate() error {
	if err := backend.ValidateDescriptor(c.Descriptor()); err != nil {
		return err
	}
	if err := backend.ValidateQueues(c.Queues); err != nil {
		return err
	}
	if len(c.Queues) == 0 {
		return fmt.Errorf("at least one queue must be configured")
	}
	if err := backend.ValidatePollInterval(c.PollIntervalSeconds); err != nil {
		return err
	}
	if c.MaxItemsPerQueue <= 0 {
		return fmt.Errorf("max items per queue must be positive (got %d)", c.MaxItemsPerQueue)
	}
	_, err := c.Watched()
	return err
}

// Descriptor returns the preferred adapter descriptor.
func (c Config) Descriptor() backend.Descriptor {
	return backend.Descriptor{Name: c.ServiceBus, Version: c.Version, QueueType: c.QueueType}
}

// PollInterval returns the configured interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Watched parses WatchedCategories; empty means every category.
func (c Config) Watched() ([]backend.Category, error) {
	if len(c.WatchedCategories) == 0 {
		return append([]backend.Category(nil), backend.Categories...), nil
	}
	categories := make([]backend.Category, 0, len(c.WatchedCategories))
	for _, name := range c.WatchedCategories {
		category, err := backend.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, nil
}
