package main

import (
	"reflect"
	"time"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
)

// configuration captures the plugin's external configuration as exposed in the Mattermost server
// configuration, as well as values computed from the configuration. Any public fields will be
// deserialized from the Mattermost server configuration in OnConfigurationChange.
//
// As plugins are inherently concurrent (hooks being called asynchronously), and the plugin
// configuration can change at any time, access to the configuration must be synchronized. The
// strategy used in this plugin is to guard a pointer to the configuration, and clone the entire
// struct whenever it changes.
type configuration struct {
	// Enabled turns polling on. The plugin turns it off itself after a fatal monitoring error.
	Enabled bool `json:"enabled"`

	// ServiceBus, Version and QueueType select the adapter. Version and QueueType may be empty.
	ServiceBus string `json:"serviceBus"`
	Version    string `json:"version"`
	QueueType  string `json:"queueType"`

	// ConnectionSettings are passed to the adapter as-is.
	ConnectionSettings map[string]string `json:"connectionSettings"`

	// Queues are the monitored queues.
	Queues []backend.Queue `json:"queues"`

	// WatchedCategories names the categories watched on start. Empty means all of them.
	WatchedCategories []string `json:"watchedCategories"`

	PollIntervalSeconds int `json:"pollIntervalSeconds"`
	MaxItemsPerQueue    int `json:"maxItemsPerQueue"`

	// NotificationChannelID receives monitoring errors. Empty disables notifications.
	NotificationChannelID string `json:"notificationChannelId"`

	EnableMetrics bool `json:"enableMetrics"`

	BotUsername    string `json:"botUsername"`
	BotDisplayName string `json:"botDisplayName"`
}

// Clone creates a deep copy of the configuration.
func (c *configuration) Clone() *configuration {
	clone := *c

	if c.ConnectionSettings != nil {
		clone.ConnectionSettings = make(map[string]string, len(c.ConnectionSettings))
		for k, v := range c.ConnectionSettings {
			clone.ConnectionSettings[k] = v
		}
	}

	if c.Queues != nil {
		clone.Queues = make([]backend.Queue, len(c.Queues))
		copy(clone.Queues, c.Queues)
	}

	if c.WatchedCategories != nil {
		clone.WatchedCategories = make([]string, len(c.WatchedCategories))
		copy(clone.WatchedCategories, c.WatchedCategories)
	}

	return &clone
}

// isConfigured reports whether a service bus has been chosen.
func (c *configuration) isConfigured() bool {
	return c.ServiceBus != ""
}

// validate checks the configuration. An unconfigured plugin is valid and stays idle.
func (c *configuration) validate() error {
	if !c.isConfigured() {
		return nil
	}

	if err := backend.ValidateDescriptor(c.descriptor()); err != nil {
		return err
	}

	if err := backend.ValidateQueues(c.Queues); err != nil {
		return err
	}

	if c.PollIntervalSeconds != 0 {
		if err := backend.ValidatePollInterval(c.PollIntervalSeconds); err != nil {
			return err
		}
	}

	if c.MaxItemsPerQueue < 0 {
		return errors.Errorf("max items per queue must not be negative (got %d)", c.MaxItemsPerQueue)
	}

	if _, err := c.watched(); err != nil {
		return err
	}

	return nil
}

func (c *configuration) descriptor() backend.Descriptor {
	return backend.Descriptor{
		Name:      c.ServiceBus,
		Version:   c.Version,
		QueueType: c.QueueType,
	}
}

func (c *configuration) settings() backend.ConnectionSettings {
	return backend.ConnectionSettings(c.Clone().ConnectionSettings)
}

func (c *configuration) pollInterval() time.Duration {
	if c.PollIntervalSeconds == 0 {
		return backend.DefaultPollIntervalSeconds * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *configuration) maxItems() int {
	if c.MaxItemsPerQueue == 0 {
		return backend.MaxItemsPerQueue
	}
	return c.MaxItemsPerQueue
}

// watched parses WatchedCategories, defaulting to every category.
func (c *configuration) watched() ([]backend.Category, error) {
	if len(c.WatchedCategories) == 0 {
		return append([]backend.Category(nil), backend.Categories...), nil
	}

	categories := make([]backend.Category, 0, len(c.WatchedCategories))
	for _, name := range c.WatchedCategories {
		category, err := backend.ParseCategory(name)
		if err != nil {
			return nil, errors.Wrap(err, "invalid watched categories")
		}
		categories = append(categories, category)
	}
	return categories, nil
}

// requiresRebuild reports whether moving from c to next needs a new monitoring system.
// A change of descriptor alone is handled by switching the service bus in place.
func (c *configuration) requiresRebuild(next *configuration) bool {
	if c.isConfigured() != next.isConfigured() {
		return true
	}
	if backend.DiffQueues(c.Queues, next.Queues) {
		return true
	}
	if !reflect.DeepEqual(c.settings(), next.settings()) {
		return true
	}
	return c.pollInterval() != next.pollInterval()
}

// getConfiguration retrieves the active configuration under lock, making it safe to use
// concurrently. The active configuration may change underneath the client of this method, but
// the struct returned by this API call is considered immutable.
func (p *Plugin) getConfiguration() *configuration {
	p.configurationLock.RLock()
	defer p.configurationLock.RUnlock()

	if p.configuration == nil {
		return &configuration{}
	}

	return p.configuration
}

// setConfiguration replaces the active configuration under lock.
//
// Do not call setConfiguration while holding the configurationLock, as sync.Mutex is not
// reentrant. In particular, avoid using the plugin API entirely, as this may in turn trigger a
// hook back into the plugin. If that hook attempts to acquire this lock, a deadlock may occur.
//
// This method panics if setConfiguration is called with the existing configuration. This almost
// certainly means that the configuration was modified without being cloned and may result in
// an unsafe access.
func (p *Plugin) setConfiguration(configuration *configuration) {
	p.configurationLock.Lock()
	defer p.configurationLock.Unlock()

	if configuration != nil && p.configuration == configuration {
		// Ignore assignment if the configuration struct is empty. Go will optimize the
		// allocation for same to point at the same memory address, breaking the check
		// above.
		if reflect.ValueOf(*configuration).NumField() == 0 {
			return
		}

		panic("setConfiguration called with the existing configuration")
	}

	p.configuration = configuration
}

// OnConfigurationChange is invoked when configuration changes may have been made.
func (p *Plugin) OnConfigurationChange() error {
	var newConfig = new(configuration)

	// Load the public configuration fields from the Mattermost server configuration.
	if err := p.API.LoadPluginConfiguration(newConfig); err != nil {
		return errors.Wrap(err, "failed to load plugin configuration")
	}

	if err := newConfig.validate(); err != nil {
		return errors.Wrap(err, "invalid service bus configuration")
	}

	oldConfig := p.getConfiguration()
	p.setConfiguration(newConfig)

	// Before OnActivate the hook only records the configuration.
	if p.registry == nil {
		return nil
	}

	p.applyConfiguration(oldConfig, newConfig)

	return nil
}

// applyConfiguration brings the monitoring system in line with newConfig.
// Failures are logged and notified but never reject the configuration.
func (p *Plugin) applyConfiguration(oldConfig, newConfig *configuration) {
	system := p.getSystem()

	switch {
	case !newConfig.isConfigured():
		p.replaceSystem(nil)
		return

	case system == nil || oldConfig.requiresRebuild(newConfig):
		p.rebuildSystem(newConfig)
		return

	case oldConfig.descriptor() != newConfig.descriptor():
		if err := system.SwitchServiceBus(newConfig.descriptor()); err != nil {
			p.reportConfigurationError("Failed to switch service bus", err)
			return
		}
		p.API.LogInfo("Switched service bus", "serviceBus", system.Descriptor().String())
	}

	watched, _ := newConfig.watched()
	for _, category := range backend.Categories {
		system.SetWatched(category, containsCategory(watched, category))
	}

	if newConfig.Enabled {
		if err := system.StartMonitoring(); err != nil {
			p.reportConfigurationError("Failed to start monitoring", err)
		}
	} else {
		system.StopMonitoring()
	}
}

func containsCategory(categories []backend.Category, category backend.Category) bool {
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}
