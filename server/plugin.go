package main

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/mattermost/mattermost/server/public/pluginapi"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	_ "github.com/mattermost/mattermost-plugin-sbmq/server/backend/forq"   // Register forq adapter factory
	_ "github.com/mattermost/mattermost-plugin-sbmq/server/backend/memory" // Register memory adapter factory
	"github.com/mattermost/mattermost-plugin-sbmq/server/formatter"
	"github.com/mattermost/mattermost-plugin-sbmq/server/metrics"
	"github.com/mattermost/mattermost-plugin-sbmq/server/monitor"
	"github.com/mattermost/mattermost-plugin-sbmq/server/poster"
	"github.com/mattermost/mattermost-plugin-sbmq/server/store"
)

const (
	defaultBotUsername    = "sbmq"
	defaultBotDisplayName = "Service Bus Monitor"
)

// Plugin implements the interface expected by the Mattermost server to communicate between the server and plugin processes.
type Plugin struct {
	plugin.MattermostPlugin

	// client is the Mattermost server API client.
	client *pluginapi.Client

	// configurationLock synchronizes access to the configuration.
	configurationLock sync.RWMutex

	// configuration is the active plugin configuration. Consult getConfiguration and
	// setConfiguration for usage.
	configuration *configuration

	// registry holds every compiled-in service bus adapter.
	registry *backend.Registry

	metrics metrics.Service

	// poster posts monitoring notifications to Mattermost channels.
	poster NotificationPoster

	// throttle suppresses repeated error notifications of the active system.
	throttle *notificationThrottle

	router *mux.Router

	// systemLock guards system, unsubscribe and loaded.
	systemLock  sync.RWMutex
	system      *monitor.System
	unsubscribe func()

	// loaded remembers every descriptor used by retired systems, so a rebuilt
	// system still refuses a version switch that needs a restart.
	loaded []backend.Descriptor
}

// OnActivate is invoked when the plugin is activated. If an error is returned, the plugin will be deactivated.
func (p *Plugin) OnActivate() error {
	p.client = pluginapi.NewClient(p.API, p.Driver)

	config := p.getConfiguration()

	botUsername := config.BotUsername
	if botUsername == "" {
		botUsername = defaultBotUsername
	}
	botDisplayName := config.BotDisplayName
	if botDisplayName == "" {
		botDisplayName = defaultBotDisplayName
	}

	botID, err := p.API.EnsureBotUser(&model.Bot{
		Username:    botUsername,
		DisplayName: botDisplayName,
		Description: "Bot for posting service bus monitoring notifications",
	})
	if err != nil {
		return errors.Wrap(err, "failed to ensure bot user")
	}

	p.API.LogInfo("Bot user initialized", "botID", botID, "username", botUsername)

	p.poster = poster.New(p.API, botID)
	p.throttle = newNotificationThrottle(&p.client.Log, NotificationRepeatWindow)
	p.metrics = metrics.NewMetricsService(config.EnableMetrics)
	p.registry = backend.NewRegistry(&p.client.Log)
	p.router = p.initRouter()

	p.API.LogInfo("Service bus adapters available", "count", p.registry.Count())

	if config.isConfigured() {
		p.rebuildSystem(config)
	}

	return nil
}

// OnDeactivate is invoked when the plugin is deactivated.
func (p *Plugin) OnDeactivate() error {
	p.replaceSystem(nil)

	if p.throttle != nil {
		p.throttle.Stop()
		p.throttle = nil
	}

	return nil
}

// getSystem returns the active monitoring system, nil when none is configured.
func (p *Plugin) getSystem() *monitor.System {
	p.systemLock.RLock()
	defer p.systemLock.RUnlock()

	return p.system
}

// rebuildSystem retires the active system and builds a new one from config.
// Errors are logged and notified but leave the plugin active without monitoring.
func (p *Plugin) rebuildSystem(config *configuration) {
	p.replaceSystem(nil)

	watched, err := config.watched()
	if err != nil {
		p.reportConfigurationError("Invalid watched categories", err)
		return
	}

	p.systemLock.RLock()
	loaded := append([]backend.Descriptor(nil), p.loaded...)
	p.systemLock.RUnlock()

	system, err := monitor.New(p.registry, monitor.Options{
		Descriptor:        config.descriptor(),
		Settings:          config.settings(),
		Queues:            config.Queues,
		Watched:           watched,
		PollInterval:      config.pollInterval(),
		LoadedDescriptors: loaded,
		Logger:            &p.client.Log,
		Metrics:           p.metrics,
	})
	if err != nil {
		p.reportConfigurationError("Failed to create monitoring system", err)
		return
	}

	p.replaceSystem(system)

	if !config.Enabled {
		p.API.LogInfo("Monitoring system ready but not started (disabled)", "serviceBus", system.Descriptor().String())
		return
	}

	if err := system.StartMonitoring(); err != nil {
		p.reportConfigurationError("Failed to start monitoring", err)
		return
	}

	p.API.LogInfo("Monitoring started", "serviceBus", system.Descriptor().String(), "queues", len(config.Queues))
}

// replaceSystem swaps the active system for next and closes the previous one.
func (p *Plugin) replaceSystem(next *monitor.System) {
	p.systemLock.Lock()
	previous := p.system
	unsubscribe := p.unsubscribe
	p.system = next
	p.unsubscribe = nil
	if previous != nil {
		p.loaded = append(p.loaded, previous.History()...)
	}
	if next != nil {
		if p.throttle != nil {
			p.throttle.Reset()
		}
		status := store.NewStatusStore(p.API, next.Descriptor().Name)
		p.unsubscribe = next.Events().Subscribe(newNotifier(next, status, p.poster, &p.client.Log, p.getConfiguration, p.throttle, p.disableMonitoring))
	}
	p.systemLock.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if previous != nil {
		if err := previous.Close(); err != nil {
			p.API.LogWarn("Failed to close monitoring system", "error", err.Error())
		}
	}
}

// reportConfigurationError logs err and posts it to the notification channel.
func (p *Plugin) reportConfigurationError(message string, err error) {
	p.API.LogError(message, "error", err.Error())

	config := p.getConfiguration()
	if config.NotificationChannelID == "" || p.poster == nil {
		return
	}

	n := formatter.Notification{
		Severity:   formatter.SeverityError,
		ServiceBus: config.descriptor().String(),
		Message:    message,
		Detail:     err.Error(),
		Time:       time.Now(),
		Topics:     []string{config.ServiceBus, config.QueueType},
	}
	if errors.Is(err, backend.ErrRestartRequired) {
		n.Severity = formatter.SeverityWarning
	}

	if postErr := p.poster.PostNotification(n, config.NotificationChannelID); postErr != nil {
		p.API.LogError("Failed to post notification", "error", postErr.Error())
	}
}

// disableMonitoring sets Enabled to false and persists the configuration change.
// This is called after a fatal monitoring error so the plugin does not keep retrying
// a broken service bus after a restart. The configuration change will trigger
// OnConfigurationChange, which will stop monitoring.
func (p *Plugin) disableMonitoring(cause error) {
	configClone := p.getConfiguration().Clone()
	if !configClone.Enabled {
		return
	}
	configClone.Enabled = false

	reason := "fatal monitoring error"
	if cause != nil {
		reason = cause.Error()
	}
	p.API.LogInfo("Disabling monitoring in configuration", "reason", reason)

	// Marshal the configuration to map[string]any for SavePluginConfig
	marshalBytes, err := json.Marshal(configClone)
	if err != nil {
		p.API.LogError("Failed to marshal configuration", "error", err.Error())
		return
	}

	configMap := make(map[string]any)
	if err := json.Unmarshal(marshalBytes, &configMap); err != nil {
		p.API.LogError("Failed to unmarshal configuration to map", "error", err.Error())
		return
	}

	if err := p.client.Configuration.SavePluginConfig(configMap); err != nil {
		p.API.LogError("Failed to save plugin configuration", "error", err.Error())
		return
	}

	p.API.LogInfo("Monitoring disabled and configuration persisted")
}

// See https://developers.mattermost.com/extend/plugins/server/reference/
