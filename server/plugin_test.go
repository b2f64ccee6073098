package main

import (
	"errors"
	"testing"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin/plugintest"
	"github.com/mattermost/mattermost/server/public/pluginapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend/memory"
	"github.com/mattermost/mattermost-plugin-sbmq/server/monitor"
)

func TestOnActivate(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		api := &plugintest.API{}
		allowLogs(api)
		api.On("EnsureBotUser", mock.MatchedBy(func(bot *model.Bot) bool {
			return bot.Username == defaultBotUsername && bot.DisplayName == defaultBotDisplayName
		})).Return("bot-id", nil).Once()

		p := &Plugin{}
		p.SetAPI(api)

		require.NoError(t, p.OnActivate())
		assert.NotNil(t, p.registry)
		assert.NotNil(t, p.router)
		assert.Nil(t, p.getSystem())
		assert.NotNil(t, p.throttle)
		require.NoError(t, p.OnDeactivate())
		assert.Nil(t, p.throttle)
		api.AssertExpectations(t)
	})

	t.Run("configured but disabled", func(t *testing.T) {
		api := &plugintest.API{}
		allowLogs(api)
		api.On("EnsureBotUser", mock.MatchedBy(func(bot *model.Bot) bool {
			return bot.Username == "queues"
		})).Return("bot-id", nil).Once()

		config := memoryConfiguration()
		config.BotUsername = "queues"

		p := &Plugin{}
		p.SetAPI(api)
		p.setConfiguration(config)

		require.NoError(t, p.OnActivate())
		system := p.getSystem()
		require.NotNil(t, system)
		assert.Equal(t, memory.Descriptor, system.Descriptor())
		assert.Equal(t, monitor.StateStopped, system.MonitoringState())

		require.NoError(t, p.OnDeactivate())
		assert.Nil(t, p.getSystem())
	})

	t.Run("bot failure", func(t *testing.T) {
		api := &plugintest.API{}
		api.On("EnsureBotUser", mock.Anything).Return("", errors.New("no bots")).Once()

		p := &Plugin{}
		p.SetAPI(api)

		err := p.OnActivate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ensure bot user")
	})
}

func TestDisableMonitoring(t *testing.T) {
	t.Run("persists enabled false", func(t *testing.T) {
		api := &plugintest.API{}
		allowLogs(api)
		api.On("SavePluginConfig", mock.MatchedBy(func(config map[string]any) bool {
			return config["enabled"] == false && config["serviceBus"] == memory.Descriptor.Name
		})).Return(nil).Once()

		config := memoryConfiguration()
		config.Enabled = true

		p := &Plugin{}
		p.SetAPI(api)
		p.client = pluginapi.NewClient(api, nil)
		p.setConfiguration(config)

		p.disableMonitoring(errors.New("restore failed"))

		api.AssertExpectations(t)
		assert.True(t, p.getConfiguration().Enabled, "the active configuration changes through OnConfigurationChange only")
	})

	t.Run("already disabled", func(t *testing.T) {
		api := &plugintest.API{}

		p := &Plugin{}
		p.SetAPI(api)
		p.client = pluginapi.NewClient(api, nil)
		p.setConfiguration(memoryConfiguration())

		p.disableMonitoring(nil)

		api.AssertNotCalled(t, "SavePluginConfig", mock.Anything)
	})
}
