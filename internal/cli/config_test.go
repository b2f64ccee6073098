package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/backend/memory"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, backend.DefaultPollIntervalSeconds, cfg.PollIntervalSeconds)
	assert.Equal(t, backend.MaxItemsPerQueue, cfg.MaxItemsPerQueue)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.ServiceBus)
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("json overlays defaults", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "sbmq.json")
		data := []byte(`{
			"serviceBus": "Forq",
			"connectionSettings": {"dbPath": "/var/lib/forq/forq.db"},
			"queues": [
				{"name": "orders", "category": "Command"},
				{"name": "orders-dlq", "category": "errors", "color": "#FF0000"}
			],
			"pollIntervalSeconds": 10
		}`)
		require.NoError(t, os.WriteFile(file, data, 0644))

		cfg, err := Load(file)
		require.NoError(t, err)

		assert.Equal(t, "Forq", cfg.ServiceBus)
		assert.Equal(t, "/var/lib/forq/forq.db", cfg.ConnectionSettings["dbPath"])
		require.Len(t, cfg.Queues, 2)
		assert.Equal(t, backend.Command, cfg.Queues[0].Category)
		assert.Equal(t, backend.Error, cfg.Queues[1].Category)
		assert.Equal(t, 10*time.Second, cfg.PollInterval())
		assert.Equal(t, backend.MaxItemsPerQueue, cfg.MaxItemsPerQueue, "unset fields keep their default")
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(file, []byte(`{"queues": [{"category": "Audit"}]}`), 0644))

		_, err := Load(file)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse")
	})
}

func TestConfig_ApplyDemo(t *testing.T) {
	t.Run("fills queues", func(t *testing.T) {
		cfg := Default()
		cfg.ServiceBus = "Forq"
		cfg.ApplyDemo()

		assert.Equal(t, memory.Descriptor, cfg.Descriptor())
		assert.Equal(t, DemoQueues(), cfg.Queues)
		require.NoError(t, cfg.Validate())
	})

	t.Run("keeps configured queues", func(t *testing.T) {
		cfg := Default()
		cfg.Queues = []backend.Queue{{Name: "jobs", Category: backend.Command}}
		cfg.ApplyDemo()

		assert.Len(t, cfg.Queues, 1)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.ApplyDemo()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "missing service bus", mutate: func(c *Config) { c.ServiceBus = "" }, wantErr: "serviceBus"},
		{name: "no queues", mutate: func(c *Config) { c.Queues = nil }, wantErr: "at least one queue"},
		{name: "zero interval", mutate: func(c *Config) { c.PollIntervalSeconds = 0 }, wantErr: "poll interval"},
		{name: "zero max items", mutate: func(c *Config) { c.MaxItemsPerQueue = 0 }, wantErr: "max items"},
		{name: "bad category", mutate: func(c *Config) { c.WatchedCategories = []string{"audit"} }, wantErr: "unknown queue category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Watched(t *testing.T) {
	cfg := Default()

	watched, err := cfg.Watched()
	require.NoError(t, err)
	assert.Equal(t, backend.Categories, watched)

	cfg.WatchedCategories = []string{"Events", "error"}
	watched, err = cfg.Watched()
	require.NoError(t, err)
	assert.Equal(t, []backend.Category{backend.Event, backend.Error}, watched)
}
