package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/plugin/plugintest"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/backend/memory"
	"github.com/mattermost/mattermost-plugin-sbmq/server/metrics"
	"github.com/mattermost/mattermost-plugin-sbmq/server/monitor"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

var testQueues = []backend.Queue{
	{Name: "orders.commands", Category: backend.Command, Color: "#3366FF"},
	{Name: "orders.events", Category: backend.Event},
	{Name: "orders.errors", Category: backend.Error, Color: "#FF0000"},
}

// newTestPlugin returns a plugin whose monitoring system runs on the memory adapter.
func newTestPlugin(t *testing.T, api *plugintest.API) (*Plugin, *monitor.System, *memory.Adapter) {
	t.Helper()

	registry := backend.NewRegistry(backend.NopLogger{})
	system, err := monitor.New(registry, monitor.Options{
		Descriptor:     memory.Descriptor,
		Queues:         testQueues,
		Watched:        backend.Categories,
		PollInterval:   tick,
		PausedInterval: tick,
		GateTimeout:    waitFor,
		Logger:         backend.NopLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = system.Close() })

	adapter, ok := system.Adapter().(*memory.Adapter)
	require.True(t, ok)

	p := &Plugin{
		registry: registry,
		metrics:  metrics.NewMetricsService(false),
		system:   system,
	}
	p.SetAPI(api)
	p.router = p.initRouter()

	return p, system, adapter
}

func doRequest(p *Plugin, method, path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Mattermost-User-ID", "user-id")
	w := httptest.NewRecorder()
	p.ServeHTTP(nil, w, r)
	return w
}

// waitForItem blocks until the item with id is visible with the given processed flag.
func waitForItem(t *testing.T, system *monitor.System, id string, processed bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		item, ok := system.FindItem(id)
		return ok && item.Processed == processed
	}, waitFor, tick)
}

func pending(t *testing.T, adapter *memory.Adapter, category backend.Category) []string {
	t.Helper()
	result, err := adapter.GetUnprocessedMessages(context.Background(), backend.FetchUnprocessedRequest{Category: category})
	require.NoError(t, err)

	ids := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		ids = append(ids, item.ID)
	}
	return ids
}
