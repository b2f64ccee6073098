package cli

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	"github.com/mattermost/mattermost-plugin-sbmq/server/backend/memory"
)

func countMessages(t *testing.T, adapter *memory.Adapter) (unprocessed, processed int) {
	t.Helper()

	for _, category := range backend.Categories {
		result, err := adapter.GetUnprocessedMessages(context.Background(), backend.FetchUnprocessedRequest{Category: category})
		require.NoError(t, err)
		unprocessed += len(result.Items)

		result, err = adapter.GetProcessedMessages(context.Background(), category, time.Time{}, nil)
		require.NoError(t, err)
		processed += len(result.Items)
	}
	return unprocessed, processed
}

func TestDemoTraffic_Step(t *testing.T) {
	logger, err := NewLogger(io.Discard, "error", false)
	require.NoError(t, err)

	adapter := memory.New()
	require.NoError(t, adapter.Initialize(backend.ConnectionSettings{}, DemoQueues(), nil))

	demo := newDemoTraffic(adapter, DemoQueues(), logger, 42)

	demo.step()
	demo.step()
	unprocessed, processed := countMessages(t, adapter)
	assert.Equal(t, 2, unprocessed)
	assert.Zero(t, processed)

	// the third message settles the first one
	demo.step()
	unprocessed, processed = countMessages(t, adapter)
	assert.Equal(t, 3, unprocessed+processed)
	assert.LessOrEqual(t, processed, 1)
	assert.Len(t, demo.inFlight, 2)
}

func TestDemoTraffic_NoSourceQueues(t *testing.T) {
	logger, err := NewLogger(io.Discard, "error", false)
	require.NoError(t, err)

	queues := []backend.Queue{{Name: "orders.errors", Category: backend.Error}}
	adapter := memory.New()
	require.NoError(t, adapter.Initialize(backend.ConnectionSettings{}, queues, nil))

	newDemoTraffic(adapter, queues, logger, 1).step()

	unprocessed, processed := countMessages(t, adapter)
	assert.Zero(t, unprocessed+processed)
}
