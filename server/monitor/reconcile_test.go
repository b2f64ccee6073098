package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
)

func TestReconciler_RefreshUnprocessed(t *testing.T) {
	ctx := context.Background()

	t.Run("orders new items newest first", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command, ok(item("B", commandQueue, 2), item("A", commandQueue, 1), item("C", commandQueue, 3)))
		r, store, _, _ := newTestReconciler(adapter, backend.Command)

		changed, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []string{"C", "B", "A"}, ids(store.Snapshot()))
		assert.Equal(t, uint32(3), store.Count(backend.Command))
	})

	t.Run("is idempotent when nothing changes", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command, ok(item("A", commandQueue, 1), item("B", commandQueue, 2)))
		r, store, _, _ := newTestReconciler(adapter, backend.Command)

		_, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)
		before := store.Snapshot()

		changed, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, before, store.Snapshot())
	})

	t.Run("marks items missing from the fetch as processed", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command,
			ok(item("A", commandQueue, 1), item("B", commandQueue, 2)),
			ok(item("A", commandQueue, 1)),
		)
		r, store, _, _ := newTestReconciler(adapter, backend.Command)

		_, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)
		changed, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)
		assert.True(t, changed)

		b, found := store.Find("B")
		require.True(t, found)
		assert.True(t, b.Processed)

		a, found := store.Find("A")
		require.True(t, found)
		assert.False(t, a.Processed)
		assert.Equal(t, uint32(1), store.Count(backend.Command))
	})

	t.Run("moves a retried item back to the head", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command,
			ok(item("A", commandQueue, 1)),
			ok(item("B", commandQueue, 2)),
			ok(item("A", commandQueue, 1), item("B", commandQueue, 2)),
		)
		r, store, _, _ := newTestReconciler(adapter, backend.Command)

		for i := 0; i < 2; i++ {
			_, err := r.RefreshUnprocessed(ctx)
			require.NoError(t, err)
		}
		a, _ := store.Find("A")
		require.True(t, a.Processed)

		changed, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)
		assert.True(t, changed)

		items := store.Snapshot()
		assert.Equal(t, []string{"A", "B"}, ids(items))
		assert.False(t, items[0].Processed)
		assert.False(t, items[1].Processed)
	})

	t.Run("keeps the first occurrence of an id", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command, ok(item("A", commandQueue, 1)))
		adapter.script(backend.Event, ok(item("A", eventQueue, 1), item("E", eventQueue, 2)))
		r, store, _, _ := newTestReconciler(adapter, backend.Command, backend.Event)

		_, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)

		items := store.Snapshot()
		assert.Equal(t, []string{"E", "A"}, ids(items))
		assert.Equal(t, commandQueue, items[1].Queue)
	})

	t.Run("counts a dead-lettered item once", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command, backend.FetchResult{
			Status: backend.FetchOK,
			Items:  []backend.Item{item("A", commandQueue, 1), item("X", errorQueue, 2), item("Z", errorQueue, 3)},
			Count:  1,
		})
		adapter.script(backend.Error, ok(item("X", errorQueue, 2), item("Y", errorQueue, 4)))
		r, store, _, _ := newTestReconciler(adapter, backend.Command, backend.Error)

		for i := 0; i < 3; i++ {
			_, err := r.RefreshUnprocessed(ctx)
			require.NoError(t, err)

			// X and Y from the error fetch, Z surfaced by the command fetch only
			assert.Equal(t, uint32(3), store.Count(backend.Error))
		}
		assert.Len(t, store.Snapshot(), 4)
	})

	t.Run("counts surfaced errors when the error category is unwatched", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command, ok(item("A", commandQueue, 1), item("X", errorQueue, 2)))
		r, store, _, _ := newTestReconciler(adapter, backend.Command)

		_, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)

		assert.Equal(t, uint32(1), store.Count(backend.Error))
		assert.Equal(t, []string{"A"}, ids(store.Snapshot()))
		assert.NotContains(t, adapter.fetchCalls(), backend.Error)
	})

	t.Run("does not recount known errors when the error queue is unchanged", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command, ok(item("A", commandQueue, 1), item("X", errorQueue, 2)))
		adapter.script(backend.Error,
			ok(item("X", errorQueue, 2)),
			backend.FetchResult{Status: backend.FetchNotChanged},
		)
		r, store, _, _ := newTestReconciler(adapter, backend.Command, backend.Error)

		for i := 0; i < 2; i++ {
			_, err := r.RefreshUnprocessed(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint32(1), store.Count(backend.Error))
		}
	})

	t.Run("connection failure leaves the unreached queues untouched", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command, ok(item("A", commandQueue, 1)))
		adapter.script(backend.Event,
			ok(item("B", eventQueue, 2)),
			backend.FetchResult{Status: backend.FetchConnectionFailed},
		)
		adapter.script(backend.Error, ok(item("X", errorQueue, 3)), ok())
		r, store, _, listener := newTestReconciler(adapter, backend.Command, backend.Event, backend.Error)

		_, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)
		require.Len(t, store.Snapshot(), 3)

		_, err = r.RefreshUnprocessed(ctx)
		require.NoError(t, err)

		for _, id := range []string{"A", "B", "X"} {
			it, found := store.Find(id)
			require.True(t, found, id)
			assert.False(t, it.Processed, id)
		}
		assert.Equal(t, 1, listener.warningCount())

		// the error category is not fetched after the failure
		assert.Equal(t, []backend.Category{
			backend.Command, backend.Event, backend.Error,
			backend.Command, backend.Event,
		}, adapter.fetchCalls())
	})

	t.Run("not changed keeps the category items", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command,
			ok(item("A", commandQueue, 1)),
			backend.FetchResult{Status: backend.FetchNotChanged},
		)
		r, store, _, _ := newTestReconciler(adapter, backend.Command)

		_, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)

		changed, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)
		assert.False(t, changed)

		a, _ := store.Find("A")
		assert.False(t, a.Processed)
		assert.Equal(t, uint32(1), store.Count(backend.Command))
	})

	t.Run("passes the known items and count as hints", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command, ok(item("A", commandQueue, 1), item("B", commandQueue, 2)))
		r, _, _, _ := newTestReconciler(adapter, backend.Command)

		for i := 0; i < 2; i++ {
			_, err := r.RefreshUnprocessed(ctx)
			require.NoError(t, err)
		}

		require.Len(t, adapter.requests, 2)
		assert.Empty(t, adapter.requests[0].KnownItems)
		assert.Equal(t, uint32(0), adapter.requests[0].KnownCount)
		assert.Len(t, adapter.requests[1].KnownItems, 2)
		assert.Equal(t, uint32(2), adapter.requests[1].KnownCount)
	})

	t.Run("drops items of a category unwatched during the cycle", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command, ok(item("A", commandQueue, 1)))
		adapter.script(backend.Event, ok(item("B", eventQueue, 2)))
		r, store, state, _ := newTestReconciler(adapter, backend.Command, backend.Event)

		adapter.onFetch = func(category backend.Category) {
			if category == backend.Event {
				store.SetWatched(state, backend.Event, false)
			}
		}

		_, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)

		assert.Equal(t, []string{"A"}, ids(store.Snapshot()))
		assert.Equal(t, uint32(0), store.Count(backend.Event))
	})

	t.Run("does nothing when no category is watched", func(t *testing.T) {
		adapter := newFakeAdapter()
		r, _, _, _ := newTestReconciler(adapter)

		changed, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Empty(t, adapter.fetchCalls())
	})

	t.Run("does nothing when the adapter monitors no queues", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.queues = nil
		r, _, _, _ := newTestReconciler(adapter, backend.Command)

		changed, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Empty(t, adapter.fetchCalls())
	})

	t.Run("returns adapter errors", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.fetchErr = errors.New("boom")
		r, store, _, _ := newTestReconciler(adapter, backend.Command)

		_, err := r.RefreshUnprocessed(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.Empty(t, store.Snapshot())
	})

	t.Run("fails without an adapter", func(t *testing.T) {
		r := NewReconciler(NewItemStore(), NewMonitorState(backend.Command), func() backend.Adapter { return nil }, nil, nil, nil)

		_, err := r.RefreshUnprocessed(ctx)
		assert.True(t, errors.Is(err, backend.ErrNotInitialized))
	})
}

func TestReconciler_ConcurrentCycles(t *testing.T) {
	ctx := context.Background()

	adapter := newFakeAdapter()
	adapter.script(backend.Command,
		ok(item("X", commandQueue, 1)),
		ok(item("X", commandQueue, 1)),
		ok(),
	)
	r, store, _, _ := newTestReconciler(adapter, backend.Command)

	_, err := r.RefreshUnprocessed(ctx)
	require.NoError(t, err)

	// the next fetch (still returning X) blocks until released
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	adapter.mu.Lock()
	adapter.onFetch = func(backend.Category) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	adapter.mu.Unlock()

	first := make(chan error, 1)
	go func() {
		_, err := r.RefreshUnprocessed(ctx)
		first <- err
	}()
	<-entered

	second := make(chan error, 1)
	go func() {
		_, err := r.RefreshUnprocessed(ctx)
		second <- err
	}()

	// give the second cycle the chance to run ahead of the blocked one
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-first)
	require.NoError(t, <-second)

	// the newest fetch no longer has X, so X stays processed
	x, found := store.Find("X")
	require.True(t, found)
	assert.True(t, x.Processed)
	assert.Equal(t, uint32(0), store.Count(backend.Command))
}

func TestReconciler_RetrieveProcessed(t *testing.T) {
	ctx := context.Background()

	t.Run("appends unknown processed items sorted newest first", func(t *testing.T) {
		adapter := newFakeAdapter()
		adapter.script(backend.Command, ok(item("B", commandQueue, 5)))
		adapter.processed[backend.Command] = []backend.Item{item("A", commandQueue, 1), item("B", commandQueue, 5), item("C", commandQueue, 9)}
		adapter.processed[backend.Event] = []backend.Item{item("E", eventQueue, 3)}
		r, store, _, _ := newTestReconciler(adapter, backend.Command)

		_, err := r.RefreshUnprocessed(ctx)
		require.NoError(t, err)

		changed, err := r.RetrieveProcessed(ctx, time.Hour)
		require.NoError(t, err)
		assert.True(t, changed)

		items := store.Snapshot()
		assert.Equal(t, []string{"C", "B", "A"}, ids(items))
		assert.True(t, items[0].Processed)
		assert.False(t, items[1].Processed)
		assert.True(t, items[2].Processed)

		changed, err = r.RetrieveProcessed(ctx, time.Hour)
		require.NoError(t, err)
		assert.False(t, changed)
	})
}
