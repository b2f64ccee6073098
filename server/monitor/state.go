package monitor

import (
	"sync"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
)

// MonitorState records which queue categories are being watched.
// Reads are safe from any goroutine; changes go through ItemStore.SetWatched
// so that unwatching and purging the category's items happen atomically.
type MonitorState struct {
	mu      sync.RWMutex
	watched [backend.CategoryCount]bool
}

// NewMonitorState creates a state with the given categories watched.
func NewMonitorState(watched ...backend.Category) *MonitorState {
	s := &MonitorState{}
	for _, c := range watched {
		if c.Valid() {
			s.watched[c] = true
		}
	}
	return s
}

// IsWatched reports whether category is being watched.
func (s *MonitorState) IsWatched(category backend.Category) bool {
	if !category.Valid() {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.watched[category]
}

// AnyWatched reports whether at least one category is being watched.
func (s *MonitorState) AnyWatched() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.watched {
		if w {
			return true
		}
	}
	return false
}

// Watched returns the watched categories in fetch order.
func (s *MonitorState) Watched() []backend.Category {
	snapshot := s.Snapshot()

	categories := make([]backend.Category, 0, backend.CategoryCount)
	for _, c := range backend.Categories {
		if snapshot[c] {
			categories = append(categories, c)
		}
	}
	return categories
}

// Snapshot returns a copy of the per-category flags.
func (s *MonitorState) Snapshot() [backend.CategoryCount]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.watched
}

// set changes one flag and returns its previous value.
func (s *MonitorState) set(category backend.Category, watched bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.watched[category]
	s.watched[category] = watched
	return previous
}
