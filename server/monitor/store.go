package monitor

import (
	"sort"
	"strings"
	"sync"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
)

// ItemStore holds the ordered item list and the per-category unprocessed counts.
// The list is ordered newest first. Every mutation happens under one lock so
// readers never observe a half-applied merge.
type ItemStore struct {
	mu     sync.Mutex
	items  []*backend.Item
	counts [backend.CategoryCount]uint32

	// errorFetchCount is the count reported by the Error category fetch alone,
	// before dead-lettered items surfaced by other categories are added.
	errorFetchCount uint32
}

// NewItemStore creates an empty store.
func NewItemStore() *ItemStore {
	return &ItemStore{}
}

// Snapshot returns a copy of every item, newest first.
func (s *ItemStore) Snapshot() []backend.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.copyItems(nil)
}

// Filtered returns a copy of the items matching every filter term.
// Terms are matched case-insensitively against the display name, queue name and id.
func (s *ItemStore) Filtered(terms []string) []backend.Item {
	if len(terms) == 0 {
		return s.Snapshot()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.copyItems(func(item *backend.Item) bool {
		return matchesFilter(item, terms)
	})
}

func (s *ItemStore) copyItems(keep func(*backend.Item) bool) []backend.Item {
	items := make([]backend.Item, 0, len(s.items))
	for _, item := range s.items {
		if keep == nil || keep(item) {
			items = append(items, item.Clone())
		}
	}
	return items
}

// Len returns the number of items, processed ones included.
func (s *ItemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

// Find returns the item with the given id.
func (s *ItemStore) Find(id string) (backend.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.ID == id {
			return item.Clone(), true
		}
	}
	return backend.Item{}, false
}

// Count returns the unprocessed count of a category.
func (s *ItemStore) Count(category backend.Category) uint32 {
	if !category.Valid() {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts[category]
}

// Counts returns the unprocessed counts indexed by category.
func (s *ItemStore) Counts() [backend.CategoryCount]uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts
}

func (s *ItemStore) fetchHints() ([]backend.Item, [backend.CategoryCount]uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.copyItems(nil), s.counts, s.errorFetchCount
}

// SetWatched changes whether a category is watched. Unwatching removes every
// item of that category and resets its count in the same critical section, so
// a concurrent merge cannot reintroduce them. It returns the number of removed items.
func (s *ItemStore) SetWatched(state *MonitorState, category backend.Category, watched bool) int {
	if !category.Valid() {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := state.set(category, watched)
	if !previous || watched {
		return 0
	}

	s.counts[category] = 0
	if category == backend.Error {
		s.errorFetchCount = 0
	}

	return s.removeLocked(func(item *backend.Item) bool {
		return item.Queue.Category == category
	})
}

// ClearProcessed removes every processed item and returns how many were removed.
func (s *ItemStore) ClearProcessed() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeLocked(func(item *backend.Item) bool {
		return item.Processed
	})
}

// Clear drops every item and resets the counts.
func (s *ItemStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.counts = [backend.CategoryCount]uint32{}
	s.errorFetchCount = 0
}

// EvictOverflow bounds every queue to max items. Within a queue, processed
// items are evicted first, oldest first, then the oldest unprocessed ones.
func (s *ItemStore) EvictOverflow(max int) int {
	if max < 0 {
		max = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byQueue := make(map[string][]*backend.Item)
	for _, item := range s.items {
		byQueue[item.Queue.Name] = append(byQueue[item.Queue.Name], item)
	}

	evict := make(map[*backend.Item]struct{})
	for _, candidates := range byQueue {
		overflow := len(candidates) - max
		if overflow <= 0 {
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Processed != candidates[j].Processed {
				return candidates[i].Processed
			}
			return candidates[i].ArrivedTime.Before(candidates[j].ArrivedTime)
		})
		for _, item := range candidates[:overflow] {
			evict[item] = struct{}{}
		}
	}

	if len(evict) == 0 {
		return 0
	}

	return s.removeLocked(func(item *backend.Item) bool {
		_, ok := evict[item]
		return ok
	})
}

func (s *ItemStore) removeLocked(remove func(*backend.Item) bool) int {
	kept := s.items[:0]
	removed := 0
	for _, item := range s.items {
		if remove(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = nil
	}
	s.items = kept
	return removed
}

// applyUnprocessed applies one poll cycle's result. batch holds the fetched
// unprocessed items, deduplicated and sorted oldest first. Items of categories
// that are no longer watched are dropped, and so are the counts of categories
// unwatched since the fetch started. It reports whether the list or the counts changed.
func (s *ItemStore) applyUnprocessed(state *MonitorState, watchedAtFetch [backend.CategoryCount]bool, batch []backend.Item, unchanged map[string]struct{}, counts [backend.CategoryCount]uint32, errorFetchCount uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	watched := state.Snapshot()

	kept := make([]backend.Item, 0, len(batch))
	for _, item := range batch {
		if item.Queue.Category.Valid() && watched[item.Queue.Category] {
			kept = append(kept, item)
		}
	}

	for _, c := range backend.Categories {
		if watchedAtFetch[c] && !watched[c] {
			counts[c] = 0
		}
	}
	if !watched[backend.Error] {
		errorFetchCount = 0
	}

	return s.mergeUnprocessed(kept, unchanged, counts, errorFetchCount)
}

// applyProcessed merges processed items of watched categories.
func (s *ItemStore) applyProcessed(state *MonitorState, fetched []backend.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	watched := state.Snapshot()

	kept := make([]backend.Item, 0, len(fetched))
	for _, item := range fetched {
		if item.Queue.Category.Valid() && watched[item.Queue.Category] {
			kept = append(kept, item)
		}
	}
	return s.mergeProcessed(kept)
}

// mergeUnprocessed must be called with the lock held. Known unprocessed items
// missing from the batch are marked processed unless their queue is in unchanged.
func (s *ItemStore) mergeUnprocessed(batch []backend.Item, unchanged map[string]struct{}, counts [backend.CategoryCount]uint32, errorFetchCount uint32) bool {
	// the list order is newest first, so new arrivals go to the front
	// reversed: the newest item of the batch ends up first
	var head []*backend.Item
	present := make(map[string]struct{}, len(batch))
	index := make(map[string]*backend.Item, len(s.items))
	for _, item := range s.items {
		index[item.ID] = item
	}

	changed := false
	for i := range batch {
		fetched := batch[i]
		present[fetched.ID] = struct{}{}

		existing, ok := index[fetched.ID]
		if !ok {
			item := fetched.Clone()
			item.Processed = false
			head = append(head, &item)
			index[item.ID] = &item
			changed = true
			continue
		}

		if existing.Processed {
			// a processed item showed up again: it was retried
			existing.Processed = false
			s.detachLocked(existing)
			head = append(head, existing)
			changed = true
		}
	}

	for _, item := range s.items {
		if item.Processed {
			continue
		}
		if _, ok := present[item.ID]; ok {
			continue
		}
		if _, ok := unchanged[item.Queue.Name]; ok {
			continue
		}
		item.Processed = true
		changed = true
	}

	if len(head) > 0 {
		items := make([]*backend.Item, 0, len(head)+len(s.items))
		for i := len(head) - 1; i >= 0; i-- {
			items = append(items, head[i])
		}
		s.items = append(items, s.items...)
	}

	if counts != s.counts {
		changed = true
	}
	s.counts = counts
	s.errorFetchCount = errorFetchCount

	return changed
}

func (s *ItemStore) detachLocked(target *backend.Item) {
	s.removeLocked(func(item *backend.Item) bool {
		return item == target
	})
}

// mergeProcessed appends processed items not already present and re-sorts the
// list newest first. It must be called with the lock held.
func (s *ItemStore) mergeProcessed(fetched []backend.Item) bool {
	index := make(map[string]struct{}, len(s.items))
	for _, item := range s.items {
		index[item.ID] = struct{}{}
	}

	changed := false
	for i := range fetched {
		if _, ok := index[fetched[i].ID]; ok {
			continue
		}
		item := fetched[i].Clone()
		item.Processed = true
		s.items = append(s.items, &item)
		index[item.ID] = struct{}{}
		changed = true
	}

	if changed {
		sort.SliceStable(s.items, func(i, j int) bool {
			return s.items[i].ArrivedTime.After(s.items[j].ArrivedTime)
		})
	}
	return changed
}

// ParseFilter splits filter text into lower-cased terms.
func ParseFilter(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func matchesFilter(item *backend.Item, terms []string) bool {
	haystack := strings.ToLower(item.DisplayName + " " + item.Queue.Name + " " + item.ID)
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}
