package backend

import (
	"fmt"
	"regexp"
)

// colorPattern matches the hex colors accepted for queue display
var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidateDescriptor checks that a configured adapter descriptor names a backend.
// Version and queue type may be empty; selection falls back to the best available adapter.
func ValidateDescriptor(descriptor Descriptor) error {
	if descriptor.Name == "" {
		return fmt.Errorf("missing required field 'serviceBus'")
	}
	return nil
}

// ValidateQueues validates the monitored queue configuration.
func ValidateQueues(queues []Queue) error {
	seenNames := make(map[string]bool)

	for i, queue := range queues {
		if queue.Name == "" {
			return fmt.Errorf("queue at position %d: missing required field 'name'", i+1)
		}

		if seenNames[queue.Name] {
			return fmt.Errorf("duplicate queue name found: '%s'", queue.Name)
		}
		seenNames[queue.Name] = true

		if !queue.Category.Valid() {
			return fmt.Errorf("queue '%s': invalid category %d", queue.Name, int(queue.Category))
		}

		if queue.Color != "" && !colorPattern.MatchString(queue.Color) {
			return fmt.Errorf("queue '%s': color must be a hex color like #RRGGBB (got %s)", queue.Name, queue.Color)
		}
	}

	return nil
}

// ValidatePollInterval checks the poll interval against MinPollIntervalSeconds.
func ValidatePollInterval(seconds int) error {
	if seconds < MinPollIntervalSeconds {
		return fmt.Errorf("poll interval must be at least %d seconds (got %d)", MinPollIntervalSeconds, seconds)
	}
	return nil
}

// DiffQueues reports whether two queue configurations differ.
func DiffQueues(oldQueues, newQueues []Queue) bool {
	if len(oldQueues) != len(newQueues) {
		return true
	}
	for i := range oldQueues {
		if oldQueues[i] != newQueues[i] {
			return true
		}
	}
	return false
}

// QueuesOf returns the names of the queues belonging to category.
func QueuesOf(queues []Queue, category Category) []string {
	var names []string
	for _, q := range queues {
		if q.Category == category {
			names = append(names, q.Name)
		}
	}
	return names
}
