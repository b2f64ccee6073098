package backend

import (
	"fmt"
	"strings"
	"time"
)

// Category classifies the purpose of a queue.
// The declaration order is the order in which categories are fetched.
type Category int

const (
	Command Category = iota
	Event
	Message
	Error
)

// Categories lists every category in fetch order.
var Categories = []Category{Command, Event, Message, Error}

// CategoryCount is the number of known categories.
const CategoryCount = 4

// String returns the display name of the category.
func (c Category) String() string {
	switch c {
	case Command:
		return "Command"
	case Event:
		return "Event"
	case Message:
		return "Message"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c >= Command && c <= Error
}

// ParseCategory converts a case-insensitive category name into a Category.
// Plural forms ("commands", "errors") are accepted as well.
func ParseCategory(s string) (Category, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for _, c := range Categories {
		if strings.ToLower(c.String()) == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown queue category: '%s'", s)
}

// MarshalText implements encoding.TextMarshaler so categories are readable in JSON.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Queue is a monitored queue on a backend. Queues are configured externally
// and are immutable during a monitoring session.
type Queue struct {
	// Name is unique within a backend
	Name string `json:"name"`

	// Category is the purpose of the queue
	Category Category `json:"category"`

	// Color is the display color used by the consuming layer
	Color string `json:"color,omitempty"`
}

// Item is one message observed on a queue.
type Item struct {
	// ID is assigned by the backend and stable across polls
	ID string `json:"id"`

	// Queue is the queue the item was observed on
	Queue Queue `json:"queue"`

	// ArrivedTime is the arrival timestamp according to the backend clock
	ArrivedTime time.Time `json:"arrivedTime"`

	// Processed is true once the item has disappeared from the live backend view
	Processed bool `json:"processed"`

	// DisplayName is a short human readable label (usually the message type)
	DisplayName string `json:"displayName,omitempty"`

	// Payload is the message body, opaque to the engine
	Payload string `json:"payload,omitempty"`

	// Headers carries backend-specific metadata, opaque to the engine
	Headers map[string]string `json:"headers,omitempty"`
}

// Clone returns a copy of the item that shares no mutable state with i.
func (i Item) Clone() Item {
	clone := i
	if i.Headers != nil {
		clone.Headers = make(map[string]string, len(i.Headers))
		for k, v := range i.Headers {
			clone.Headers[k] = v
		}
	}
	return clone
}

// FetchStatus is the outcome of a single fetch for one category.
type FetchStatus int

const (
	// FetchOK means Items and Count describe the current backend view
	FetchOK FetchStatus = iota

	// FetchNotChanged means the backend view matches the hints passed in the request
	FetchNotChanged

	// FetchConnectionFailed means the backend could not be reached; recoverable
	FetchConnectionFailed
)

// String returns the status name.
func (s FetchStatus) String() string {
	switch s {
	case FetchOK:
		return "Ok"
	case FetchNotChanged:
		return "NotChanged"
	case FetchConnectionFailed:
		return "ConnectionFailed"
	default:
		return fmt.Sprintf("FetchStatus(%d)", int(s))
	}
}

// FetchResult is returned by an adapter for one category.
type FetchResult struct {
	Status FetchStatus
	Items  []Item
	Count  uint32
}

// FetchUnprocessedRequest asks an adapter for the unprocessed items of one category.
// KnownItems and KnownCount are hints; adapters may use them to answer FetchNotChanged.
type FetchUnprocessedRequest struct {
	Category   Category
	KnownItems []Item
	KnownCount uint32
}

// ConnectionSettings holds backend-specific connection parameters.
type ConnectionSettings map[string]string

// Get returns the setting for key or def when it is missing or empty.
func (s ConnectionSettings) Get(key, def string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return def
}

// List splits a comma separated setting into trimmed, non-empty values.
func (s ConnectionSettings) List(key string) []string {
	var values []string
	for _, v := range strings.Split(s[key], ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// Subscription describes a message type subscription reported by a backend.
type Subscription struct {
	Name        string   `json:"name"`
	Publisher   string   `json:"publisher,omitempty"`
	Subscribers []string `json:"subscribers,omitempty"`
}
