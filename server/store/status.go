package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/plugin"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
)

// StatusStore persists poll health for one service bus in the Mattermost KV store.
// All keys are scoped to the service bus name so switching backends keeps their history apart.
type StatusStore struct {
	api   plugin.API
	scope string
}

// Status is the persisted poll health of a service bus.
type Status struct {
	ServiceBus          string    `json:"serviceBus"`
	LastPoll            time.Time `json:"lastPoll"`
	LastSuccess         time.Time `json:"lastSuccess"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
	Healthy             bool      `json:"healthy"`
}

// NewStatusStore creates a status store for the named service bus.
func NewStatusStore(api plugin.API, serviceBus string) *StatusStore {
	return &StatusStore{
		api:   api,
		scope: strings.ToLower(serviceBus),
	}
}

func (s *StatusStore) key(name string) string {
	return fmt.Sprintf("status_%s_%s", s.scope, name)
}

// RecordSuccess stores a successful poll and resets the failure counter.
func (s *StatusStore) RecordSuccess(t time.Time) error {
	if err := s.saveTime("last_poll", t); err != nil {
		return err
	}
	if err := s.saveTime("last_success", t); err != nil {
		return err
	}
	return s.saveFailures(0)
}

// RecordFailure stores a failed poll and returns the new consecutive failure count.
func (s *StatusStore) RecordFailure(t time.Time, errMsg string) (int, error) {
	if err := s.saveTime("last_poll", t); err != nil {
		return 0, err
	}

	count, err := s.failures()
	if err != nil {
		return 0, err
	}
	count++

	if err := s.saveFailures(count); err != nil {
		return 0, err
	}

	if err := s.api.KVSet(s.key("last_error"), []byte(errMsg)); err != nil {
		return 0, fmt.Errorf("failed to save last error: %w", err)
	}

	return count, nil
}

// Get returns the stored status. Missing keys read as zero values.
func (s *StatusStore) Get() (Status, error) {
	status := Status{ServiceBus: s.scope}

	var err error
	if status.LastPoll, err = s.loadTime("last_poll"); err != nil {
		return Status{}, err
	}
	if status.LastSuccess, err = s.loadTime("last_success"); err != nil {
		return Status{}, err
	}
	if status.ConsecutiveFailures, err = s.failures(); err != nil {
		return Status{}, err
	}

	data, appErr := s.api.KVGet(s.key("last_error"))
	if appErr != nil {
		return Status{}, fmt.Errorf("failed to get last error: %w", appErr)
	}
	status.LastError = string(data)
	status.Healthy = status.ConsecutiveFailures < backend.MaxConsecutiveFailures

	return status, nil
}

// ClearAll removes all state for this service bus from the KV store
func (s *StatusStore) ClearAll() error {
	for _, name := range []string{"last_poll", "last_success", "failures", "last_error"} {
		key := s.key(name)
		if err := s.api.KVDelete(key); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
	}
	return nil
}

func (s *StatusStore) saveTime(name string, t time.Time) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	if err := s.api.KVSet(s.key(name), data); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}

	return nil
}

func (s *StatusStore) loadTime(name string) (time.Time, error) {
	data, err := s.api.KVGet(s.key(name))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get %s: %w", name, err)
	}

	if data == nil {
		return time.Time{}, nil
	}

	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}

	return t, nil
}

func (s *StatusStore) saveFailures(count int) error {
	data, err := json.Marshal(count)
	if err != nil {
		return fmt.Errorf("failed to marshal failures count: %w", err)
	}

	if err := s.api.KVSet(s.key("failures"), data); err != nil {
		return fmt.Errorf("failed to save failures count: %w", err)
	}

	return nil
}

func (s *StatusStore) failures() (int, error) {
	data, err := s.api.KVGet(s.key("failures"))
	if err != nil {
		return 0, fmt.Errorf("failed to get failures count: %w", err)
	}

	if data == nil {
		return 0, nil
	}

	var count int
	if err := json.Unmarshal(data, &count); err != nil {
		return 0, fmt.Errorf("failed to unmarshal failures count: %w", err)
	}

	return count, nil
}
