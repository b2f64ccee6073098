package backend

import (
	"sort"
	"strings"
	"sync"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"
)

// Registry discovers which adapters are available and instantiates them.
// It is seeded from the adapters registered with RegisterAdapterFactory and
// may be extended at runtime with Register.
type Registry struct {
	mu        sync.RWMutex
	factories map[Descriptor]Factory
	logger    Logger
}

// NewRegistry creates a registry holding every compiled-in adapter factory.
func NewRegistry(logger Logger) *Registry {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Registry{
		factories: registeredFactories(),
		logger:    logger,
	}
}

// Register adds an adapter factory to the registry.
// Returns an error if the descriptor is incomplete or already registered.
func (r *Registry) Register(descriptor Descriptor, factory Factory) error {
	if factory == nil {
		return errors.New("cannot register nil adapter factory")
	}
	if descriptor.Name == "" {
		return errors.New("adapter name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[descriptor]; exists {
		return errors.Errorf("adapter %s already registered", descriptor)
	}

	r.factories[descriptor] = factory
	return nil
}

// ListAvailable returns every registered descriptor, sorted by name, queue type and version.
func (r *Registry) ListAvailable() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.factories))
	for d := range r.factories {
		descriptors = append(descriptors, d)
	}

	sort.Slice(descriptors, func(i, j int) bool {
		a, b := descriptors[i], descriptors[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.QueueType != b.QueueType {
			return a.QueueType < b.QueueType
		}
		return compareVersions(a.Version, b.Version) < 0
	})

	return descriptors
}

// Count returns the number of registered adapters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.factories)
}

// Create instantiates the adapter registered for exactly this descriptor.
func (r *Registry) Create(descriptor Descriptor) (Adapter, error) {
	r.mu.RLock()
	factory, exists := r.factories[descriptor]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Wrapf(ErrAdapterNotFound, "%s", descriptor)
	}

	adapter := factory()
	if adapter == nil {
		return nil, errors.Wrapf(ErrAdapterNotFound, "factory for %s returned no adapter", descriptor)
	}

	return adapter, nil
}

// Select resolves the configured descriptor to one that is actually available.
// The policy, applied in order:
//  1. exact match
//  2. same backend and queue type, best available version
//  3. same backend, adopting the queue type and version of its best adapter
//  4. ErrUnsupportedBackend
func (r *Registry) Select(preferred Descriptor) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.factories[preferred]; exists {
		return preferred, nil
	}

	if d, found := r.best(func(d Descriptor) bool {
		return strings.EqualFold(d.Name, preferred.Name) && strings.EqualFold(d.QueueType, preferred.QueueType)
	}); found {
		r.logger.Warn("Configured service bus version is not available, using another version",
			"serviceBus", d.Name,
			"queueType", d.QueueType,
			"configuredVersion", preferred.Version,
			"selectedVersion", d.Version)
		return d, nil
	}

	if d, found := r.best(func(d Descriptor) bool {
		return strings.EqualFold(d.Name, preferred.Name)
	}); found {
		r.logger.Warn("Configured service bus queue type is not available, using another adapter",
			"serviceBus", d.Name,
			"configuredQueueType", preferred.QueueType,
			"configuredVersion", preferred.Version,
			"selectedQueueType", d.QueueType,
			"selectedVersion", d.Version)
		return d, nil
	}

	return Descriptor{}, errors.Wrapf(ErrUnsupportedBackend, "'%s', please install an adapter for it", preferred.Name)
}

// best returns the matching descriptor with the highest version.
// Must be called with r.mu held.
func (r *Registry) best(match func(Descriptor) bool) (Descriptor, bool) {
	var selected Descriptor
	found := false

	for d := range r.factories {
		if !match(d) {
			continue
		}
		if !found || better(d, selected) {
			selected = d
			found = true
		}
	}

	return selected, found
}

// better reports whether a should be preferred over b.
// Ties on version are broken by queue type so the choice is deterministic.
func better(a, b Descriptor) bool {
	if c := compareVersions(a.Version, b.Version); c != 0 {
		return c > 0
	}
	return a.QueueType < b.QueueType
}

// compareVersions compares two versions semantically when both parse,
// falling back to a plain string comparison.
func compareVersions(a, b string) int {
	va, errA := semver.ParseTolerant(a)
	vb, errB := semver.ParseTolerant(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return strings.Compare(a, b)
}
