package backend

import "fmt"

// Descriptor identifies an adapter implementation by backend name, backend version and queue type.
type Descriptor struct {
	// Name is the backend technology (e.g., "Forq")
	Name string `json:"name"`

	// Version is the backend version the adapter targets
	Version string `json:"version"`

	// QueueType is the transport flavor (e.g., "SQLite")
	QueueType string `json:"queueType"`
}

// String returns a human readable form of the descriptor.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s %s (%s)", d.Name, d.Version, d.QueueType)
}

// IsZero reports whether no field of the descriptor is set.
func (d Descriptor) IsZero() bool {
	return d == Descriptor{}
}

// Factory is a function type that creates an uninitialized adapter instance
type Factory func() Adapter

// factoryRegistry maps descriptors to their factory functions
var factoryRegistry = make(map[Descriptor]Factory)

// RegisterAdapterFactory registers an adapter factory for a given descriptor.
// Adapter packages call this from init() so that importing them makes them available.
func RegisterAdapterFactory(descriptor Descriptor, factory Factory) {
	factoryRegistry[descriptor] = factory
}

// registeredFactories returns a copy of the compiled-in registration table.
func registeredFactories() map[Descriptor]Factory {
	factories := make(map[Descriptor]Factory, len(factoryRegistry))
	for d, f := range factoryRegistry {
		factories[d] = f
	}
	return factories
}
