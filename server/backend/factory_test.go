package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAdapterFactory(t *testing.T) {
	// Save original registry and restore after test
	originalRegistry := factoryRegistry
	defer func() { factoryRegistry = originalRegistry }()

	t.Run("register new factory", func(t *testing.T) {
		factoryRegistry = make(map[Descriptor]Factory)
		d := Descriptor{Name: "Test", Version: "1.0", QueueType: "Memory"}

		RegisterAdapterFactory(d, newStubFactory(d))

		assert.Contains(t, factoryRegistry, d)
	})

	t.Run("overwrite existing factory", func(t *testing.T) {
		factoryRegistry = make(map[Descriptor]Factory)
		d := Descriptor{Name: "Test", Version: "1.0", QueueType: "Memory"}

		RegisterAdapterFactory(d, newStubFactory(d))
		RegisterAdapterFactory(d, newStubFactory(d))

		assert.Len(t, factoryRegistry, 1)
	})

	t.Run("new registry is seeded from compiled-in factories", func(t *testing.T) {
		factoryRegistry = make(map[Descriptor]Factory)
		d1 := Descriptor{Name: "Test", Version: "1.0", QueueType: "Memory"}
		d2 := Descriptor{Name: "Test", Version: "2.0", QueueType: "Memory"}
		RegisterAdapterFactory(d1, newStubFactory(d1))
		RegisterAdapterFactory(d2, newStubFactory(d2))

		registry := NewRegistry(nil)
		require.Equal(t, 2, registry.Count())

		// Registering on the registry must not leak into the global table
		d3 := Descriptor{Name: "Other", Version: "1.0"}
		require.NoError(t, registry.Register(d3, newStubFactory(d3)))
		assert.Len(t, factoryRegistry, 2)
	})
}

func TestDescriptor_String(t *testing.T) {
	d := Descriptor{Name: "Forq", Version: "1.0", QueueType: "SQLite"}
	assert.Equal(t, "Forq 1.0 (SQLite)", d.String())
	assert.False(t, d.IsZero())
	assert.True(t, Descriptor{}.IsZero())
}
