package backend

import "github.com/pkg/errors"

var (
	// ErrAdapterNotFound is returned when no factory is registered for a descriptor.
	ErrAdapterNotFound = errors.New("adapter not found")

	// ErrUnsupportedBackend is returned when no adapter exists for the configured backend name.
	ErrUnsupportedBackend = errors.New("unsupported service bus")

	// ErrRestartRequired is returned when switching to a backend whose name was already used
	// with a different version during this session.
	ErrRestartRequired = errors.New("restart required to switch service bus version")

	// ErrCapabilityNotSupported is returned when an optional adapter capability is absent.
	ErrCapabilityNotSupported = errors.New("capability not supported by the active adapter")

	// ErrNotInitialized is returned by adapters used before Initialize or after Terminate.
	ErrNotInitialized = errors.New("adapter not initialized")
)
