package runtime

import "context"

// Service is a manageable auxiliary service. Native services are owned by
// the platform service manager; child services are processes we spawn and
// track ourselves.
type Service interface {
	// Key is "<category>-<name>".
	Key() string

	// Native reports whether the platform service manager owns the service.
	Native() bool

	Start(ctx context.Context) error

	// Stop of a service that is not running succeeds.
	Stop(ctx context.Context) error

	IsRunning(ctx context.Context) bool
}
