// Package runtime defines the Runtime interface for sandbox container lifecycle management.
package runtime

import "context"

// Runtime abstracts the container backend (Docker, local, k8s, etc.)
type Runtime interface {
	// State reports whether the named container exists and whether it is
	// running. A missing container is (Exists=false, Running=false) with a
	// nil error; errors are reserved for daemon-level failures.
	State(ctx context.Context, name string) (ContainerState, error)

	// InspectImage returns the image the named container was created from.
	// Best-effort: on failure the caller falls back to the registry's
	// recorded image instead of failing the operation.
	InspectImage(ctx context.Context, name string) (string, error)

	// Create creates and starts a new sandbox container from the given spec.
	// Returns the container ID.
	Create(ctx context.Context, spec SandboxSpec) (string, error)

	// Start starts a previously stopped container without recreating it.
	Start(ctx context.Context, name string) error

	// Remove force-removes the container. Removing a container that no
	// longer exists is not an error.
	Remove(ctx context.Context, name string) error
}
