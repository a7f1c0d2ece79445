// Package runtime defines shared types for the sandbox runtime abstraction.
package runtime

import (
	"strings"

	"github.com/google/uuid"
)

// SandboxSpec describes how a sandbox container should be created.
type SandboxSpec struct {
	// Name is the container name (see ContainerNameFor).
	Name string
	// Image is the Docker image to use (e.g. "ghcr.io/org/hakoniwa-sandbox:latest").
	Image string
	// SessionKey identifies the owning chat/agent session.
	SessionKey string
	// Env holds additional environment variables to inject into the container.
	Env map[string]string
	// NetworkName is the Docker network to attach (defaults to "hakoniwa" if empty).
	NetworkName string
}

// ContainerState holds the two facts the lifecycle engine needs about a
// container: whether it exists at all, and whether it is currently running.
type ContainerState struct {
	Exists  bool
	Running bool
}

// DefaultNetwork is the Docker network sandbox containers attach to.
const DefaultNetwork = "hakoniwa"

// containerPrefix namespaces all containers this system creates.
const containerPrefix = "hakoniwa-sbx-"

// ContainerNameFor returns a fresh container name for a session. Names are
// unique per call: a session may own several containers over its lifetime.
func ContainerNameFor() string {
	return containerPrefix + uuid.NewString()[:8]
}

// IsManagedName reports whether name was generated by ContainerNameFor.
func IsManagedName(name string) bool {
	return strings.HasPrefix(name, containerPrefix)
}
