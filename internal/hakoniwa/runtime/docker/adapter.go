// Package docker provides a Docker Engine runtime adapter for sandbox containers.
package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"

	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/runtime"
)

const (
	labelManagedBy  = "hakoniwa.managed-by"
	labelSessionKey = "hakoniwa.session-key"
	managedByValue  = "hakoniwa"

	// queryTimeout bounds every daemon round-trip so a degraded daemon
	// degrades a single entry instead of stalling a whole listing pass.
	queryTimeout = 10 * time.Second

	// stopTimeout is how long to wait for graceful container stop before SIGKILL.
	stopTimeout = 10 * time.Second
)

// Adapter implements runtime.Runtime using the Docker Engine API.
type Adapter struct {
	client  *dockerclient.Client
	network string
}

// New creates a new Docker runtime adapter.
// Uses the DOCKER_HOST env var or the default socket path.
func New() (*Adapter, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Adapter{client: cli, network: runtime.DefaultNetwork}, nil
}

// NewWithNetwork creates an adapter using a specific Docker network name.
func NewWithNetwork(networkName string) (*Adapter, error) {
	a, err := New()
	if err != nil {
		return nil, err
	}
	a.network = networkName
	return a, nil
}

// EnsureNetwork creates the hakoniwa Docker network if it doesn't exist.
func (a *Adapter) EnsureNetwork(ctx context.Context) error {
	nets, err := a.client.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", a.network)),
	})
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, n := range nets {
		if n.Name == a.network {
			return nil // already exists
		}
	}
	_, err = a.client.NetworkCreate(ctx, a.network, network.CreateOptions{
		Driver:     "bridge",
		Attachable: true,
		Labels:     map[string]string{labelManagedBy: managedByValue},
	})
	if err != nil {
		return fmt.Errorf("create network %q: %w", a.network, err)
	}
	return nil
}

// State reports existence and running status for the named container.
func (a *Adapter) State(ctx context.Context, name string) (runtime.ContainerState, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	inspect, err := a.client.ContainerInspect(ctx, name)
	if err != nil {
		if dockerclient.IsErrNotFound(err) {
			return runtime.ContainerState{}, nil
		}
		return runtime.ContainerState{}, fmt.Errorf("inspect container %s: %w", name, err)
	}

	state := runtime.ContainerState{Exists: true}
	if inspect.State != nil {
		state.Running = inspect.State.Running
	}
	return state, nil
}

// InspectImage returns the image the named container was created from.
func (a *Adapter) InspectImage(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	inspect, err := a.client.ContainerInspect(ctx, name)
	if err != nil {
		return "", fmt.Errorf("inspect container %s: %w", name, err)
	}
	if inspect.Config == nil {
		return "", fmt.Errorf("inspect container %s: no config", name)
	}
	return inspect.Config.Image, nil
}

// Create creates and starts a sandbox container from the given spec.
func (a *Adapter) Create(ctx context.Context, spec runtime.SandboxSpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("spec.Name is required")
	}
	if spec.Image == "" {
		return "", fmt.Errorf("spec.Image is required")
	}

	networkName := spec.NetworkName
	if networkName == "" {
		networkName = a.network
	}

	env := make([]string, 0, len(spec.Env)+1)
	env = append(env, fmt.Sprintf("HAKONIWA_SESSION_KEY=%s", spec.SessionKey))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	containerCfg := &container.Config{
		Image: spec.Image,
		Env:   env,
		Labels: map[string]string{
			labelManagedBy:  managedByValue,
			labelSessionKey: spec.SessionKey,
		},
	}

	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}

	networkCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			networkName: {},
		},
	}

	resp, err := a.client.ContainerCreate(ctx, containerCfg, hostCfg, networkCfg, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := a.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Best-effort cleanup
		_ = a.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container: %w", err)
	}

	return resp.ID, nil
}

// Start starts a previously stopped container without recreating it.
func (a *Adapter) Start(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := a.client.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", name, err)
	}
	return nil
}

// Remove stops and removes the container entirely. A container that is
// already gone counts as removed.
func (a *Adapter) Remove(ctx context.Context, name string) error {
	timeout := int(stopTimeout.Seconds())
	_ = a.client.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}) // best-effort graceful stop first

	if err := a.client.ContainerRemove(ctx, name, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: false,
	}); err != nil {
		if !dockerclient.IsErrNotFound(err) {
			return fmt.Errorf("remove container %s: %w", name, err)
		}
	}
	return nil
}
