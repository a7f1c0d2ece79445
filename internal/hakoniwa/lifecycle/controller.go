package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/config"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/registry"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/runtime"
)

// ErrUsage marks an invalid operation request (bad flag combination). No
// side effects have been performed when it is returned.
var ErrUsage = errors.New("usage error")

// Registry is the subset of the registry store the controller consumes.
type Registry interface {
	List(ctx context.Context) ([]registry.Entry, error)
	Put(ctx context.Context, entry registry.Entry) error
	Touch(ctx context.Context, name string, lastUsedMs int64) error
	Remove(ctx context.Context, name string) error
}

// ConfigResolver resolves per-agent sandbox configuration.
type ConfigResolver interface {
	Image(agentID string) string
	PrunePolicy(agentID string) config.Prune
	PruneEnabled() bool
}

// Controller orchestrates listing, pruning, provisioning and bulk
// recreation of sandbox containers.
type Controller struct {
	reg     Registry
	runtime runtime.Runtime
	cfg     ConfigResolver
	logger  *slog.Logger

	pruneState PruneState
	now        func() time.Time
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewController creates a lifecycle controller.
func NewController(reg Registry, rt runtime.Runtime, cfg ConfigResolver, ctl ControllerConfig) *Controller {
	if ctl.Logger == nil {
		ctl.Logger = slog.Default()
	}
	if ctl.Now == nil {
		ctl.Now = time.Now
	}
	return &Controller{
		reg:     reg,
		runtime: rt,
		cfg:     cfg,
		logger:  ctl.Logger,
		now:     ctl.Now,
	}
}

// List returns the reconciled view of every registered container. Listing
// is informational: a failing registry read degrades to an empty listing
// rather than surfacing an error.
func (c *Controller) List(ctx context.Context) []ContainerInfo {
	entries, err := c.reg.List(ctx)
	if err != nil {
		c.logger.Warn("registry read failed, returning empty listing", "err", err)
		return []ContainerInfo{}
	}
	return c.Reconcile(ctx, entries)
}

// Prune evicts stale containers according to the configured thresholds.
// It is a best-effort maintenance task: at most one pass per PruneWindow,
// and no failure inside the pass escapes to the caller.
func (c *Controller) Prune(ctx context.Context) {
	defer func() {
		// A panicking prune pass must not take down the host process.
		if r := recover(); r != nil {
			c.logger.Error("prune pass panicked", "panic", r)
		}
	}()

	if !c.pruneState.TryBegin(c.now(), PruneWindow) {
		return
	}
	if !c.cfg.PruneEnabled() {
		return
	}

	entries, err := c.reg.List(ctx)
	if err != nil {
		c.logger.Warn("prune: registry read failed", "err", err)
		return
	}

	nowMs := c.now().UnixMilli()
	for _, e := range entries {
		policy := c.cfg.PrunePolicy(config.AgentIDFromSessionKey(e.SessionKey))
		if !ShouldPrune(policy, nowMs, e) {
			continue
		}

		c.logger.Info("pruning stale sandbox container",
			"container", e.Name,
			"session", e.SessionKey,
			"idle_hours", policy.IdleHours,
			"max_age_days", policy.MaxAgeDays,
		)
		if err := c.runtime.Remove(ctx, e.Name); err != nil {
			c.logger.Warn("prune: runtime removal failed", "container", e.Name, "err", err)
		}
		// The registry entry goes regardless of the runtime outcome: an
		// operator may already have deleted the container by other means,
		// and a registry that references it forever is worse than a
		// container that survives one pass.
		if err := c.reg.Remove(ctx, e.Name); err != nil {
			c.logger.Warn("prune: registry removal failed", "container", e.Name, "err", err)
		}
	}
}

// EnsureRunning starts the named container when it exists but is stopped.
// A container that does not exist is left alone; creating it is the
// caller's responsibility.
func (c *Controller) EnsureRunning(ctx context.Context, name string) error {
	state, err := c.runtime.State(ctx, name)
	if err != nil {
		return fmt.Errorf("query container %s: %w", name, err)
	}
	if !state.Exists || state.Running {
		return nil
	}
	if err := c.runtime.Start(ctx, name); err != nil {
		return fmt.Errorf("start container %s: %w", name, err)
	}
	c.logger.Info("resumed stopped sandbox container", "container", name)
	return nil
}

// Touch records a use of the named container.
func (c *Controller) Touch(ctx context.Context, name string) error {
	return c.reg.Touch(ctx, name, c.now().UnixMilli())
}

// Provision creates and starts a fresh sandbox container for a session and
// registers it. The image is resolved from the owning agent's configuration.
func (c *Controller) Provision(ctx context.Context, sessionKey string) (registry.Entry, error) {
	image := c.cfg.Image(config.AgentIDFromSessionKey(sessionKey))
	name := runtime.ContainerNameFor()

	if _, err := c.runtime.Create(ctx, runtime.SandboxSpec{
		Name:       name,
		Image:      image,
		SessionKey: sessionKey,
	}); err != nil {
		return registry.Entry{}, fmt.Errorf("create sandbox container: %w", err)
	}

	nowMs := c.now().UnixMilli()
	entry := registry.Entry{
		Name:         name,
		Image:        image,
		SessionKey:   sessionKey,
		CreatedAtMs:  nowMs,
		LastUsedAtMs: nowMs,
	}
	if err := c.reg.Put(ctx, entry); err != nil {
		return registry.Entry{}, fmt.Errorf("register sandbox container: %w", err)
	}

	c.logger.Info("provisioned sandbox container", "container", name, "session", sessionKey, "image", image)
	return entry, nil
}

// RecreateOptions selects the containers a bulk recreate operates on.
// Exactly one of All, SessionKey or AgentID must be set.
type RecreateOptions struct {
	All        bool
	SessionKey string
	AgentID    string

	// Force bypasses the interactive confirmation.
	Force bool
	// Confirm is called with the selected containers before any removal.
	// Returning false aborts the operation without side effects. When nil
	// and Force is unset, the operation aborts.
	Confirm func(selected []ContainerInfo) bool
}

// RecreateResult reports the outcome of a bulk recreate.
type RecreateResult struct {
	Selected  []ContainerInfo
	Succeeded int
	Failed    int
	Aborted   bool
}

// Recreate removes the selected containers so they can be re-provisioned.
// Removals run sequentially, each failure is counted and reported without
// stopping the rest of the batch, and the registry entry is dropped for
// every selected container regardless of the runtime outcome.
func (c *Controller) Recreate(ctx context.Context, opts RecreateOptions) (RecreateResult, error) {
	modes := 0
	if opts.All {
		modes++
	}
	if opts.SessionKey != "" {
		modes++
	}
	if opts.AgentID != "" {
		modes++
	}
	if modes != 1 {
		return RecreateResult{}, fmt.Errorf("%w: exactly one of --all, --session or --agent must be given", ErrUsage)
	}

	infos := c.List(ctx)
	selected := make([]ContainerInfo, 0, len(infos))
	for _, info := range infos {
		switch {
		case opts.All:
			selected = append(selected, info)
		case opts.SessionKey != "":
			if info.SessionKey == opts.SessionKey {
				selected = append(selected, info)
			}
		default:
			if matchesAgent(info.SessionKey, opts.AgentID) {
				selected = append(selected, info)
			}
		}
	}

	result := RecreateResult{Selected: selected}
	if len(selected) == 0 {
		return result, nil
	}

	if !opts.Force {
		if opts.Confirm == nil || !opts.Confirm(selected) {
			result.Aborted = true
			return result, nil
		}
	}

	for _, info := range selected {
		if err := c.runtime.Remove(ctx, info.Name); err != nil {
			c.logger.Warn("recreate: runtime removal failed", "container", info.Name, "err", err)
			result.Failed++
		} else {
			result.Succeeded++
		}
		if err := c.reg.Remove(ctx, info.Name); err != nil {
			c.logger.Warn("recreate: registry removal failed", "container", info.Name, "err", err)
		}
	}

	return result, nil
}

// matchesAgent reports whether sessionKey belongs to agentID: either the
// bare "agent:<id>" key or any "agent:<id>:<suffix>" variant. A key like
// "agent:foobar" must not match agent "foo".
func matchesAgent(sessionKey, agentID string) bool {
	base := "agent:" + agentID
	return sessionKey == base || strings.HasPrefix(sessionKey, base+":")
}

// RunMaintenance triggers prune passes on a fixed interval until ctx is
// cancelled. Prune's own rate limit still applies, so the interval may be
// shorter than PruneWindow without causing extra work.
func (c *Controller) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("maintenance loop starting", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("maintenance loop stopping")
			return
		case <-ticker.C:
			c.Prune(ctx)
		}
	}
}
