// Package lifecycle contains the sandbox container reconciler, prune policy
// engine and lifecycle controller.
package lifecycle

import (
	"context"

	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/config"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/registry"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/runtime"
)

// ContainerInfo is a registry entry merged with live runtime truth. It is
// computed per request and never persisted: the registry remains the only
// durable record, and this view may be stale the moment it is produced.
type ContainerInfo struct {
	Name         string `json:"containerName"`
	Image        string `json:"image"`
	SessionKey   string `json:"sessionKey"`
	CreatedAtMs  int64  `json:"createdAtMs"`
	LastUsedAtMs int64  `json:"lastUsedAtMs"`
	Running      bool   `json:"running"`
	ImageMatch   bool   `json:"imageMatch"`
}

// Reconcile merges each registry entry with the runtime's view of it.
// Output order matches input order. The pass is total: a failing state
// query or image inspection degrades that entry to safe defaults (missing
// container, recorded image) and never aborts the batch.
func (c *Controller) Reconcile(ctx context.Context, entries []registry.Entry) []ContainerInfo {
	infos := make([]ContainerInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, c.reconcileEntry(ctx, e))
	}
	return infos
}

func (c *Controller) reconcileEntry(ctx context.Context, e registry.Entry) ContainerInfo {
	info := ContainerInfo{
		Name:         e.Name,
		Image:        e.Image,
		SessionKey:   e.SessionKey,
		CreatedAtMs:  e.CreatedAtMs,
		LastUsedAtMs: e.LastUsedAtMs,
	}

	state, err := c.runtime.State(ctx, e.Name)
	if err != nil {
		c.logger.Warn("container state query failed", "container", e.Name, "err", err)
		state = runtime.ContainerState{}
	}
	info.Running = state.Exists && state.Running

	// Only an existing container can be inspected; the recorded image is
	// the fallback whenever inspection is skipped or fails.
	if state.Exists {
		img, err := c.runtime.InspectImage(ctx, e.Name)
		switch {
		case err != nil:
			c.logger.Warn("image inspection failed", "container", e.Name, "err", err)
		case img != "":
			info.Image = img
		}
	}

	configured := c.cfg.Image(config.AgentIDFromSessionKey(e.SessionKey))
	info.ImageMatch = info.Image == configured

	return info
}
