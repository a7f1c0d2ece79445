package lifecycle_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/config"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/lifecycle"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/registry"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/runtime"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestList_RegistryFailureDegradesToEmpty(t *testing.T) {
	reg := &fakeRegistry{listErr: fmt.Errorf("database locked")}
	ctrl := lifecycle.NewController(reg, newMockRuntime(), testConfig("sandbox:cfg"), lifecycle.ControllerConfig{})

	infos := ctrl.List(context.Background())
	if len(infos) != 0 {
		t.Errorf("got %d infos, want empty listing on registry failure", len(infos))
	}
}

func TestPrune_RateLimited(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := &config.Config{Defaults: config.Sandbox{Prune: &config.Prune{IdleHours: 1}}}
	reg := &fakeRegistry{}
	ctrl := lifecycle.NewController(reg, newMockRuntime(), cfg, lifecycle.ControllerConfig{Now: fixedClock(now)})

	ctrl.Prune(context.Background())
	ctrl.Prune(context.Background()) // same instant, inside the window

	if reg.listCalls != 1 {
		t.Errorf("registry read %d times, want 1 — second trigger must be a no-op", reg.listCalls)
	}
}

func TestPrune_DisabledSkipsRegistryRead(t *testing.T) {
	reg := &fakeRegistry{}
	ctrl := lifecycle.NewController(reg, newMockRuntime(), testConfig("sandbox:cfg"), lifecycle.ControllerConfig{})

	ctrl.Prune(context.Background())
	if reg.listCalls != 0 {
		t.Errorf("registry read %d times, want 0 when no policy is enabled", reg.listCalls)
	}
}

func TestPrune_EvictsIdleContainer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	T := now.UnixMilli() - 2*hourMs

	rt := newMockRuntime()
	rt.states["c1"] = runtime.ContainerState{Exists: true, Running: true}
	reg := &fakeRegistry{entries: []registry.Entry{
		{Name: "c1", Image: "sandbox:1", SessionKey: "agent:a:1", CreatedAtMs: T, LastUsedAtMs: T},
	}}
	cfg := &config.Config{Defaults: config.Sandbox{Prune: &config.Prune{IdleHours: 1}}}
	ctrl := lifecycle.NewController(reg, rt, cfg, lifecycle.ControllerConfig{Now: fixedClock(now)})

	ctrl.Prune(context.Background())

	if len(rt.removed) != 1 || rt.removed[0] != "c1" {
		t.Errorf("runtime removals: got %v, want [c1]", rt.removed)
	}
	left, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("registry still holds %d entries after prune, want 0", len(left))
	}
}

func TestPrune_KeepsFreshContainer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	T := now.UnixMilli() - 30*60*1000 // used half an hour ago

	rt := newMockRuntime()
	rt.states["c1"] = runtime.ContainerState{Exists: true, Running: true}
	reg := &fakeRegistry{entries: []registry.Entry{
		{Name: "c1", Image: "sandbox:1", SessionKey: "agent:a", CreatedAtMs: T, LastUsedAtMs: T},
	}}
	cfg := &config.Config{Defaults: config.Sandbox{Prune: &config.Prune{IdleHours: 1}}}
	ctrl := lifecycle.NewController(reg, rt, cfg, lifecycle.ControllerConfig{Now: fixedClock(now)})

	ctrl.Prune(context.Background())

	if len(rt.removeAttempts) != 0 {
		t.Errorf("removal attempted for fresh container: %v", rt.removeAttempts)
	}
	if len(reg.entries) != 1 {
		t.Errorf("fresh entry evicted from registry")
	}
}

func TestPrune_RuntimeFailureStillRemovesRegistryEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	T := now.UnixMilli() - 3*hourMs

	rt := newMockRuntime()
	rt.states["c1"] = runtime.ContainerState{Exists: true, Running: true}
	rt.removeErr["c1"] = fmt.Errorf("daemon unreachable")
	reg := &fakeRegistry{entries: []registry.Entry{
		{Name: "c1", Image: "sandbox:1", SessionKey: "agent:a", CreatedAtMs: T, LastUsedAtMs: T},
	}}
	cfg := &config.Config{Defaults: config.Sandbox{Prune: &config.Prune{IdleHours: 1}}}
	ctrl := lifecycle.NewController(reg, rt, cfg, lifecycle.ControllerConfig{Now: fixedClock(now)})

	ctrl.Prune(context.Background())

	if len(reg.removed) != 1 || reg.removed[0] != "c1" {
		t.Errorf("registry removals: got %v, want [c1] even when the runtime removal failed", reg.removed)
	}
}

func TestPrune_PerAgentPolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	T := now.UnixMilli() - 5*hourMs

	rt := newMockRuntime()
	rt.states["keeper"] = runtime.ContainerState{Exists: true, Running: true}
	rt.states["evictee"] = runtime.ContainerState{Exists: true, Running: true}
	reg := &fakeRegistry{entries: []registry.Entry{
		{Name: "keeper", SessionKey: "agent:longhaul", CreatedAtMs: T, LastUsedAtMs: T},
		{Name: "evictee", SessionKey: "agent:quick", CreatedAtMs: T, LastUsedAtMs: T},
	}}
	cfg := &config.Config{
		Agents: map[string]config.Sandbox{
			"longhaul": {Prune: &config.Prune{IdleHours: 24}},
			"quick":    {Prune: &config.Prune{IdleHours: 1}},
		},
	}
	ctrl := lifecycle.NewController(reg, rt, cfg, lifecycle.ControllerConfig{Now: fixedClock(now)})

	ctrl.Prune(context.Background())

	if len(rt.removed) != 1 || rt.removed[0] != "evictee" {
		t.Errorf("runtime removals: got %v, want [evictee]", rt.removed)
	}
}

func TestEnsureRunning(t *testing.T) {
	rt := newMockRuntime()
	rt.states["stopped"] = runtime.ContainerState{Exists: true, Running: false}
	rt.states["running"] = runtime.ContainerState{Exists: true, Running: true}
	ctrl := lifecycle.NewController(&fakeRegistry{}, rt, testConfig("sandbox:cfg"), lifecycle.ControllerConfig{})
	ctx := context.Background()

	if err := ctrl.EnsureRunning(ctx, "stopped"); err != nil {
		t.Fatalf("EnsureRunning(stopped): %v", err)
	}
	if len(rt.started) != 1 || rt.started[0] != "stopped" {
		t.Errorf("started: got %v, want [stopped]", rt.started)
	}

	if err := ctrl.EnsureRunning(ctx, "running"); err != nil {
		t.Fatalf("EnsureRunning(running): %v", err)
	}
	if err := ctrl.EnsureRunning(ctx, "missing"); err != nil {
		t.Fatalf("EnsureRunning(missing): %v", err)
	}
	if len(rt.started) != 1 {
		t.Errorf("started: got %v, want only the stopped container", rt.started)
	}
}

func TestProvision(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rt := newMockRuntime()
	reg := &fakeRegistry{}
	cfg := &config.Config{
		Defaults: config.Sandbox{Image: "sandbox:default"},
		Agents:   map[string]config.Sandbox{"kairo": {Image: "sandbox:kairo"}},
	}
	ctrl := lifecycle.NewController(reg, rt, cfg, lifecycle.ControllerConfig{Now: fixedClock(now)})

	entry, err := ctrl.Provision(context.Background(), "agent:kairo:review")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if !runtime.IsManagedName(entry.Name) {
		t.Errorf("container name %q lacks the managed prefix", entry.Name)
	}
	if entry.Image != "sandbox:kairo" {
		t.Errorf("image: got %q, want the agent's configured image", entry.Image)
	}
	if entry.CreatedAtMs != now.UnixMilli() || entry.LastUsedAtMs != now.UnixMilli() {
		t.Errorf("timestamps: got %d/%d, want %d", entry.CreatedAtMs, entry.LastUsedAtMs, now.UnixMilli())
	}
	if len(rt.created) != 1 || rt.created[0].SessionKey != "agent:kairo:review" {
		t.Errorf("created specs: got %+v", rt.created)
	}
	if len(reg.entries) != 1 || reg.entries[0].Name != entry.Name {
		t.Errorf("registry entries after Provision: got %+v", reg.entries)
	}
}

func TestTouch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := &fakeRegistry{entries: []registry.Entry{{Name: "sbx", LastUsedAtMs: 1}}}
	ctrl := lifecycle.NewController(reg, newMockRuntime(), testConfig("x"), lifecycle.ControllerConfig{Now: fixedClock(now)})

	if err := ctrl.Touch(context.Background(), "sbx"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if reg.entries[0].LastUsedAtMs != now.UnixMilli() {
		t.Errorf("LastUsedAtMs: got %d, want %d", reg.entries[0].LastUsedAtMs, now.UnixMilli())
	}
}

// --- Recreate ---------------------------------------------------------------

func threeContainerFixture() (*fakeRegistry, *mockRuntime) {
	rt := newMockRuntime()
	reg := &fakeRegistry{}
	for i, session := range []string{"agent:foo", "agent:foo:bar", "agent:foobar"} {
		name := fmt.Sprintf("sbx-%d", i+1)
		rt.states[name] = runtime.ContainerState{Exists: true, Running: true}
		rt.images[name] = "sandbox:cfg"
		reg.entries = append(reg.entries, registry.Entry{
			Name: name, Image: "sandbox:cfg", SessionKey: session,
			CreatedAtMs: int64(i), LastUsedAtMs: int64(i),
		})
	}
	return reg, rt
}

func TestRecreate_UsageErrors(t *testing.T) {
	reg, rt := threeContainerFixture()
	ctrl := lifecycle.NewController(reg, rt, testConfig("sandbox:cfg"), lifecycle.ControllerConfig{})
	ctx := context.Background()

	cases := []lifecycle.RecreateOptions{
		{},                                     // no selection
		{All: true, SessionKey: "agent:foo"},   // two selections
		{SessionKey: "agent:foo", AgentID: "foo"},
		{All: true, SessionKey: "agent:foo", AgentID: "foo"},
	}
	for i, opts := range cases {
		opts.Force = true
		_, err := ctrl.Recreate(ctx, opts)
		if !errors.Is(err, lifecycle.ErrUsage) {
			t.Errorf("case %d: got %v, want ErrUsage", i, err)
		}
	}
	if len(rt.removeAttempts) != 0 {
		t.Errorf("usage errors must not remove anything, got %v", rt.removeAttempts)
	}
}

func TestRecreate_SessionSelectsExactKeyOnly(t *testing.T) {
	reg, rt := threeContainerFixture()
	ctrl := lifecycle.NewController(reg, rt, testConfig("sandbox:cfg"), lifecycle.ControllerConfig{})

	res, err := ctrl.Recreate(context.Background(), lifecycle.RecreateOptions{
		SessionKey: "agent:foo:bar", Force: true,
	})
	if err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if len(res.Selected) != 1 || res.Selected[0].SessionKey != "agent:foo:bar" {
		t.Errorf("selected: got %+v, want only the exact session key", res.Selected)
	}
}

func TestRecreate_AgentSelectsPrefixNotSibling(t *testing.T) {
	reg, rt := threeContainerFixture()
	ctrl := lifecycle.NewController(reg, rt, testConfig("sandbox:cfg"), lifecycle.ControllerConfig{})

	res, err := ctrl.Recreate(context.Background(), lifecycle.RecreateOptions{
		AgentID: "foo", Force: true,
	})
	if err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if len(res.Selected) != 2 {
		t.Fatalf("selected %d containers, want 2 (agent:foo and agent:foo:bar)", len(res.Selected))
	}
	for _, info := range res.Selected {
		if info.SessionKey == "agent:foobar" {
			t.Error("agent:foobar selected by --agent foo")
		}
	}
}

func TestRecreate_EmptySelectionIsSuccess(t *testing.T) {
	reg, rt := threeContainerFixture()
	ctrl := lifecycle.NewController(reg, rt, testConfig("sandbox:cfg"), lifecycle.ControllerConfig{})

	confirmCalled := false
	res, err := ctrl.Recreate(context.Background(), lifecycle.RecreateOptions{
		SessionKey: "agent:nobody",
		Confirm:    func([]lifecycle.ContainerInfo) bool { confirmCalled = true; return true },
	})
	if err != nil {
		t.Fatalf("Recreate with empty selection: %v", err)
	}
	if len(res.Selected) != 0 || res.Succeeded != 0 || res.Failed != 0 {
		t.Errorf("result: got %+v, want all-zero", res)
	}
	if confirmCalled {
		t.Error("confirmation requested for an empty selection")
	}
}

func TestRecreate_DeclinedConfirmationAborts(t *testing.T) {
	reg, rt := threeContainerFixture()
	ctrl := lifecycle.NewController(reg, rt, testConfig("sandbox:cfg"), lifecycle.ControllerConfig{})

	res, err := ctrl.Recreate(context.Background(), lifecycle.RecreateOptions{
		All:     true,
		Confirm: func([]lifecycle.ContainerInfo) bool { return false },
	})
	if err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if !res.Aborted {
		t.Error("expected Aborted=true")
	}
	if len(rt.removeAttempts) != 0 {
		t.Errorf("declined confirmation must have zero side effects, got removals %v", rt.removeAttempts)
	}
	if len(reg.removed) != 0 {
		t.Errorf("declined confirmation removed registry entries %v", reg.removed)
	}
}

func TestRecreate_ForceBypassesConfirmation(t *testing.T) {
	reg, rt := threeContainerFixture()
	ctrl := lifecycle.NewController(reg, rt, testConfig("sandbox:cfg"), lifecycle.ControllerConfig{})

	res, err := ctrl.Recreate(context.Background(), lifecycle.RecreateOptions{All: true, Force: true})
	if err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if res.Succeeded != 3 || res.Failed != 0 {
		t.Errorf("got %d/%d succeeded/failed, want 3/0", res.Succeeded, res.Failed)
	}
	if len(reg.entries) != 0 {
		t.Errorf("registry still holds %d entries", len(reg.entries))
	}
}

func TestRecreate_PartialFailureCompletesBatch(t *testing.T) {
	reg, rt := threeContainerFixture()
	rt.removeErr["sbx-2"] = fmt.Errorf("daemon hiccup")
	ctrl := lifecycle.NewController(reg, rt, testConfig("sandbox:cfg"), lifecycle.ControllerConfig{})

	res, err := ctrl.Recreate(context.Background(), lifecycle.RecreateOptions{All: true, Force: true})
	if err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if res.Succeeded != 2 || res.Failed != 1 {
		t.Errorf("got %d/%d succeeded/failed, want 2/1", res.Succeeded, res.Failed)
	}
	if len(rt.removeAttempts) != 3 {
		t.Errorf("attempted %d removals, want all 3", len(rt.removeAttempts))
	}
	// Registry entries go for every selected container, failed or not.
	if len(reg.removed) != 3 {
		t.Errorf("registry removals: got %v, want all 3", reg.removed)
	}
	if !strings.HasPrefix(rt.removeAttempts[0], "sbx-") {
		t.Errorf("unexpected removal target %q", rt.removeAttempts[0])
	}
}
