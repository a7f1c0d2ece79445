// Package config loads and resolves the sandbox fleet configuration.
//
// The configuration is a YAML document with a defaults section and optional
// per-agent overrides. Structural validation happens against an embedded
// JSON Schema before any value is read, so a malformed file fails loudly at
// startup instead of silently resolving zero values.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// Prune holds the eviction thresholds for a sandbox. A zero threshold
// disables the corresponding rule; both zero disables pruning entirely.
type Prune struct {
	IdleHours  int `yaml:"idleHours" json:"idleHours"`
	MaxAgeDays int `yaml:"maxAgeDays" json:"maxAgeDays"`
}

// Disabled reports whether both eviction rules are switched off.
func (p Prune) Disabled() bool {
	return p.IdleHours == 0 && p.MaxAgeDays == 0
}

// Sandbox is the per-agent sandbox configuration.
type Sandbox struct {
	Image string `yaml:"image"`
	Prune *Prune `yaml:"prune"`
}

// Config is the full fleet configuration: defaults plus per-agent overrides.
type Config struct {
	Defaults Sandbox            `yaml:"defaults"`
	Agents   map[string]Sandbox `yaml:"agents"`
}

// DefaultImage is used when the config file names no image at all.
const DefaultImage = "ghcr.io/bdobrica/hakoniwa-sandbox:latest"

// Load reads, validates and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML config document and validates it against the schema.
// It is the canonical entry point for loading fleet configurations.
func Parse(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	if doc != nil {
		if err := validate(doc); err != nil {
			return nil, fmt.Errorf("config validate: %w", err)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	return &cfg, nil
}

func validate(doc any) error {
	schema, err := jsonschema.CompileString("config.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	// The schema library validates JSON-shaped values; round-trip through
	// encoding/json to normalise what yaml.v3 produced.
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var normalised any
	if err := json.Unmarshal(raw, &normalised); err != nil {
		return err
	}
	return schema.Validate(normalised)
}

// Image returns the image configured for agentID, falling back to the
// defaults section and finally to DefaultImage.
func (c *Config) Image(agentID string) string {
	if sb, ok := c.Agents[agentID]; ok && sb.Image != "" {
		return sb.Image
	}
	if c.Defaults.Image != "" {
		return c.Defaults.Image
	}
	return DefaultImage
}

// PrunePolicy returns the eviction thresholds for agentID, falling back to
// the defaults section. Absent configuration means pruning is disabled.
func (c *Config) PrunePolicy(agentID string) Prune {
	if sb, ok := c.Agents[agentID]; ok && sb.Prune != nil {
		return *sb.Prune
	}
	if c.Defaults.Prune != nil {
		return *c.Defaults.Prune
	}
	return Prune{}
}

// PruneEnabled reports whether any policy in the config, default or
// per-agent, has a non-zero threshold. Used to skip prune passes cheaply.
func (c *Config) PruneEnabled() bool {
	if c.Defaults.Prune != nil && !c.Defaults.Prune.Disabled() {
		return true
	}
	for _, sb := range c.Agents {
		if sb.Prune != nil && !sb.Prune.Disabled() {
			return true
		}
	}
	return false
}

// AgentIDFromSessionKey extracts the owning agent ID from a session key.
// Keys have the form "agent:<id>" or "agent:<id>:<suffix>"; anything else
// yields "" and resolves against the defaults section.
func AgentIDFromSessionKey(key string) string {
	rest, ok := strings.CutPrefix(key, "agent:")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		return rest[:i]
	}
	return rest
}
