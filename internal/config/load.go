package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays environment
// variables, same precedence the teacher's Load uses.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("SUPERVISOR_REPOSITORY_DSN", &c.Repository.DSN)
	envStr("SUPERVISOR_REPOSITORY_BACKEND", &c.Repository.Backend)
	envStr("SUPERVISOR_WORKSPACE_ROOT", &c.WorkspaceRoot)
	envStr("SUPERVISOR_AGENT_WORKSPACES_ROOT", &c.AgentWorkspacesRoot)
	envStr("SUPERVISOR_SKILLS_STORAGE_DIR", &c.SkillsStorageDir)
	envStr("SUPERVISOR_PLUGIN_CACHE_DIR", &c.PluginCacheDir)
	envStr("SUPERVISOR_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	c.WorkspaceRoot = ExpandHome(c.WorkspaceRoot)
	c.AgentWorkspacesRoot = ExpandHome(c.AgentWorkspacesRoot)
	c.SkillsStorageDir = ExpandHome(c.SkillsStorageDir)
	c.PluginCacheDir = ExpandHome(c.PluginCacheDir)
	c.Repository.DSN = ExpandHome(c.Repository.DSN)
}
