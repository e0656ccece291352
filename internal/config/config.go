// Package config holds the typed configuration shape the supervisor is
// wired from: agent profiles, sandbox settings, and tool policy, following
// the teacher's JSON-tagged struct + merge-defaults conventions.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// AgentProfile configures one agent: its skill allowlist and tool policy.
type AgentProfile struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	SystemPrompt   string          `json:"system_prompt"`
	AllowAllSkills bool            `json:"allow_all_skills"`
	SkillIDs       []string        `json:"skill_ids"`
	ToolPolicy     ToolPolicySpec  `json:"tool_policy"`
	Sandbox        *SandboxSettings `json:"sandbox,omitempty"`
}

// ToolPolicySpec names the allow/deny/also-allow groups the supervisor
// resolves into the allowed-tools list it passes to the model agent,
// mirroring the teacher's group:xxx syntax.
type ToolPolicySpec struct {
	Profile   string   `json:"profile"` // e.g. "minimal", "coding", "full"
	Allow     []string `json:"allow,omitempty"`
	Deny      []string `json:"deny,omitempty"`
	AlsoAllow []string `json:"also_allow,omitempty"`
}

// SandboxSettings configures the optional command sandbox. Zero value means
// commands run directly on the host.
type SandboxSettings struct {
	Enabled bool   `json:"enabled"`
	Image   string `json:"image,omitempty"`
}

// Config is the top-level supervisor configuration tree.
type Config struct {
	Agents      []AgentProfile `json:"agents"`
	DefaultTool ToolPolicySpec `json:"default_tool_policy"`

	WorkspaceRoot        string `json:"workspace_root"`
	AgentWorkspacesRoot  string `json:"agent_workspaces_root"`
	SkillsStorageDir     string `json:"skills_storage_dir"`
	PluginCacheDir       string `json:"plugin_cache_dir"`

	Repository RepositoryConfig           `json:"repository"`
	Telemetry  TelemetryConfig            `json:"telemetry"`
	Permission PermissionConfig           `json:"permission"`
	MCPServers map[string]MCPServerConfig `json:"mcp_servers"`
}

// MCPServerConfig is one entry in the mcp_servers table an agent's
// mcp_server_ids index into, resolved to a launch descriptor by
// internal/mcpservers. Transport is one of "stdio", "sse", "streamable-http".
type MCPServerConfig struct {
	Transport  string            `json:"transport"`
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	ToolPrefix string            `json:"tool_prefix,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"`
	Disabled   bool              `json:"disabled,omitempty"`
}

// RepositoryConfig selects and configures the storage backend.
type RepositoryConfig struct {
	Backend string `json:"backend"` // "sqlite" or "postgres"
	DSN     string `json:"dsn"`
}

// TelemetryConfig holds OpenTelemetry span-export settings. Nothing in this
// module reads them: no exporter is set up here, and spans go to whatever
// global TracerProvider the process has installed.
type TelemetryConfig struct {
	Enabled      bool   `json:"enabled"`
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`
	UseHTTP      bool   `json:"use_http,omitempty"`
}

// PermissionConfig configures the permission broker's approval timeout.
// MessageTTLSeconds is carried in the config but nothing in this module
// reads it: stored messages have no expiry and are never swept.
type PermissionConfig struct {
	ApprovalTimeoutSeconds int   `json:"approval_timeout_seconds"`
	MessageTTLSeconds      int64 `json:"message_ttl_seconds"`
}

// Default returns the zero-config defaults, mirroring the teacher's own
// Default() constructor.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		WorkspaceRoot:       filepath.Join(home, ".goclaw-supervisor", "workspace"),
		AgentWorkspacesRoot: filepath.Join(os.TempDir(), "goclaw-supervisor-workspaces"),
		SkillsStorageDir:    filepath.Join(home, ".goclaw-supervisor", "skills-store"),
		PluginCacheDir:      filepath.Join(home, ".goclaw-supervisor", "plugins"),
		Repository: RepositoryConfig{
			Backend: "sqlite",
			DSN:     filepath.Join(home, ".goclaw-supervisor", "supervisor.db"),
		},
		DefaultTool: ToolPolicySpec{Profile: "minimal"},
		Permission: PermissionConfig{
			ApprovalTimeoutSeconds: 300,
			MessageTTLSeconds:      300,
		},
	}
}

// ResolveAgent merges an agent's per-entity config with the global
// defaults: a zero value on the agent profile means "inherit", matching the
// teacher's ResolveAgent merge-defaults idiom.
func (c *Config) ResolveAgent(agentID string) *AgentProfile {
	for i := range c.Agents {
		if c.Agents[i].ID == agentID {
			resolved := c.Agents[i]
			if resolved.ToolPolicy.Profile == "" {
				resolved.ToolPolicy = c.DefaultTool
			}
			return &resolved
		}
	}
	return &AgentProfile{ID: agentID, ToolPolicy: c.DefaultTool}
}

// ExpandHome expands a leading "~" to the current user's home directory,
// the same helper the teacher carries in internal/config.
func ExpandHome(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
