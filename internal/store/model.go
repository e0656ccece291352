// Package store defines the entities and repository contract described by
// the data model: agent profiles, skills and their versions, sessions,
// messages, permission requests, plugins, and marketplaces.
package store

import "time"

// BaseModel carries the id/timestamp stamping every entity gets from the
// repository on create and update.
type BaseModel struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PermissionMode mirrors the model agent's own permission-mode vocabulary.
type PermissionMode string

const (
	PermissionModeDefault     PermissionMode = "default"
	PermissionModeAcceptEdits PermissionMode = "accept-edits"
	PermissionModePlan        PermissionMode = "plan"
	PermissionModeBypass      PermissionMode = "bypass"
)

// Agent is a configured agent profile: its identity, tool policy, and the
// skill/plugin/MCP-server sets it is allowed to see.
//
// Invariant: GlobalUserMode ⇒ AllowAllSkills ∧ len(SkillIDs) == 0.
type Agent struct {
	BaseModel
	Name           string         `json:"name"`
	SystemPrompt   string         `json:"system_prompt"`
	Model          string         `json:"model"`
	PermissionMode PermissionMode `json:"permission_mode"`
	AllowAllSkills bool           `json:"allow_all_skills"`
	SkillIDs       []string       `json:"skill_ids"`
	PluginIDs      []string       `json:"plugin_ids"`
	MCPServerIDs   []string       `json:"mcp_server_ids"`
	ToolPolicy     string         `json:"tool_policy"` // profile name, see internal/config
	GlobalUserMode bool           `json:"global_user_mode"`

	EnableHumanApproval bool     `json:"enable_human_approval"`
	FileAccessControl   bool     `json:"file_access_control"`
	AllowedDirectories  []string `json:"allowed_directories"`
}

// SkillVersionState tracks where a version sits in the draft/publish
// lifecycle.
type SkillVersionState string

const (
	SkillVersionDraft     SkillVersionState = "draft"
	SkillVersionPublished SkillVersionState = "published"
)

// SkillSourceType classifies where a skill's content originates. Only
// user-sourced skills are mutated by the skill manager; plugin and local
// skills are projected in by the plugin installer or an explicit override
// and are never drafted/published/rolled back.
type SkillSourceType string

const (
	SkillSourceUser   SkillSourceType = "user"
	SkillSourcePlugin SkillSourceType = "plugin"
	SkillSourceLocal  SkillSourceType = "local"
)

// Skill is the logical skill record; its on-disk content lives under a
// numbered version directory managed by SkillVersion.
type Skill struct {
	BaseModel
	Name             string          `json:"name"`
	FolderName       string          `json:"folder_name"`
	SourceType       SkillSourceType `json:"source_type"`
	SourcePluginID   string          `json:"source_plugin_id,omitempty"`
	LocalPath        string          `json:"local_path"` // non-empty only when overriding normal resolution
	PublishedVersion int             `json:"published_version"`
}

// SkillVersion is one numbered revision of a skill's content.
type SkillVersion struct {
	BaseModel
	SkillID     string            `json:"skill_id"`
	Version     int               `json:"version"`
	State       SkillVersionState `json:"state"`
	ContentPath string            `json:"content_path"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

// Session is one conversation thread tracked by the supervisor.
type Session struct {
	BaseModel
	AgentID  string `json:"agent_id"`
	Key      string `json:"key"`
	Title    string `json:"title"`
	Archived bool   `json:"archived"`
}

// Message is one turn entry (user, assistant, tool, or system) in a session.
type Message struct {
	BaseModel
	SessionID string         `json:"session_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls map[string]any `json:"tool_calls,omitempty"`
}

// PermissionRequestState tracks a human-approval request's lifecycle.
type PermissionRequestState string

const (
	PermissionPending  PermissionRequestState = "pending"
	PermissionApproved PermissionRequestState = "approved"
	PermissionDenied   PermissionRequestState = "denied"
	PermissionExpired  PermissionRequestState = "expired"
)

// PermissionRequest is a durable record of one suspend-for-approval event.
type PermissionRequest struct {
	BaseModel
	SessionID string                 `json:"session_id"`
	ToolName  string                 `json:"tool_name"`
	ToolInput map[string]any         `json:"tool_input"`
	Reason    string                 `json:"reason"`
	State     PermissionRequestState `json:"state"`
	Feedback  string                 `json:"feedback,omitempty"`
}

// PluginStatus tracks whether an installed plugin's artifacts are active.
type PluginStatus string

const (
	PluginInstalled PluginStatus = "installed"
	PluginDisabled  PluginStatus = "disabled"
)

// Plugin is one installed marketplace plugin: its manifest identity plus
// the artifacts it projected into the shared content roots.
type Plugin struct {
	BaseModel
	MarketplaceID string       `json:"marketplace_id"`
	Name          string       `json:"name"`
	Version       string       `json:"version"`
	Skills        []string     `json:"skills"`
	Commands      []string     `json:"commands"`
	Agents        []string     `json:"agents"`
	Hooks         []string     `json:"hooks"`
	MCPServers    []string     `json:"mcp_servers"`
	InstallPath   string       `json:"install_path"` // absolute plugin source directory
	Status        PluginStatus `json:"status"`

	// Owner/Repo/Ref address the plugin's own clone when it was installed
	// from a marketplace.json entry pointing at a separate remote, rather
	// than from the marketplace's own repository.
	Owner string `json:"owner,omitempty"`
	Repo  string `json:"repo,omitempty"`
	Ref   string `json:"ref,omitempty"`
}

// MarketplaceType selects how a marketplace's content is fetched.
type MarketplaceType string

const (
	MarketplaceGit   MarketplaceType = "git"
	MarketplaceHTTP  MarketplaceType = "http"
	MarketplaceLocal MarketplaceType = "local"
)

// Marketplace is a configured plugin source: a Git repository (or local
// tree) that either declares a marketplace.json enumerating plugins, or is
// itself a single plugin.
type Marketplace struct {
	BaseModel
	Type           MarketplaceType `json:"type"`
	Owner          string          `json:"owner"`
	Repo           string          `json:"repo"`
	Name           string          `json:"name"`
	URL            string          `json:"url"`
	Branch         string          `json:"branch"`
	CachePath      string          `json:"cache_path"`
	CachedPlugins  []string        `json:"cached_plugins"`
	LastSyncedAt   time.Time       `json:"last_synced_at"`
}
