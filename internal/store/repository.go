package store

import "context"

// ListOpts controls pagination and ordering for a repository List call.
// Matching the teacher's SessionListOpts shape.
type ListOpts struct {
	Limit    int
	Offset   int
	Newest   bool // true = newest-first, false = oldest-first
}

// AgentRepository is the typed CRUD facade over agent profiles.
type AgentRepository interface {
	Create(ctx context.Context, a *Agent) (*Agent, error)
	Get(ctx context.Context, id string) (*Agent, error)
	Update(ctx context.Context, id string, patch map[string]any) (*Agent, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOpts) ([]*Agent, error)
}

// SkillRepository covers the skill record plus its numbered versions.
type SkillRepository interface {
	Create(ctx context.Context, s *Skill) (*Skill, error)
	Get(ctx context.Context, id string) (*Skill, error)
	GetByFolderName(ctx context.Context, folderName string) (*Skill, error)
	Update(ctx context.Context, id string, patch map[string]any) (*Skill, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOpts) ([]*Skill, error)

	CreateVersion(ctx context.Context, v *SkillVersion) (*SkillVersion, error)
	GetVersion(ctx context.Context, skillID string, version int) (*SkillVersion, error)
	ListVersions(ctx context.Context, skillID string) ([]*SkillVersion, error)
	UpdateVersion(ctx context.Context, id string, patch map[string]any) (*SkillVersion, error)
	DeleteVersion(ctx context.Context, id string) error
}

// SessionRepository is the session/message store.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	GetByKey(ctx context.Context, agentID, key string) (*Session, error)
	Update(ctx context.Context, id string, patch map[string]any) (*Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, agentID string, opts ListOpts) ([]*Session, error)

	AppendMessage(ctx context.Context, m *Message) (*Message, error)
	ListMessages(ctx context.Context, sessionID string, opts ListOpts) ([]*Message, error)
}

// PermissionRepository durably records suspend-for-approval requests (the
// TTL message store backing the permission broker's rendezvous).
type PermissionRepository interface {
	Create(ctx context.Context, p *PermissionRequest) (*PermissionRequest, error)
	Get(ctx context.Context, id string) (*PermissionRequest, error)
	Update(ctx context.Context, id string, patch map[string]any) (*PermissionRequest, error)
	ListPending(ctx context.Context, sessionID string) ([]*PermissionRequest, error)
	// DeleteExpired marks pending rows older than ttl seconds as expired
	// (the rows are kept), returning the number of rows marked.
	DeleteExpired(ctx context.Context, ttl int64) (int, error)
}

// PluginRepository tracks installed plugins and configured marketplaces.
type PluginRepository interface {
	Create(ctx context.Context, p *Plugin) (*Plugin, error)
	Get(ctx context.Context, id string) (*Plugin, error)
	GetByMarketplaceAndName(ctx context.Context, marketplaceID, name string) (*Plugin, error)
	Update(ctx context.Context, id string, patch map[string]any) (*Plugin, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Plugin, error)
	ListByMarketplace(ctx context.Context, marketplaceID string) ([]*Plugin, error)

	CreateMarketplace(ctx context.Context, m *Marketplace) (*Marketplace, error)
	GetMarketplace(ctx context.Context, id string) (*Marketplace, error)
	GetMarketplaceByOwnerRepo(ctx context.Context, owner, repo string) (*Marketplace, error)
	UpdateMarketplace(ctx context.Context, id string, patch map[string]any) (*Marketplace, error)
	ListMarketplaces(ctx context.Context) ([]*Marketplace, error)
	DeleteMarketplace(ctx context.Context, id string) error
}

// Repository aggregates all per-entity stores, mirroring the teacher's
// top-level Stores container.
type Repository struct {
	Agents      AgentRepository
	Skills      SkillRepository
	Sessions    SessionRepository
	Permissions PermissionRepository
	Plugins     PluginRepository
}

// Config selects and configures a repository backend.
type Config struct {
	// Backend is "sqlite" or "postgres".
	Backend string
	// DSN is the driver-specific connection string. For sqlite this is a
	// file path (or ":memory:").
	DSN string
}
