package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/errs"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

type PluginStore struct {
	db *sql.DB
}

func NewPluginStore(db *sql.DB) *PluginStore { return &PluginStore{db: db} }

const pluginCols = `id, marketplace_id, name, version, skills, commands, agents, hooks, mcp_servers, install_path, status, owner, repo, ref, created_at, updated_at`

func marshalList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func (s *PluginStore) Create(ctx context.Context, p *store.Plugin) (*store.Plugin, error) {
	now := time.Now().UTC()
	p.ID = uuid.Must(uuid.NewV7()).String()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = store.PluginInstalled
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plugins (id, marketplace_id, name, version, skills, commands, agents, hooks, mcp_servers, install_path, status, owner, repo, ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MarketplaceID, p.Name, p.Version,
		marshalList(p.Skills), marshalList(p.Commands), marshalList(p.Agents), marshalList(p.Hooks), marshalList(p.MCPServers),
		p.InstallPath, p.Status, p.Owner, p.Repo, p.Ref, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.Conflict("plugin %s is already installed from this marketplace", p.Name)
		}
		return nil, fmt.Errorf("insert plugin: %w", err)
	}
	return p, nil
}

func scanPlugin(row *sql.Row) (*store.Plugin, error) {
	var p store.Plugin
	var skills, commands, agents, hooks, mcpServers string
	if err := row.Scan(&p.ID, &p.MarketplaceID, &p.Name, &p.Version, &skills, &commands, &agents, &hooks, &mcpServers,
		&p.InstallPath, &p.Status, &p.Owner, &p.Repo, &p.Ref, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("plugin not found")
		}
		return nil, fmt.Errorf("scan plugin: %w", err)
	}
	json.Unmarshal([]byte(skills), &p.Skills)
	json.Unmarshal([]byte(commands), &p.Commands)
	json.Unmarshal([]byte(agents), &p.Agents)
	json.Unmarshal([]byte(hooks), &p.Hooks)
	json.Unmarshal([]byte(mcpServers), &p.MCPServers)
	return &p, nil
}

func scanPluginRows(rows *sql.Rows) (*store.Plugin, error) {
	var p store.Plugin
	var skills, commands, agents, hooks, mcpServers string
	if err := rows.Scan(&p.ID, &p.MarketplaceID, &p.Name, &p.Version, &skills, &commands, &agents, &hooks, &mcpServers,
		&p.InstallPath, &p.Status, &p.Owner, &p.Repo, &p.Ref, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan plugin row: %w", err)
	}
	json.Unmarshal([]byte(skills), &p.Skills)
	json.Unmarshal([]byte(commands), &p.Commands)
	json.Unmarshal([]byte(agents), &p.Agents)
	json.Unmarshal([]byte(hooks), &p.Hooks)
	json.Unmarshal([]byte(mcpServers), &p.MCPServers)
	return &p, nil
}

func (s *PluginStore) Get(ctx context.Context, id string) (*store.Plugin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pluginCols+` FROM plugins WHERE id=?`, id)
	return scanPlugin(row)
}

func (s *PluginStore) GetByMarketplaceAndName(ctx context.Context, marketplaceID, name string) (*store.Plugin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pluginCols+` FROM plugins WHERE marketplace_id=? AND name=?`, marketplaceID, name)
	return scanPlugin(row)
}

func (s *PluginStore) Update(ctx context.Context, id string, patch map[string]any) (*store.Plugin, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := patch["status"].(store.PluginStatus); ok {
		p.Status = v
	}
	if v, ok := patch["install_path"].(string); ok {
		p.InstallPath = v
	}
	if v, ok := patch["version"].(string); ok {
		p.Version = v
	}
	p.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE plugins SET status=?, install_path=?, version=?, updated_at=? WHERE id=?`,
		p.Status, p.InstallPath, p.Version, p.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update plugin: %w", err)
	}
	return p, nil
}

func (s *PluginStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plugins WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete plugin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("plugin not found")
	}
	return nil
}

func (s *PluginStore) List(ctx context.Context) ([]*store.Plugin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pluginCols+` FROM plugins ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list plugins: %w", err)
	}
	defer rows.Close()
	var out []*store.Plugin
	for rows.Next() {
		p, err := scanPluginRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PluginStore) ListByMarketplace(ctx context.Context, marketplaceID string) ([]*store.Plugin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pluginCols+` FROM plugins WHERE marketplace_id=? ORDER BY created_at ASC`, marketplaceID)
	if err != nil {
		return nil, fmt.Errorf("list plugins by marketplace: %w", err)
	}
	defer rows.Close()
	var out []*store.Plugin
	for rows.Next() {
		p, err := scanPluginRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const marketplaceCols = `id, type, owner, repo, name, url, branch, cache_path, cached_plugins, last_synced_at, created_at, updated_at`

func (s *PluginStore) CreateMarketplace(ctx context.Context, m *store.Marketplace) (*store.Marketplace, error) {
	now := time.Now().UTC()
	m.ID = uuid.Must(uuid.NewV7()).String()
	m.CreatedAt, m.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO marketplaces (id, type, owner, repo, name, url, branch, cache_path, cached_plugins, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Type, m.Owner, m.Repo, m.Name, m.URL, m.Branch, m.CachePath, marshalList(m.CachedPlugins), m.LastSyncedAt, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.Conflict("marketplace %s/%s already configured", m.Owner, m.Repo)
		}
		return nil, fmt.Errorf("insert marketplace: %w", err)
	}
	return m, nil
}

func scanMarketplace(row *sql.Row) (*store.Marketplace, error) {
	var m store.Marketplace
	var cached string
	if err := row.Scan(&m.ID, &m.Type, &m.Owner, &m.Repo, &m.Name, &m.URL, &m.Branch, &m.CachePath, &cached, &m.LastSyncedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("marketplace not found")
		}
		return nil, fmt.Errorf("scan marketplace: %w", err)
	}
	json.Unmarshal([]byte(cached), &m.CachedPlugins)
	return &m, nil
}

func (s *PluginStore) GetMarketplace(ctx context.Context, id string) (*store.Marketplace, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+marketplaceCols+` FROM marketplaces WHERE id=?`, id)
	return scanMarketplace(row)
}

func (s *PluginStore) GetMarketplaceByOwnerRepo(ctx context.Context, owner, repo string) (*store.Marketplace, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+marketplaceCols+` FROM marketplaces WHERE owner=? AND repo=?`, owner, repo)
	return scanMarketplace(row)
}

func (s *PluginStore) UpdateMarketplace(ctx context.Context, id string, patch map[string]any) (*store.Marketplace, error) {
	m, err := s.GetMarketplace(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := patch["cache_path"].(string); ok {
		m.CachePath = v
	}
	if v, ok := patch["cached_plugins"].([]string); ok {
		m.CachedPlugins = v
	}
	if v, ok := patch["last_synced_at"].(time.Time); ok {
		m.LastSyncedAt = v
	}
	m.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE marketplaces SET cache_path=?, cached_plugins=?, last_synced_at=?, updated_at=? WHERE id=?`,
		m.CachePath, marshalList(m.CachedPlugins), m.LastSyncedAt, m.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update marketplace: %w", err)
	}
	return m, nil
}

func (s *PluginStore) ListMarketplaces(ctx context.Context) ([]*store.Marketplace, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+marketplaceCols+` FROM marketplaces ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list marketplaces: %w", err)
	}
	defer rows.Close()
	var out []*store.Marketplace
	for rows.Next() {
		var m store.Marketplace
		var cached string
		if err := rows.Scan(&m.ID, &m.Type, &m.Owner, &m.Repo, &m.Name, &m.URL, &m.Branch, &m.CachePath, &cached, &m.LastSyncedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan marketplace row: %w", err)
		}
		json.Unmarshal([]byte(cached), &m.CachedPlugins)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PluginStore) DeleteMarketplace(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM marketplaces WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete marketplace: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("marketplace not found")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
