package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/errs"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

type AgentStore struct {
	db *sql.DB
}

func NewAgentStore(db *sql.DB) *AgentStore { return &AgentStore{db: db} }

const agentCols = `id, name, system_prompt, model, permission_mode, allow_all_skills, skill_ids, plugin_ids, mcp_server_ids, tool_policy, global_user_mode, enable_human_approval, file_access_control, allowed_directories, created_at, updated_at`

// enforceGlobalUserModeInvariant is the data model's global_user_mode ⇒
// allow_all_skills ∧ skill_ids = ∅ rule.
func enforceGlobalUserModeInvariant(a *store.Agent) error {
	if !a.GlobalUserMode {
		return nil
	}
	a.AllowAllSkills = true
	a.SkillIDs = nil
	return nil
}

func (s *AgentStore) Create(ctx context.Context, a *store.Agent) (*store.Agent, error) {
	now := time.Now().UTC()
	a.ID = uuid.Must(uuid.NewV7()).String()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.PermissionMode == "" {
		a.PermissionMode = store.PermissionModeDefault
	}
	if err := enforceGlobalUserModeInvariant(a); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, system_prompt, model, permission_mode, allow_all_skills, skill_ids, plugin_ids, mcp_server_ids, tool_policy, global_user_mode, enable_human_approval, file_access_control, allowed_directories, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.Name, a.SystemPrompt, a.Model, a.PermissionMode, a.AllowAllSkills,
		marshalList(a.SkillIDs), marshalList(a.PluginIDs), marshalList(a.MCPServerIDs), a.ToolPolicy,
		a.GlobalUserMode, a.EnableHumanApproval, a.FileAccessControl, marshalList(a.AllowedDirectories),
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	return a, nil
}

func (s *AgentStore) Get(ctx context.Context, id string) (*store.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentCols+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func scanAgent(row *sql.Row) (*store.Agent, error) {
	var a store.Agent
	var skillIDs, pluginIDs, mcpServerIDs, allowedDirs []byte
	if err := row.Scan(&a.ID, &a.Name, &a.SystemPrompt, &a.Model, &a.PermissionMode, &a.AllowAllSkills,
		&skillIDs, &pluginIDs, &mcpServerIDs, &a.ToolPolicy,
		&a.GlobalUserMode, &a.EnableHumanApproval, &a.FileAccessControl, &allowedDirs,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("agent not found")
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	json.Unmarshal(skillIDs, &a.SkillIDs)
	json.Unmarshal(pluginIDs, &a.PluginIDs)
	json.Unmarshal(mcpServerIDs, &a.MCPServerIDs)
	json.Unmarshal(allowedDirs, &a.AllowedDirectories)
	return &a, nil
}

func applyAgentPatch(a *store.Agent, patch map[string]any) {
	if v, ok := patch["name"].(string); ok {
		a.Name = v
	}
	if v, ok := patch["system_prompt"].(string); ok {
		a.SystemPrompt = v
	}
	if v, ok := patch["model"].(string); ok {
		a.Model = v
	}
	if v, ok := patch["permission_mode"].(store.PermissionMode); ok {
		a.PermissionMode = v
	}
	if v, ok := patch["allow_all_skills"].(bool); ok {
		a.AllowAllSkills = v
	}
	if v, ok := patch["skill_ids"].([]string); ok {
		a.SkillIDs = v
	}
	if v, ok := patch["plugin_ids"].([]string); ok {
		a.PluginIDs = v
	}
	if v, ok := patch["mcp_server_ids"].([]string); ok {
		a.MCPServerIDs = v
	}
	if v, ok := patch["tool_policy"].(string); ok {
		a.ToolPolicy = v
	}
	if v, ok := patch["global_user_mode"].(bool); ok {
		a.GlobalUserMode = v
	}
	if v, ok := patch["enable_human_approval"].(bool); ok {
		a.EnableHumanApproval = v
	}
	if v, ok := patch["file_access_control"].(bool); ok {
		a.FileAccessControl = v
	}
	if v, ok := patch["allowed_directories"].([]string); ok {
		a.AllowedDirectories = v
	}
}

func (s *AgentStore) Update(ctx context.Context, id string, patch map[string]any) (*store.Agent, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyAgentPatch(a, patch)
	if err := enforceGlobalUserModeInvariant(a); err != nil {
		return nil, err
	}
	a.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE agents SET name=$1, system_prompt=$2, model=$3, permission_mode=$4, allow_all_skills=$5, skill_ids=$6, plugin_ids=$7, mcp_server_ids=$8, tool_policy=$9, global_user_mode=$10, enable_human_approval=$11, file_access_control=$12, allowed_directories=$13, updated_at=$14
		WHERE id=$15`,
		a.Name, a.SystemPrompt, a.Model, a.PermissionMode, a.AllowAllSkills,
		marshalList(a.SkillIDs), marshalList(a.PluginIDs), marshalList(a.MCPServerIDs), a.ToolPolicy,
		a.GlobalUserMode, a.EnableHumanApproval, a.FileAccessControl, marshalList(a.AllowedDirectories),
		a.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update agent: %w", err)
	}
	return a, nil
}

func (s *AgentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("agent not found")
	}
	return nil
}

func (s *AgentStore) List(ctx context.Context, opts store.ListOpts) ([]*store.Agent, error) {
	order := "ASC"
	if opts.Newest {
		order = "DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentCols+` FROM agents ORDER BY created_at `+order+` LIMIT $1 OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()
	var out []*store.Agent
	for rows.Next() {
		var a store.Agent
		var skillIDs, pluginIDs, mcpServerIDs, allowedDirs []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.SystemPrompt, &a.Model, &a.PermissionMode, &a.AllowAllSkills,
			&skillIDs, &pluginIDs, &mcpServerIDs, &a.ToolPolicy,
			&a.GlobalUserMode, &a.EnableHumanApproval, &a.FileAccessControl, &allowedDirs,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		json.Unmarshal(skillIDs, &a.SkillIDs)
		json.Unmarshal(pluginIDs, &a.PluginIDs)
		json.Unmarshal(mcpServerIDs, &a.MCPServerIDs)
		json.Unmarshal(allowedDirs, &a.AllowedDirectories)
		out = append(out, &a)
	}
	return out, rows.Err()
}
