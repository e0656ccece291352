// Package workspace manages per-agent workspaces with skill isolation via
// symlinks. Agent workspaces live outside the main workspace tree so the
// model agent's skill discovery can't see unauthorized skills in parent
// directories.
//
// Skill source locations, checked in priority order:
//  1. the skill record's LocalPath, if set and it exists
//  2. {skills storage dir}/{skill_name}     — plugin-installed skills
//  3. {main workspace}/.claude/skills/{skill_name} — user-created skills
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// Manager builds and tears down per-agent workspaces and resolves skill
// source paths for symlinking.
type Manager struct {
	mainWorkspace      string // holds the user-created-skills tree
	agentWorkspaces    string // isolated per-agent workspace root, outside the project tree
	pluginSkillsDir    string // shared plugin-installed skills root
	skills             store.SkillRepository
	log                *slog.Logger
}

// New builds a Manager. mainWorkspace is the project workspace containing
// .claude/skills for user-created skills; agentWorkspaces is an isolated
// root (e.g. under os.TempDir()) that holds each agent's private workspace;
// pluginSkillsDir is the shared root plugin installs populate (typically
// ~/.claude/skills).
func New(mainWorkspace, agentWorkspaces, pluginSkillsDir string, skills store.SkillRepository, log *slog.Logger) *Manager {
	return &Manager{
		mainWorkspace:   mainWorkspace,
		agentWorkspaces: agentWorkspaces,
		pluginSkillsDir: pluginSkillsDir,
		skills:          skills,
		log:             log,
	}
}

func (m *Manager) mainSkillsDir() string {
	return filepath.Join(m.mainWorkspace, ".claude", "skills")
}

// ensureDirs creates the directories rebuild needs, matching
// WorkspaceManager._ensure_dirs.
func (m *Manager) ensureDirs() error {
	if err := os.MkdirAll(m.mainSkillsDir(), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(m.agentWorkspaces, 0o755)
}

// AgentWorkspace returns the workspace path for agentID.
func (m *Manager) AgentWorkspace(agentID string) string {
	return filepath.Join(m.agentWorkspaces, agentID)
}

// AgentSkillsDir returns the agent's private skills symlink directory.
func (m *Manager) AgentSkillsDir(agentID string) string {
	return filepath.Join(m.AgentWorkspace(agentID), ".claude", "skills")
}

// WorkspaceExists reports whether agentID already has a workspace.
func (m *Manager) WorkspaceExists(agentID string) bool {
	_, err := os.Stat(m.AgentWorkspace(agentID))
	return err == nil
}

var invalidFolderChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeFolderName(name string) string {
	return invalidFolderChars.ReplaceAllString(strings.ToLower(name), "-")
}

// skillNameByID resolves a skill id to its folder name, falling back to a
// sanitized skill name when folder_name wasn't set.
func (m *Manager) skillNameByID(ctx context.Context, skillID string) (string, bool) {
	s, err := m.skills.Get(ctx, skillID)
	if err != nil {
		m.log.Warn("skill not found", "skill_id", skillID)
		return "", false
	}
	if s.FolderName != "" {
		return s.FolderName, true
	}
	return sanitizeFolderName(s.Name), true
}

// skillByFolderName finds the skill record matching folderName, either
// directly or via its sanitized name, mirroring _get_skill_by_name.
func (m *Manager) skillByFolderName(ctx context.Context, folderName string) *store.Skill {
	all, err := m.skills.List(ctx, store.ListOpts{Limit: 10000})
	if err != nil {
		return nil
	}
	for _, s := range all {
		if s.FolderName == folderName {
			return s
		}
		if sanitizeFolderName(s.Name) == folderName {
			return s
		}
	}
	return nil
}

// skillSourcePath resolves where a skill named skillName actually lives on
// disk, checking local_path, the shared plugin skills root, then the main
// workspace's user-skill tree, in that order. Returns "" if not found
// anywhere.
func (m *Manager) skillSourcePath(skillName string, rec *store.Skill) string {
	if rec != nil && rec.LocalPath != "" {
		if _, err := os.Stat(rec.LocalPath); err == nil {
			return rec.LocalPath
		}
	}
	pluginPath := filepath.Join(m.pluginSkillsDir, skillName)
	if _, err := os.Stat(pluginPath); err == nil {
		return pluginPath
	}
	workspacePath := filepath.Join(m.mainSkillsDir(), skillName)
	if _, err := os.Stat(workspacePath); err == nil {
		return workspacePath
	}
	return ""
}

// hasSkillMD reports whether dir/SKILL.md exists, the marker this manager
// uses to recognize a directory as an installed skill.
func hasSkillMD(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "SKILL.md"))
	return err == nil
}

// listSkillFolders returns the subdirectories of root containing SKILL.md,
// skipping dotfiles.
func listSkillFolders(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if hasSkillMD(filepath.Join(root, e.Name())) {
			names = append(names, e.Name())
		}
	}
	return names
}

// GetAllSkillNames returns the deduplicated set of skill folder names found
// across the plugin-installed and user-created skill roots.
func (m *Manager) GetAllSkillNames() []string {
	seen := make(map[string]bool)
	for _, n := range listSkillFolders(m.pluginSkillsDir) {
		seen[n] = true
	}
	for _, n := range listSkillFolders(m.mainSkillsDir()) {
		seen[n] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	return names
}

// GetAllowedSkillNames is the set the hook chain uses for runtime checks:
// every available skill when allowAll is set, otherwise the folder names
// resolved from skillIDs.
func (m *Manager) GetAllowedSkillNames(ctx context.Context, skillIDs []string, allowAll bool) []string {
	if allowAll {
		return m.GetAllSkillNames()
	}
	names := make([]string, 0, len(skillIDs))
	for _, id := range skillIDs {
		if name, ok := m.skillNameByID(ctx, id); ok {
			names = append(names, name)
		}
	}
	return names
}

// RebuildAgentWorkspace deletes and recreates agentID's skills symlink
// directory, populating it with absolute symlinks to every allowed skill's
// resolved source. A skill whose source can't be found, or whose symlink
// can't be created, is logged and skipped — it never aborts the rebuild.
func (m *Manager) RebuildAgentWorkspace(ctx context.Context, agentID string, skillIDs []string, allowAll bool) (string, error) {
	if err := m.ensureDirs(); err != nil {
		return "", fmt.Errorf("ensure workspace dirs: %w", err)
	}

	agentWorkspace := m.AgentWorkspace(agentID)
	agentSkillsDir := m.AgentSkillsDir(agentID)

	if err := os.RemoveAll(agentSkillsDir); err != nil {
		return "", fmt.Errorf("clear agent skills dir: %w", err)
	}
	if err := os.MkdirAll(agentSkillsDir, 0o755); err != nil {
		return "", fmt.Errorf("create agent skills dir: %w", err)
	}

	var skillNames []string
	if allowAll {
		skillNames = m.GetAllSkillNames()
		m.log.Info("linking all skills", "agent_id", agentID, "count", len(skillNames))
	} else {
		for _, id := range skillIDs {
			if name, ok := m.skillNameByID(ctx, id); ok {
				skillNames = append(skillNames, name)
			} else {
				m.log.Warn("could not resolve skill id to name", "agent_id", agentID, "skill_id", id)
			}
		}
		m.log.Info("linking skills", "agent_id", agentID, "count", len(skillNames), "skills", skillNames)
	}

	linked := 0
	for _, name := range skillNames {
		rec := m.skillByFolderName(ctx, name)
		source := m.skillSourcePath(name, rec)
		if source == "" {
			m.log.Warn("skill directory not found in any location", "agent_id", agentID, "skill", name)
			continue
		}
		absSource, err := filepath.Abs(source)
		if err != nil {
			m.log.Error("failed to resolve absolute skill path", "skill", name, "error", err)
			continue
		}
		target := filepath.Join(agentSkillsDir, name)
		if err := os.Symlink(absSource, target); err != nil {
			m.log.Error("failed to create symlink", "skill", name, "error", err)
			continue
		}
		linked++
	}

	m.log.Info("agent workspace rebuilt", "agent_id", agentID, "linked", linked)
	return agentWorkspace, nil
}

// DeleteAgentWorkspace removes an agent's workspace directory entirely.
func (m *Manager) DeleteAgentWorkspace(agentID string) error {
	path := m.AgentWorkspace(agentID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		m.log.Debug("no workspace to delete", "agent_id", agentID)
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete agent workspace: %w", err)
	}
	m.log.Info("deleted agent workspace", "agent_id", agentID)
	return nil
}
