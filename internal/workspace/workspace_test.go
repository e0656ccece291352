package workspace

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/sqlite"
)

func newTestManager(t *testing.T) (*Manager, *store.Repository) {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	root := t.TempDir()
	main := filepath.Join(root, "main-workspace")
	agents := filepath.Join(root, "agent-workspaces")
	plugins := filepath.Join(root, "plugin-skills")
	for _, d := range []string{main, agents, plugins} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return New(main, agents, plugins, repo.Skills, log), repo
}

func writeSkill(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("# "+name), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestGetAllSkillNames_DedupesAcrossRoots(t *testing.T) {
	m, _ := newTestManager(t)
	writeSkill(t, m.pluginSkillsDir, "pdf-tools")
	writeSkill(t, m.mainSkillsDir(), "custom-skill")
	// A directory without SKILL.md must not count as a skill.
	os.MkdirAll(filepath.Join(m.mainSkillsDir(), "not-a-skill"), 0o755)

	got := m.GetAllSkillNames()
	want := map[string]bool{"pdf-tools": true, "custom-skill": true}
	if len(got) != len(want) {
		t.Fatalf("GetAllSkillNames() = %v, want exactly %v", got, want)
	}
	for _, n := range got {
		if !want[n] {
			t.Errorf("unexpected skill name %q", n)
		}
	}
}

func TestRebuildAgentWorkspace_SymlinksResolveAndAreAbsolute(t *testing.T) {
	m, repo := newTestManager(t)
	pluginDir := writeSkill(t, m.pluginSkillsDir, "pdf-tools")

	skill, err := repo.Skills.Create(context.Background(), &store.Skill{Name: "PDF Tools", FolderName: "pdf-tools"})
	if err != nil {
		t.Fatalf("Create skill: %v", err)
	}

	path, err := m.RebuildAgentWorkspace(context.Background(), "agent-1", []string{skill.ID}, false)
	if err != nil {
		t.Fatalf("RebuildAgentWorkspace: %v", err)
	}
	if path != m.AgentWorkspace("agent-1") {
		t.Errorf("returned path = %q, want %q", path, m.AgentWorkspace("agent-1"))
	}

	link := filepath.Join(m.AgentSkillsDir("agent-1"), "pdf-tools")
	info, err := os.Lstat(link)
	if err != nil {
		t.Fatalf("Lstat symlink: %v", err)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		t.Fatal("expected a symlink")
	}
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if !filepath.IsAbs(target) {
		t.Errorf("symlink target %q must be absolute", target)
	}
	wantTarget, _ := filepath.Abs(pluginDir)
	if target != wantTarget {
		t.Errorf("symlink target = %q, want %q", target, wantTarget)
	}
}

func TestRebuildAgentWorkspace_UnresolvableSkillIsSkippedNotFatal(t *testing.T) {
	m, repo := newTestManager(t)
	missing, err := repo.Skills.Create(context.Background(), &store.Skill{Name: "Ghost", FolderName: "ghost-skill"})
	if err != nil {
		t.Fatalf("Create skill: %v", err)
	}

	_, err = m.RebuildAgentWorkspace(context.Background(), "agent-1", []string{missing.ID}, false)
	if err != nil {
		t.Fatalf("RebuildAgentWorkspace should not fail on an unresolvable skill: %v", err)
	}
	entries, _ := os.ReadDir(m.AgentSkillsDir("agent-1"))
	if len(entries) != 0 {
		t.Errorf("expected no symlinks for a ghost skill, got %d entries", len(entries))
	}
}

func TestRebuildAgentWorkspace_ClearsPriorSymlinks(t *testing.T) {
	m, repo := newTestManager(t)
	writeSkill(t, m.pluginSkillsDir, "a")
	writeSkill(t, m.pluginSkillsDir, "b")
	sa, _ := repo.Skills.Create(context.Background(), &store.Skill{Name: "A", FolderName: "a"})
	sb, _ := repo.Skills.Create(context.Background(), &store.Skill{Name: "B", FolderName: "b"})

	if _, err := m.RebuildAgentWorkspace(context.Background(), "agent-1", []string{sa.ID, sb.ID}, false); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	if _, err := m.RebuildAgentWorkspace(context.Background(), "agent-1", []string{sa.ID}, false); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}

	entries, _ := os.ReadDir(m.AgentSkillsDir("agent-1"))
	if len(entries) != 1 || entries[0].Name() != "a" {
		t.Errorf("expected only skill 'a' after rebuild, got %v", entries)
	}
}

func TestRebuildAgentWorkspace_AllowAllLinksEverything(t *testing.T) {
	m, _ := newTestManager(t)
	writeSkill(t, m.pluginSkillsDir, "a")
	writeSkill(t, m.mainSkillsDir(), "b")

	if _, err := m.RebuildAgentWorkspace(context.Background(), "agent-1", nil, true); err != nil {
		t.Fatalf("RebuildAgentWorkspace: %v", err)
	}
	entries, _ := os.ReadDir(m.AgentSkillsDir("agent-1"))
	if len(entries) != 2 {
		t.Errorf("expected 2 symlinks with allow_all, got %d", len(entries))
	}
}

func TestDeleteAgentWorkspace(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.RebuildAgentWorkspace(context.Background(), "agent-1", nil, false); err != nil {
		t.Fatalf("RebuildAgentWorkspace: %v", err)
	}
	if !m.WorkspaceExists("agent-1") {
		t.Fatal("workspace should exist after rebuild")
	}
	if err := m.DeleteAgentWorkspace("agent-1"); err != nil {
		t.Fatalf("DeleteAgentWorkspace: %v", err)
	}
	if m.WorkspaceExists("agent-1") {
		t.Error("workspace should not exist after delete")
	}
	// Deleting again must be a no-op, not an error.
	if err := m.DeleteAgentWorkspace("agent-1"); err != nil {
		t.Fatalf("second DeleteAgentWorkspace: %v", err)
	}
}

func TestGetAllowedSkillNames(t *testing.T) {
	m, repo := newTestManager(t)
	writeSkill(t, m.pluginSkillsDir, "a")
	writeSkill(t, m.mainSkillsDir(), "b")
	sa, _ := repo.Skills.Create(context.Background(), &store.Skill{Name: "A", FolderName: "a"})

	got := m.GetAllowedSkillNames(context.Background(), []string{sa.ID}, false)
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("GetAllowedSkillNames(explicit) = %v, want [a]", got)
	}

	got = m.GetAllowedSkillNames(context.Background(), nil, true)
	if len(got) != 2 {
		t.Errorf("GetAllowedSkillNames(allow_all) = %v, want 2 entries", got)
	}
}
