package plugins

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/errs"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/sqlite"
)

func newTestManager(t *testing.T) (*Manager, *store.Repository, ContentRoots) {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	base := t.TempDir()
	roots := ContentRoots{
		CacheRoot:    filepath.Join(base, "cache"),
		SkillsRoot:   filepath.Join(base, "skills"),
		CommandsRoot: filepath.Join(base, "commands"),
		AgentsRoot:   filepath.Join(base, "agents"),
		HooksRoot:    filepath.Join(base, "hooks"),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(roots, repo, log), repo, roots
}

// seedCachedMarketplace writes a fake already-cloned marketplace directory
// (skipping the git clone step, which the tests never exercise directly)
// with one plugin declaring a single skill folder.
func seedCachedMarketplace(t *testing.T, roots ContentRoots, owner, repo, pluginName, skillName string) {
	t.Helper()
	dest := filepath.Join(roots.CacheRoot, owner, repo)
	manifestDir := filepath.Join(dest, ".claude-plugin")
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		t.Fatalf("MkdirAll manifest dir: %v", err)
	}
	manifest := marketplaceManifest{
		Name: repo,
		Plugins: []pluginManifestRef{
			{Name: pluginName, Skills: []string{skillName}},
		},
	}
	b, _ := json.Marshal(manifest)
	if err := os.WriteFile(filepath.Join(manifestDir, "marketplace.json"), b, 0o644); err != nil {
		t.Fatalf("write marketplace.json: %v", err)
	}
	skillDir := filepath.Join(dest, "skills", skillName)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatalf("MkdirAll skill dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte("# "+skillName+"\n"), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
}

func TestInstall_CopiesSkillAndRecordsPlugin(t *testing.T) {
	mgr, repo, roots := newTestManager(t)
	ctx := context.Background()

	seedCachedMarketplace(t, roots, "anthropics", "skills-marketplace", "pdf-tools", "pdf-tools")
	mkt, err := repo.Plugins.CreateMarketplace(ctx, &store.Marketplace{
		Type: store.MarketplaceGit, Owner: "anthropics", Repo: "skills-marketplace",
	})
	if err != nil {
		t.Fatalf("CreateMarketplace: %v", err)
	}

	p, err := mgr.Install(ctx, mkt, "pdf-tools")
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if len(p.Skills) != 1 || p.Skills[0] != "pdf-tools" {
		t.Errorf("Install().Skills = %v, want [pdf-tools]", p.Skills)
	}
	if _, err := os.Stat(filepath.Join(roots.SkillsRoot, "pdf-tools", "SKILL.md")); err != nil {
		t.Errorf("skill not copied into shared skills root: %v", err)
	}

	sk, err := repo.Skills.GetByFolderName(ctx, "pdf-tools")
	if err != nil {
		t.Fatalf("GetByFolderName: %v", err)
	}
	if sk.SourceType != store.SkillSourcePlugin || sk.SourcePluginID != p.ID {
		t.Errorf("skill record = %+v, want source_type=plugin source_plugin_id=%s", sk, p.ID)
	}
}

func TestInstall_DuplicateIsConflict(t *testing.T) {
	mgr, repo, roots := newTestManager(t)
	ctx := context.Background()

	seedCachedMarketplace(t, roots, "anthropics", "skills-marketplace", "pdf-tools", "pdf-tools")
	mkt, _ := repo.Plugins.CreateMarketplace(ctx, &store.Marketplace{Owner: "anthropics", Repo: "skills-marketplace"})

	if _, err := mgr.Install(ctx, mkt, "pdf-tools"); err != nil {
		t.Fatalf("first Install() error = %v", err)
	}
	_, err := mgr.Install(ctx, mkt, "pdf-tools")
	if !errs.Is(err, errs.KindConflict) {
		t.Errorf("second Install() error = %v, want Conflict", err)
	}
}

func TestUninstall_RemovesArtifactsAndAgentReferences(t *testing.T) {
	mgr, repo, roots := newTestManager(t)
	ctx := context.Background()

	seedCachedMarketplace(t, roots, "anthropics", "skills-marketplace", "pdf-tools", "pdf-tools")
	mkt, _ := repo.Plugins.CreateMarketplace(ctx, &store.Marketplace{Owner: "anthropics", Repo: "skills-marketplace"})
	p, err := mgr.Install(ctx, mkt, "pdf-tools")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	a, err := repo.Agents.Create(ctx, &store.Agent{Name: "researcher", PluginIDs: []string{p.ID}})
	if err != nil {
		t.Fatalf("Create agent: %v", err)
	}

	if err := mgr.Uninstall(ctx, p.ID); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(roots.SkillsRoot, "pdf-tools")); !os.IsNotExist(err) {
		t.Errorf("skill artifact still present after uninstall: %v", err)
	}
	if _, err := repo.Skills.GetByFolderName(ctx, "pdf-tools"); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("skill record survives uninstall: %v", err)
	}
	got, err := repo.Agents.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get agent: %v", err)
	}
	if len(got.PluginIDs) != 0 {
		t.Errorf("agent.PluginIDs after uninstall = %v, want empty", got.PluginIDs)
	}
	if _, err := repo.Plugins.Get(ctx, p.ID); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("plugin record survives uninstall: %v", err)
	}
}

func TestListCached_ReadsManifestWithoutNetwork(t *testing.T) {
	mgr, repo, roots := newTestManager(t)
	seedCachedMarketplace(t, roots, "anthropics", "skills-marketplace", "pdf-tools", "pdf-tools")
	mkt, err := repo.Plugins.CreateMarketplace(context.Background(), &store.Marketplace{Owner: "anthropics", Repo: "skills-marketplace"})
	if err != nil {
		t.Fatalf("CreateMarketplace: %v", err)
	}

	names, err := mgr.ListCached(mkt)
	if err != nil {
		t.Fatalf("ListCached() error = %v", err)
	}
	if len(names) != 1 || names[0] != "pdf-tools" {
		t.Errorf("ListCached() = %v, want [pdf-tools]", names)
	}
}
