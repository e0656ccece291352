package skills

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/errs"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/sqlite"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	storageRoot := filepath.Join(t.TempDir(), "storage")
	mainSkillsDir := filepath.Join(t.TempDir(), "mirror")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(storageRoot, mainSkillsDir, repo.Skills, log)
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func writeLocalSkill(t *testing.T, dir string, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return dir
}

const sampleSkillMD = "# Weather Lookup\n\nLooks up current weather for a city.\n\nversion: 1.0.0\n"

func TestUploadPackage_CreatesSkillAndDraft(t *testing.T) {
	m := newTestManager(t)
	data := zipOf(t, map[string]string{"SKILL.md": sampleSkillMD})

	skill, err := m.UploadPackage(context.Background(), data, "weather", "")
	if err != nil {
		t.Fatalf("UploadPackage: %v", err)
	}
	if skill.SourceType != store.SkillSourceUser {
		t.Errorf("SourceType = %v, want user", skill.SourceType)
	}

	draft, err := m.draftVersion(context.Background(), skill.ID)
	if err != nil {
		t.Fatalf("draftVersion: %v", err)
	}
	if _, err := os.Stat(filepath.Join(draft.ContentPath, "SKILL.md")); err != nil {
		t.Errorf("draft content missing SKILL.md: %v", err)
	}
	if draft.Metadata["name"] != "Weather Lookup" {
		t.Errorf("extracted name = %q, want %q", draft.Metadata["name"], "Weather Lookup")
	}
}

func TestUploadPackage_RejectsZipWithoutSkillMD(t *testing.T) {
	m := newTestManager(t)
	data := zipOf(t, map[string]string{"README.md": "nothing here"})

	if _, err := m.UploadPackage(context.Background(), data, "broken", ""); !errs.Is(err, errs.KindInvalidInput) {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
}

func TestUploadPackage_ReplacesExistingDraft(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	first := zipOf(t, map[string]string{"SKILL.md": sampleSkillMD, "old.txt": "old"})
	skill, err := m.UploadPackage(ctx, first, "weather", "")
	if err != nil {
		t.Fatalf("UploadPackage (first): %v", err)
	}

	second := zipOf(t, map[string]string{"SKILL.md": sampleSkillMD})
	if _, err := m.UploadPackage(ctx, second, "weather", ""); err != nil {
		t.Fatalf("UploadPackage (second): %v", err)
	}

	draft, err := m.draftVersion(ctx, skill.ID)
	if err != nil {
		t.Fatalf("draftVersion: %v", err)
	}
	if _, err := os.Stat(filepath.Join(draft.ContentPath, "old.txt")); !os.IsNotExist(err) {
		t.Errorf("expected stale draft file to be gone, stat err = %v", err)
	}
}

func TestFinalizeFromLocal_RequiresSkillMD(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()
	if _, err := m.FinalizeFromLocal(context.Background(), dir, "empty", ""); !errs.Is(err, errs.KindInvalidInput) {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
}

func TestPublishDraft_PromotesVersionAndMirrors(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	data := zipOf(t, map[string]string{"SKILL.md": sampleSkillMD})
	skill, err := m.UploadPackage(ctx, data, "weather", "Weather")
	if err != nil {
		t.Fatalf("UploadPackage: %v", err)
	}

	published, err := m.PublishDraft(ctx, skill.ID, "")
	if err != nil {
		t.Fatalf("PublishDraft: %v", err)
	}
	if published.Version != 1 {
		t.Errorf("Version = %d, want 1", published.Version)
	}
	if published.State != store.SkillVersionPublished {
		t.Errorf("State = %v, want published", published.State)
	}

	if _, err := m.draftVersion(ctx, skill.ID); err == nil {
		t.Error("expected draft to be consumed by publish")
	}
	if _, err := os.Stat(filepath.Join(m.mirrorDir("weather"), "SKILL.md")); err != nil {
		t.Errorf("mirror missing SKILL.md: %v", err)
	}
}

func TestPublishDraft_NoDraftIsConflict(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	skill, err := m.getOrCreateSkill(ctx, "weather", "Weather")
	if err != nil {
		t.Fatalf("getOrCreateSkill: %v", err)
	}
	if _, err := m.PublishDraft(ctx, skill.ID, ""); !errs.Is(err, errs.KindConflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
}

func TestDiscardDraft_RemovesDraftOnly(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	data := zipOf(t, map[string]string{"SKILL.md": sampleSkillMD})
	skill, err := m.UploadPackage(ctx, data, "weather", "")
	if err != nil {
		t.Fatalf("UploadPackage: %v", err)
	}

	if err := m.DiscardDraft(ctx, skill.ID); err != nil {
		t.Fatalf("DiscardDraft: %v", err)
	}
	if _, err := m.draftVersion(ctx, skill.ID); err == nil {
		t.Error("expected draft to be gone")
	}
}

func TestRollback_RestoresPriorVersionAsMirror(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	v1zip := zipOf(t, map[string]string{"SKILL.md": "# v1\n\nFirst.\n"})
	skill, err := m.UploadPackage(ctx, v1zip, "weather", "")
	if err != nil {
		t.Fatalf("UploadPackage v1: %v", err)
	}
	if _, err := m.PublishDraft(ctx, skill.ID, "v1"); err != nil {
		t.Fatalf("PublishDraft v1: %v", err)
	}

	v2zip := zipOf(t, map[string]string{"SKILL.md": "# v2\n\nSecond.\n"})
	if _, err := m.UploadPackage(ctx, v2zip, "weather", ""); err != nil {
		t.Fatalf("UploadPackage v2: %v", err)
	}
	if _, err := m.PublishDraft(ctx, skill.ID, "v2"); err != nil {
		t.Fatalf("PublishDraft v2: %v", err)
	}

	if err := m.Rollback(ctx, skill.ID, 1); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	mirrored, err := os.ReadFile(filepath.Join(m.mirrorDir("weather"), "SKILL.md"))
	if err != nil {
		t.Fatalf("ReadFile mirror: %v", err)
	}
	if !bytes.Contains(mirrored, []byte("First")) {
		t.Errorf("mirror = %q, want content from v1", mirrored)
	}
}

func TestRollback_UnknownVersionIsNotFound(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	skill, err := m.getOrCreateSkill(ctx, "weather", "")
	if err != nil {
		t.Fatalf("getOrCreateSkill: %v", err)
	}
	if err := m.Rollback(ctx, skill.ID, 5); !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestDelete_RemovesStagingAndMirror(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	data := zipOf(t, map[string]string{"SKILL.md": sampleSkillMD})
	skill, err := m.UploadPackage(ctx, data, "weather", "")
	if err != nil {
		t.Fatalf("UploadPackage: %v", err)
	}
	if _, err := m.PublishDraft(ctx, skill.ID, ""); err != nil {
		t.Fatalf("PublishDraft: %v", err)
	}

	if err := m.Delete(ctx, skill.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(m.skillDir("weather")); !os.IsNotExist(err) {
		t.Errorf("staging dir still present: %v", err)
	}
	if _, err := os.Stat(m.mirrorDir("weather")); !os.IsNotExist(err) {
		t.Errorf("mirror dir still present: %v", err)
	}
	if _, err := m.repo.Get(ctx, skill.ID); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestRequireMutable_RejectsPluginSourcedSkill(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	skill, err := m.repo.Create(ctx, &store.Skill{
		Name:           "Bundled Linter",
		FolderName:     "bundled-linter",
		SourceType:     store.SkillSourcePlugin,
		SourcePluginID: "acme/linter",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	data := zipOf(t, map[string]string{"SKILL.md": sampleSkillMD})
	if _, err := m.UploadPackage(ctx, data, "bundled-linter", ""); !errs.Is(err, errs.KindPermissionDenied) {
		t.Errorf("UploadPackage err = %v, want PermissionDenied", err)
	}
	if err := m.DiscardDraft(ctx, skill.ID); !errs.Is(err, errs.KindPermissionDenied) {
		t.Errorf("DiscardDraft err = %v, want PermissionDenied", err)
	}
	if err := m.Rollback(ctx, skill.ID, 1); !errs.Is(err, errs.KindPermissionDenied) {
		t.Errorf("Rollback err = %v, want PermissionDenied", err)
	}
	if err := m.Delete(ctx, skill.ID); !errs.Is(err, errs.KindPermissionDenied) {
		t.Errorf("Delete err = %v, want PermissionDenied", err)
	}
	if _, err := m.PublishDraft(ctx, skill.ID, ""); !errs.Is(err, errs.KindPermissionDenied) {
		t.Errorf("PublishDraft err = %v, want PermissionDenied", err)
	}
}

func TestRefresh_AddsOrphanFolderAndFlagsMissing(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	writeLocalSkill(t, filepath.Join(m.mainSkillsDir, "orphan"), sampleSkillMD)

	tracked, err := m.repo.Create(ctx, &store.Skill{
		Name:       "Gone",
		FolderName: "gone",
		SourceType: store.SkillSourceUser,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := m.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(result.Added) != 1 || result.Added[0] != "orphan" {
		t.Errorf("Added = %v, want [orphan]", result.Added)
	}
	if len(result.Missing) != 1 || result.Missing[0] != tracked.ID {
		t.Errorf("Missing = %v, want [%s]", result.Missing, tracked.ID)
	}
}

func TestRefresh_NeverFlagsPluginSourcedSkillAsMissing(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.repo.Create(ctx, &store.Skill{
		Name:           "Bundled Linter",
		FolderName:     "bundled-linter",
		SourceType:     store.SkillSourcePlugin,
		SourcePluginID: "acme/linter",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := m.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(result.Missing) != 0 {
		t.Errorf("Missing = %v, want none (plugin-sourced skill must be ignored)", result.Missing)
	}
}
