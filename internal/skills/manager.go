// Package skills implements the skill version manager: a draft and
// numbered-versions content lifecycle, staged on disk and tracked in the
// repository.
package skills

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/errs"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// Manager owns the draft/version staging area and the local mirror the
// model agent actually reads from.
type Manager struct {
	storageRoot   string // {storageRoot}/{folderName}/{draft,v1,v2,...}
	mainSkillsDir string // local mirror of the currently published version
	repo          store.SkillRepository
	log           *slog.Logger
}

func New(storageRoot, mainSkillsDir string, repo store.SkillRepository, log *slog.Logger) *Manager {
	return &Manager{storageRoot: storageRoot, mainSkillsDir: mainSkillsDir, repo: repo, log: log}
}

func (m *Manager) skillDir(folderName string) string  { return filepath.Join(m.storageRoot, folderName) }
func (m *Manager) draftDir(folderName string) string  { return filepath.Join(m.skillDir(folderName), "draft") }
func (m *Manager) versionDir(folderName string, v int) string {
	return filepath.Join(m.skillDir(folderName), fmt.Sprintf("v%d", v))
}
func (m *Manager) mirrorDir(folderName string) string { return filepath.Join(m.mainSkillsDir, folderName) }

func (m *Manager) getOrCreateSkill(ctx context.Context, folderName, displayName string) (*store.Skill, error) {
	s, err := m.repo.GetByFolderName(ctx, folderName)
	if err == nil {
		return s, nil
	}
	if !errs.Is(err, errs.KindNotFound) {
		return nil, err
	}
	if displayName == "" {
		displayName = folderName
	}
	return m.repo.Create(ctx, &store.Skill{Name: displayName, FolderName: folderName, SourceType: store.SkillSourceUser})
}

// requireMutable rejects any operation against a plugin-sourced skill: those
// are owned by the plugin installer and never drafted/published/rolled back
// by the skill manager.
func requireMutable(s *store.Skill) error {
	if s.SourceType == store.SkillSourcePlugin {
		return errs.PermissionDenied("skill %s is plugin-sourced and cannot be modified by the skill manager", s.ID)
	}
	return nil
}

func (m *Manager) draftVersion(ctx context.Context, skillID string) (*store.SkillVersion, error) {
	versions, err := m.repo.ListVersions(ctx, skillID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.State == store.SkillVersionDraft {
			return v, nil
		}
	}
	return nil, errs.NotFound("no draft for skill %s", skillID)
}

// UploadPackage replaces a skill's draft with the contents of a ZIP
// archive. The archive must contain a file named SKILL.md; it is accepted
// at any depth, not only at the archive root.
func (m *Manager) UploadPackage(ctx context.Context, zipData []byte, folderName, displayName string) (*store.Skill, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, errs.InvalidInput("invalid zip package: %v", err)
	}
	if !zipContainsSkillMD(zr) {
		return nil, errs.InvalidInput("package does not contain SKILL.md")
	}

	skill, err := m.getOrCreateSkill(ctx, folderName, displayName)
	if err != nil {
		return nil, err
	}
	if err := requireMutable(skill); err != nil {
		return nil, err
	}

	draft := m.draftDir(folderName)
	if err := os.RemoveAll(draft); err != nil {
		return nil, fmt.Errorf("clear existing draft: %w", err)
	}
	if err := extractZip(zr, draft); err != nil {
		return nil, fmt.Errorf("extract package: %w", err)
	}

	if err := m.replaceDraftRecord(ctx, skill.ID, draft); err != nil {
		return nil, err
	}
	return skill, nil
}

// FinalizeFromLocal stages a draft from an existing local folder (e.g. one
// edited directly on disk), creating the skill record if it doesn't exist.
func (m *Manager) FinalizeFromLocal(ctx context.Context, folderPath, folderName, displayName string) (*store.Skill, error) {
	if !hasSkillMD(folderPath) {
		return nil, errs.InvalidInput("folder %s has no SKILL.md", folderPath)
	}
	skill, err := m.getOrCreateSkill(ctx, folderName, displayName)
	if err != nil {
		return nil, err
	}
	if err := requireMutable(skill); err != nil {
		return nil, err
	}

	draft := m.draftDir(folderName)
	if err := os.RemoveAll(draft); err != nil {
		return nil, fmt.Errorf("clear existing draft: %w", err)
	}
	if err := copyDir(folderPath, draft); err != nil {
		return nil, fmt.Errorf("stage draft from local folder: %w", err)
	}

	if err := m.replaceDraftRecord(ctx, skill.ID, draft); err != nil {
		return nil, err
	}
	return skill, nil
}

// replaceDraftRecord deletes any existing draft version row and creates a
// fresh one pointing at contentPath, with metadata extracted from SKILL.md.
func (m *Manager) replaceDraftRecord(ctx context.Context, skillID, contentPath string) error {
	if existing, err := m.draftVersion(ctx, skillID); err == nil {
		if err := m.repo.DeleteVersion(ctx, existing.ID); err != nil {
			return err
		}
	}
	meta := ExtractMetadata(contentPath)
	_, err := m.repo.CreateVersion(ctx, &store.SkillVersion{
		SkillID:     skillID,
		Version:     0,
		State:       store.SkillVersionDraft,
		ContentPath: contentPath,
		Description: meta.Description,
		Metadata:    map[string]string{"name": meta.Name, "version": meta.Version},
	})
	return err
}

// PublishDraft promotes skill_id's draft to a new immutable numbered
// version, replacing the local mirror the model agent reads from.
func (m *Manager) PublishDraft(ctx context.Context, skillID, summary string) (*store.SkillVersion, error) {
	skill, err := m.repo.Get(ctx, skillID)
	if err != nil {
		return nil, err
	}
	if err := requireMutable(skill); err != nil {
		return nil, err
	}
	draft, err := m.draftVersion(ctx, skillID)
	if err != nil {
		return nil, errs.Conflict("skill %s has no draft to publish", skillID)
	}

	newVersion := skill.PublishedVersion + 1
	versionDir := m.versionDir(skill.FolderName, newVersion)
	if err := os.RemoveAll(versionDir); err != nil {
		return nil, fmt.Errorf("clear version dir: %w", err)
	}
	if err := copyDir(draft.ContentPath, versionDir); err != nil {
		return nil, fmt.Errorf("stage published version: %w", err)
	}

	desc := draft.Description
	if summary != "" {
		desc = summary
	}
	published, err := m.repo.CreateVersion(ctx, &store.SkillVersion{
		SkillID:     skillID,
		Version:     newVersion,
		State:       store.SkillVersionPublished,
		ContentPath: versionDir,
		Description: desc,
		Metadata:    draft.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if err := m.repo.DeleteVersion(ctx, draft.ID); err != nil {
		return nil, err
	}
	if _, err := m.repo.Update(ctx, skillID, map[string]any{"published_version": newVersion}); err != nil {
		return nil, err
	}
	if err := m.mirror(skill.FolderName, versionDir); err != nil {
		return nil, fmt.Errorf("mirror published version: %w", err)
	}
	return published, nil
}

// DiscardDraft deletes skill_id's pending draft without publishing it.
func (m *Manager) DiscardDraft(ctx context.Context, skillID string) error {
	skill, err := m.repo.Get(ctx, skillID)
	if err != nil {
		return err
	}
	if err := requireMutable(skill); err != nil {
		return err
	}
	draft, err := m.draftVersion(ctx, skillID)
	if err != nil {
		return errs.Conflict("skill %s has no draft to discard", skillID)
	}
	if err := os.RemoveAll(draft.ContentPath); err != nil {
		return fmt.Errorf("remove draft content: %w", err)
	}
	return m.repo.DeleteVersion(ctx, draft.ID)
}

// Rollback discards any draft and makes version v the skill's local mirror
// and current_version again. Version v's own row is untouched — it was
// already immutable.
func (m *Manager) Rollback(ctx context.Context, skillID string, v int) error {
	skill, err := m.repo.Get(ctx, skillID)
	if err != nil {
		return err
	}
	if err := requireMutable(skill); err != nil {
		return err
	}
	target, err := m.repo.GetVersion(ctx, skillID, v)
	if err != nil {
		return errs.NotFound("skill %s has no version %d", skillID, v)
	}

	if draft, err := m.draftVersion(ctx, skillID); err == nil {
		os.RemoveAll(draft.ContentPath)
		if err := m.repo.DeleteVersion(ctx, draft.ID); err != nil {
			return err
		}
	}

	if _, err := m.repo.Update(ctx, skillID, map[string]any{"published_version": v}); err != nil {
		return err
	}
	return m.mirror(skill.FolderName, target.ContentPath)
}

// Delete removes a skill entirely: draft, all versions, and the local
// mirror. The repository cascades version rows.
func (m *Manager) Delete(ctx context.Context, skillID string) error {
	skill, err := m.repo.Get(ctx, skillID)
	if err != nil {
		return err
	}
	if err := requireMutable(skill); err != nil {
		return err
	}
	if err := os.RemoveAll(m.skillDir(skill.FolderName)); err != nil {
		return fmt.Errorf("remove skill staging dir: %w", err)
	}
	if err := os.RemoveAll(m.mirrorDir(skill.FolderName)); err != nil {
		return fmt.Errorf("remove skill local mirror: %w", err)
	}
	return m.repo.Delete(ctx, skillID)
}

// mirror replaces the local folder the model agent loads skills from with
// a fresh copy of src.
func (m *Manager) mirror(folderName, src string) error {
	dst := m.mirrorDir(folderName)
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return copyDir(src, dst)
}

func zipContainsSkillMD(zr *zip.Reader) bool {
	for _, f := range zr.File {
		if filepath.Base(f.Name) == "SKILL.md" && !f.FileInfo().IsDir() {
			return true
		}
	}
	return false
}

func extractZip(zr *zip.Reader, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	for _, f := range zr.File {
		target := filepath.Join(dest, f.Name)
		if !isWithinDir(target, dest) {
			return fmt.Errorf("zip entry %q escapes destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func isWithinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

func hasSkillMD(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "SKILL.md"))
	return err == nil
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
