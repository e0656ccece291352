package skills

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// SyncResult reports what Refresh found reconciling the local user-skills
// directory against the database.
type SyncResult struct {
	Added   []string // folder names newly recorded as skills
	Missing []string // skill ids whose local folder no longer exists
}

// Refresh reconciles the user-created skills directory with the
// repository: orphan folders (containing SKILL.md, with no matching skill
// record) are added as new skill records; skill records whose folder is
// missing are flagged in Missing. Plugin-sourced skills are never touched —
// only the local mirror directory is scanned.
func (m *Manager) Refresh(ctx context.Context) (SyncResult, error) {
	var result SyncResult

	existing, err := m.repo.List(ctx, store.ListOpts{Limit: 100000})
	if err != nil {
		return result, err
	}
	byFolder := make(map[string]*store.Skill, len(existing))
	for _, s := range existing {
		byFolder[s.FolderName] = s
	}

	entries, err := os.ReadDir(m.mainSkillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return result, err
		}
	}
	onDisk := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(m.mainSkillsDir, e.Name())
		if !hasSkillMD(dir) {
			continue
		}
		onDisk[e.Name()] = true

		if _, ok := byFolder[e.Name()]; !ok {
			meta := ExtractMetadata(dir)
			name := meta.Name
			if name == "" {
				name = e.Name()
			}
			if _, err := m.repo.Create(ctx, &store.Skill{Name: name, FolderName: e.Name(), SourceType: store.SkillSourceUser}); err != nil {
				return result, err
			}
			result.Added = append(result.Added, e.Name())
		}
	}

	for folder, s := range byFolder {
		if s.SourceType != store.SkillSourceUser {
			// Plugin- and local-sourced skills live outside the user-skills
			// directory entirely; refresh never touches their records.
			continue
		}
		if !onDisk[folder] {
			result.Missing = append(result.Missing, s.ID)
		}
	}

	return result, nil
}
