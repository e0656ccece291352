package sqlite

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

type SkillStore struct {
	db *sql.DB
}

func NewSkillStore(db *sql.DB) *SkillStore { return &SkillStore{db: db} }

func (s *SkillStore) Create(ctx context.Context, sk *store.Skill) (*store.Skill, error) {
	now := time.Now().UTC()
	sk.ID = uuid.Must(uuid.NewV7()).String()
	sk.CreatedAt, sk.UpdatedAt = now, now
	if sk.SourceType == "" {
		sk.SourceType = store.SkillSourceUser
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skills (id, name, folder_name, source_type, source_plugin_id, local_path, published_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sk.ID, sk.Name, sk.FolderName, sk.SourceType, sk.SourcePluginID, sk.LocalPath, sk.PublishedVersion, sk.CreatedAt, sk.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert skill: %w", err)
	}
	return sk, nil
}

func scanSkill(row *sql.Row) (*store.Skill, error) {
	var sk store.Skill
	if err := row.Scan(&sk.ID, &sk.Name, &sk.FolderName, &sk.SourceType, &sk.SourcePluginID, &sk.LocalPath, &sk.PublishedVersion, &sk.CreatedAt, &sk.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("skill not found")
		}
		return nil, fmt.Errorf("scan skill: %w", err)
	}
	return &sk, nil
}

const skillCols = `id, name, folder_name, source_type, source_plugin_id, local_path, published_version, created_at, updated_at`

func (s *SkillStore) Get(ctx context.Context, id string) (*store.Skill, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+skillCols+` FROM skills WHERE id = ?`, id)
	return scanSkill(row)
}

func (s *SkillStore) GetByFolderName(ctx context.Context, folderName string) (*store.Skill, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+skillCols+` FROM skills WHERE folder_name = ?`, folderName)
	return scanSkill(row)
}

func (s *SkillStore) Update(ctx context.Context, id string, patch map[string]any) (*store.Skill, error) {
	sk, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := patch["name"].(string); ok {
		sk.Name = v
	}
	if v, ok := patch["local_path"].(string); ok {
		sk.LocalPath = v
	}
	if v, ok := patch["published_version"].(int); ok {
		sk.PublishedVersion = v
	}
	sk.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE skills SET name=?, local_path=?, published_version=?, updated_at=? WHERE id=?`,
		sk.Name, sk.LocalPath, sk.PublishedVersion, sk.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update skill: %w", err)
	}
	return sk, nil
}

func (s *SkillStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete skill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("skill not found")
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM skill_versions WHERE skill_id = ?`, id)
	return err
}

func (s *SkillStore) List(ctx context.Context, opts store.ListOpts) ([]*store.Skill, error) {
	order := "ASC"
	if opts.Newest {
		order = "DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+skillCols+` FROM skills ORDER BY created_at `+order+` LIMIT ? OFFSET ?`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()
	var out []*store.Skill
	for rows.Next() {
		var sk store.Skill
		if err := rows.Scan(&sk.ID, &sk.Name, &sk.FolderName, &sk.SourceType, &sk.SourcePluginID, &sk.LocalPath, &sk.PublishedVersion, &sk.CreatedAt, &sk.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan skill row: %w", err)
		}
		out = append(out, &sk)
	}
	return out, rows.Err()
}

func (s *SkillStore) CreateVersion(ctx context.Context, v *store.SkillVersion) (*store.SkillVersion, error) {
	now := time.Now().UTC()
	v.ID = uuid.Must(uuid.NewV7()).String()
	v.CreatedAt, v.UpdatedAt = now, now
	meta, _ := json.Marshal(v.Metadata)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skill_versions (id, skill_id, version, state, content_path, description, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SkillID, v.Version, v.State, v.ContentPath, v.Description, string(meta), v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert skill version (skill=%s version=%d): %w", v.SkillID, v.Version, err)
	}
	return v, nil
}

func scanVersion(row *sql.Row) (*store.SkillVersion, error) {
	var v store.SkillVersion
	var meta string
	if err := row.Scan(&v.ID, &v.SkillID, &v.Version, &v.State, &v.ContentPath, &v.Description, &meta, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("skill version not found")
		}
		return nil, fmt.Errorf("scan skill version: %w", err)
	}
	json.Unmarshal([]byte(meta), &v.Metadata)
	return &v, nil
}

const versionCols = `id, skill_id, version, state, content_path, description, metadata, created_at, updated_at`

func (s *SkillStore) GetVersion(ctx context.Context, skillID string, version int) (*store.SkillVersion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+versionCols+` FROM skill_versions WHERE skill_id=? AND version=?`, skillID, version)
	return scanVersion(row)
}

func (s *SkillStore) ListVersions(ctx context.Context, skillID string) ([]*store.SkillVersion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+versionCols+` FROM skill_versions WHERE skill_id=? ORDER BY version DESC`, skillID)
	if err != nil {
		return nil, fmt.Errorf("list skill versions: %w", err)
	}
	defer rows.Close()
	var out []*store.SkillVersion
	for rows.Next() {
		var v store.SkillVersion
		var meta string
		if err := rows.Scan(&v.ID, &v.SkillID, &v.Version, &v.State, &v.ContentPath, &v.Description, &meta, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan skill version row: %w", err)
		}
		json.Unmarshal([]byte(meta), &v.Metadata)
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (s *SkillStore) UpdateVersion(ctx context.Context, id string, patch map[string]any) (*store.SkillVersion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+versionCols+` FROM skill_versions WHERE id=?`, id)
	v, err := scanVersion(row)
	if err != nil {
		return nil, err
	}
	if st, ok := patch["state"].(store.SkillVersionState); ok {
		v.State = st
	}
	if d, ok := patch["description"].(string); ok {
		v.Description = d
	}
	v.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE skill_versions SET state=?, description=?, updated_at=? WHERE id=?`,
		v.State, v.Description, v.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update skill version: %w", err)
	}
	return v, nil
}

func (s *SkillStore) DeleteVersion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM skill_versions WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete skill version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("skill version not found")
	}
	return nil
}
