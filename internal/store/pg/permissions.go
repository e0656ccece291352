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

type PermissionStore struct {
	db *sql.DB
}

func NewPermissionStore(db *sql.DB) *PermissionStore { return &PermissionStore{db: db} }

const permCols = `id, session_id, tool_name, tool_input, reason, state, feedback, created_at, updated_at`

func (s *PermissionStore) Create(ctx context.Context, p *store.PermissionRequest) (*store.PermissionRequest, error) {
	now := time.Now().UTC()
	p.ID = uuid.Must(uuid.NewV7()).String()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.State == "" {
		p.State = store.PermissionPending
	}
	toolInput, _ := json.Marshal(p.ToolInput)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permission_requests (id, session_id, tool_name, tool_input, reason, state, feedback, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.SessionID, p.ToolName, string(toolInput), p.Reason, p.State, p.Feedback, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert permission request: %w", err)
	}
	return p, nil
}

func scanPermission(row *sql.Row) (*store.PermissionRequest, error) {
	var p store.PermissionRequest
	var toolInput []byte
	if err := row.Scan(&p.ID, &p.SessionID, &p.ToolName, &toolInput, &p.Reason, &p.State, &p.Feedback, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("permission request not found")
		}
		return nil, fmt.Errorf("scan permission request: %w", err)
	}
	json.Unmarshal(toolInput, &p.ToolInput)
	return &p, nil
}

func (s *PermissionStore) Get(ctx context.Context, id string) (*store.PermissionRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+permCols+` FROM permission_requests WHERE id=$1`, id)
	return scanPermission(row)
}

func (s *PermissionStore) Update(ctx context.Context, id string, patch map[string]any) (*store.PermissionRequest, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if st, ok := patch["state"].(store.PermissionRequestState); ok {
		p.State = st
	}
	if fb, ok := patch["feedback"].(string); ok {
		p.Feedback = fb
	}
	p.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE permission_requests SET state=$1, feedback=$2, updated_at=$3 WHERE id=$4`,
		p.State, p.Feedback, p.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update permission request: %w", err)
	}
	return p, nil
}

func (s *PermissionStore) ListPending(ctx context.Context, sessionID string) ([]*store.PermissionRequest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+permCols+` FROM permission_requests WHERE session_id=$1 AND state=$2 ORDER BY created_at ASC`,
		sessionID, store.PermissionPending)
	if err != nil {
		return nil, fmt.Errorf("list pending permission requests: %w", err)
	}
	defer rows.Close()
	var out []*store.PermissionRequest
	for rows.Next() {
		var p store.PermissionRequest
		var toolInput []byte
		if err := rows.Scan(&p.ID, &p.SessionID, &p.ToolName, &toolInput, &p.Reason, &p.State, &p.Feedback, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan permission request row: %w", err)
		}
		json.Unmarshal(toolInput, &p.ToolInput)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeleteExpired marks pending requests older than ttlSeconds as expired
// and returns how many it marked. Only permission requests are touched;
// messages are not.
func (s *PermissionStore) DeleteExpired(ctx context.Context, ttlSeconds int64) (int, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(ttlSeconds) * time.Second)
	res, err := s.db.ExecContext(ctx, `
		UPDATE permission_requests SET state=$1, updated_at=$2
		WHERE state=$3 AND created_at < $4`,
		store.PermissionExpired, time.Now().UTC(), store.PermissionPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire permission requests: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
