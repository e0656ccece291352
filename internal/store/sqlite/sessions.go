package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/errs"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// SessionStore is read-through/write-through cached over the sqlite table,
// the same pattern the teacher's PGSessionStore uses for its hot path.
type SessionStore struct {
	db    *sql.DB
	mu    sync.RWMutex
	cache map[string]*store.Session
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, cache: make(map[string]*store.Session)}
}

const sessionCols = `id, agent_id, key, title, archived, created_at, updated_at`

// Create inserts sess. The model agent assigns session ids (spec.md §3's
// "orchestrator must not fabricate one"); a caller-supplied sess.ID is kept
// as-is, and one is generated only when sess.ID is empty.
func (s *SessionStore) Create(ctx context.Context, sess *store.Session) (*store.Session, error) {
	now := time.Now().UTC()
	if sess.ID == "" {
		sess.ID = uuid.Must(uuid.NewV7()).String()
	}
	sess.CreatedAt, sess.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_id, key, title, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.AgentID, sess.Key, sess.Title, sess.Archived, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	s.mu.Lock()
	s.cache[sess.ID] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*store.Session, error) {
	s.mu.RLock()
	if c, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id=?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[id] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *SessionStore) GetByKey(ctx context.Context, agentID, key string) (*store.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE agent_id=? AND key=?`, agentID, key)
	sess, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[sess.ID] = sess
	s.mu.Unlock()
	return sess, nil
}

func scanSession(row *sql.Row) (*store.Session, error) {
	var sess store.Session
	if err := row.Scan(&sess.ID, &sess.AgentID, &sess.Key, &sess.Title, &sess.Archived, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("session not found")
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Update(ctx context.Context, id string, patch map[string]any) (*store.Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := patch["title"].(string); ok {
		sess.Title = v
	}
	if v, ok := patch["archived"].(bool); ok {
		sess.Archived = v
	}
	sess.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE sessions SET title=?, archived=?, updated_at=? WHERE id=?`,
		sess.Title, sess.Archived, sess.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	s.mu.Lock()
	s.cache[id] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("session not found")
	}
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id=?`, id)
	return err
}

func (s *SessionStore) List(ctx context.Context, agentID string, opts store.ListOpts) ([]*store.Session, error) {
	order := "ASC"
	if opts.Newest {
		order = "DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE agent_id=? ORDER BY created_at `+order+` LIMIT ? OFFSET ?`,
		agentID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*store.Session
	for rows.Next() {
		var sess store.Session
		if err := rows.Scan(&sess.ID, &sess.AgentID, &sess.Key, &sess.Title, &sess.Archived, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *SessionStore) AppendMessage(ctx context.Context, m *store.Message) (*store.Message, error) {
	now := time.Now().UTC()
	m.ID = uuid.Must(uuid.NewV7()).String()
	m.CreatedAt, m.UpdatedAt = now, now
	toolCalls, _ := json.Marshal(m.ToolCalls)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, tool_calls, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Role, m.Content, string(toolCalls), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

func (s *SessionStore) ListMessages(ctx context.Context, sessionID string, opts store.ListOpts) ([]*store.Message, error) {
	order := "ASC"
	if opts.Newest {
		order = "DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, tool_calls, created_at, updated_at
		FROM messages WHERE session_id=? ORDER BY created_at `+order+` LIMIT ? OFFSET ?`,
		sessionID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []*store.Message
	for rows.Next() {
		var m store.Message
		var toolCalls string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &toolCalls, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		json.Unmarshal([]byte(toolCalls), &m.ToolCalls)
		out = append(out, &m)
	}
	return out, rows.Err()
}
