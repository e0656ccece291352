package pg

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// NewRepository opens a Postgres-backed store.Repository at dsn, applying
// migrations on first connect.
func NewRepository(ctx context.Context, dsn string) (*store.Repository, error) {
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres repository: %w", err)
	}
	return &store.Repository{
		Agents:      NewAgentStore(db),
		Skills:      NewSkillStore(db),
		Sessions:    NewSessionStore(db),
		Permissions: NewPermissionStore(db),
		Plugins:     NewPluginStore(db),
	}, nil
}
