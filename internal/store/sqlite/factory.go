package sqlite

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// NewRepository opens a sqlite-backed store.Repository at dsn.
func NewRepository(ctx context.Context, dsn string) (*store.Repository, error) {
	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	return &store.Repository{
		Agents:      NewAgentStore(db),
		Skills:      NewSkillStore(db),
		Sessions:    NewSessionStore(db),
		Permissions: NewPermissionStore(db),
		Plugins:     NewPluginStore(db),
	}, nil
}
