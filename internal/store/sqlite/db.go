// Package sqlite is the embedded relational repository backend, the "local
// embedded relational store" alternative to Postgres: a pure-Go SQLite
// driver so the supervisor runs without any external database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	permission_mode TEXT NOT NULL DEFAULT 'default',
	allow_all_skills INTEGER NOT NULL DEFAULT 0,
	skill_ids TEXT NOT NULL DEFAULT '[]',
	plugin_ids TEXT NOT NULL DEFAULT '[]',
	mcp_server_ids TEXT NOT NULL DEFAULT '[]',
	tool_policy TEXT NOT NULL DEFAULT '',
	global_user_mode INTEGER NOT NULL DEFAULT 0,
	enable_human_approval INTEGER NOT NULL DEFAULT 0,
	file_access_control INTEGER NOT NULL DEFAULT 0,
	allowed_directories TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS skills (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	folder_name TEXT NOT NULL UNIQUE,
	source_type TEXT NOT NULL DEFAULT 'user',
	source_plugin_id TEXT NOT NULL DEFAULT '',
	local_path TEXT NOT NULL DEFAULT '',
	published_version INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS skill_versions (
	id TEXT PRIMARY KEY,
	skill_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	state TEXT NOT NULL,
	content_path TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(skill_id, version)
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	key TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	archived INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(agent_id, key)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tool_calls TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS permission_requests (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	tool_input TEXT NOT NULL DEFAULT '{}',
	reason TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	feedback TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS marketplaces (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL DEFAULT 'git',
	owner TEXT NOT NULL,
	repo TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	branch TEXT NOT NULL DEFAULT '',
	cache_path TEXT NOT NULL DEFAULT '',
	cached_plugins TEXT NOT NULL DEFAULT '[]',
	last_synced_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(owner, repo)
);

CREATE TABLE IF NOT EXISTS plugins (
	id TEXT PRIMARY KEY,
	marketplace_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	version TEXT NOT NULL DEFAULT '',
	skills TEXT NOT NULL DEFAULT '[]',
	commands TEXT NOT NULL DEFAULT '[]',
	agents TEXT NOT NULL DEFAULT '[]',
	hooks TEXT NOT NULL DEFAULT '[]',
	mcp_servers TEXT NOT NULL DEFAULT '[]',
	install_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'installed',
	owner TEXT NOT NULL DEFAULT '',
	repo TEXT NOT NULL DEFAULT '',
	ref TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(marketplace_id, name)
);
`

// Open opens (creating if necessary) a sqlite-backed database at dsn and
// applies the schema. dsn may be a file path or ":memory:".
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite does not support concurrent writers
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
