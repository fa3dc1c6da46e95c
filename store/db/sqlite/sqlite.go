// Package sqlite implements store.Driver over SQLite using the pure-Go
// modernc.org/sqlite driver (no cgo), following the teacher's
// store/db/sqlite/sqlite.go connection-setup shape: pragma configuration,
// a tuned connection pool, and an IsInitialized probe.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"

	"github.com/hrygo/taskgraph/internal/profile"
	"github.com/hrygo/taskgraph/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a SQLite database file and ensures the schema exists.
func NewDB(ctx context.Context, profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	sqliteDB, err := sql.Open("sqlite", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
	}
	for _, pragma := range pragmas {
		if _, err := sqliteDB.Exec(pragma); err != nil {
			return nil, errors.Wrapf(err, "failed to set pragma: %s", pragma)
		}
	}

	// A single writer connection avoids SQLITE_BUSY under WAL; the scheduler's
	// claim transaction already serializes itself against other writers.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	d := &DB{db: sqliteDB, profile: profile}
	if err := d.migrate(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to migrate schema")
	}
	return d, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type='table' AND name='tasks')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	is_active INTEGER NOT NULL DEFAULT 1,
	notification_preferences TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS project_roles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	create_tasks INTEGER NOT NULL DEFAULT 0,
	edit_any_task INTEGER NOT NULL DEFAULT 0,
	delete_any_task INTEGER NOT NULL DEFAULT 0,
	edit_own_task INTEGER NOT NULL DEFAULT 0,
	delete_own_task INTEGER NOT NULL DEFAULT 0,
	create_dependencies INTEGER NOT NULL DEFAULT 0,
	delete_dependencies INTEGER NOT NULL DEFAULT 0,
	manage_members INTEGER NOT NULL DEFAULT 0,
	edit_project INTEGER NOT NULL DEFAULT 0,
	delete_project INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS project_members (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	user_id INTEGER NOT NULL REFERENCES users(id),
	role_id INTEGER NOT NULL REFERENCES project_roles(id),
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (project_id, user_id)
);

CREATE TABLE IF NOT EXISTS task_statuses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	"order" INTEGER NOT NULL DEFAULT 0,
	is_final INTEGER NOT NULL DEFAULT 0,
	is_blocking INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status_id INTEGER NOT NULL REFERENCES task_statuses(id),
	assignee_id INTEGER REFERENCES users(id),
	creator_id INTEGER NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	started_at DATETIME,
	completed_at DATETIME,
	deadline DATETIME,
	priority INTEGER NOT NULL DEFAULT 0,
	position_x REAL NOT NULL DEFAULT 0,
	position_y REAL NOT NULL DEFAULT 0,
	metadata BLOB
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);

CREATE TABLE IF NOT EXISTS dependencies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	source_task_id INTEGER NOT NULL REFERENCES tasks(id),
	target_task_id INTEGER NOT NULL REFERENCES tasks(id),
	dependency_type TEXT NOT NULL DEFAULT 'simple',
	description TEXT NOT NULL DEFAULT '',
	created_by INTEGER NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (source_task_id, target_task_id)
);
CREATE INDEX IF NOT EXISTS idx_dependencies_project ON dependencies(project_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_source ON dependencies(source_task_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_target ON dependencies(target_task_id);

CREATE TABLE IF NOT EXISTS dependency_action_types (
	name TEXT PRIMARY KEY,
	requires_target_user INTEGER NOT NULL DEFAULT 0,
	requires_template INTEGER NOT NULL DEFAULT 0,
	supports_delay INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dependency_actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	dependency_id INTEGER NOT NULL REFERENCES dependencies(id),
	action_type TEXT NOT NULL REFERENCES dependency_action_types(name),
	target_user_id INTEGER REFERENCES users(id),
	target_status_id INTEGER REFERENCES task_statuses(id),
	message_template TEXT,
	delay_minutes INTEGER NOT NULL DEFAULT 0,
	execute_order INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_dependency_actions_dependency ON dependency_actions(dependency_id);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	task_id INTEGER REFERENCES tasks(id),
	user_id INTEGER REFERENCES users(id),
	event_type TEXT NOT NULL,
	old_value TEXT,
	new_value TEXT,
	metadata BLOB,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id);
CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id);

CREATE TABLE IF NOT EXISTS scheduled_actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	task_id INTEGER REFERENCES tasks(id),
	action_type TEXT NOT NULL,
	scheduled_for DATETIME NOT NULL,
	executed_at DATETIME,
	payload BLOB,
	dependency_action_id INTEGER REFERENCES dependency_actions(id),
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_scheduled_actions_due ON scheduled_actions(status, scheduled_for);
`

const seedSQL = `
INSERT OR IGNORE INTO project_roles (name, create_tasks, edit_any_task, delete_any_task, edit_own_task, delete_own_task, create_dependencies, delete_dependencies, manage_members, edit_project, delete_project)
VALUES
	('owner', 1, 1, 1, 1, 1, 1, 1, 1, 1, 1),
	('manager', 1, 1, 1, 1, 1, 1, 1, 1, 1, 0),
	('developer', 0, 0, 0, 1, 1, 1, 0, 0, 0, 0),
	('observer', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0);

INSERT OR IGNORE INTO task_statuses (name, display_name, color, "order", is_final, is_blocking)
VALUES
	('todo', 'To Do', '#94a3b8', 0, 0, 0),
	('in_progress', 'In Progress', '#3b82f6', 1, 0, 0),
	('review', 'Review', '#f59e0b', 2, 0, 0),
	('completed', 'Completed', '#22c55e', 3, 1, 0),
	('blocked', 'Blocked', '#ef4444', 4, 0, 1);

INSERT OR IGNORE INTO dependency_action_types (name, requires_target_user, requires_template, supports_delay)
VALUES
	('notify_assignee', 0, 1, 1),
	('notify_creator', 0, 1, 1),
	('notify_custom', 1, 1, 1),
	('change_status', 0, 0, 1),
	('create_subtask', 0, 1, 0);
`

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, seedSQL)
	return err
}
