// Package postgres implements store.Driver over PostgreSQL, following the
// teacher's sql.DB-and-raw-query style (store/db/postgres/agent_stats.go):
// $N placeholders, RETURNING clauses for writes, fmt.Errorf wrapping.
package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	_ "github.com/lib/pq"

	"github.com/hrygo/taskgraph/internal/profile"
	"github.com/hrygo/taskgraph/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL connection pool and ensures the schema exists.
func NewDB(ctx context.Context, profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	sqlDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	d := &DB{db: sqlDB, profile: profile}
	if err := d.migrate(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to migrate schema")
	}
	return d, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = 'tasks')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id SERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	notification_preferences JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS projects (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS project_roles (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	create_tasks BOOLEAN NOT NULL DEFAULT FALSE,
	edit_any_task BOOLEAN NOT NULL DEFAULT FALSE,
	delete_any_task BOOLEAN NOT NULL DEFAULT FALSE,
	edit_own_task BOOLEAN NOT NULL DEFAULT FALSE,
	delete_own_task BOOLEAN NOT NULL DEFAULT FALSE,
	create_dependencies BOOLEAN NOT NULL DEFAULT FALSE,
	delete_dependencies BOOLEAN NOT NULL DEFAULT FALSE,
	manage_members BOOLEAN NOT NULL DEFAULT FALSE,
	edit_project BOOLEAN NOT NULL DEFAULT FALSE,
	delete_project BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS project_members (
	id BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id),
	user_id INTEGER NOT NULL REFERENCES users(id),
	role_id BIGINT NOT NULL REFERENCES project_roles(id),
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (project_id, user_id)
);

CREATE TABLE IF NOT EXISTS task_statuses (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	"order" INTEGER NOT NULL DEFAULT 0,
	is_final BOOLEAN NOT NULL DEFAULT FALSE,
	is_blocking BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS tasks (
	id BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id),
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status_id BIGINT NOT NULL REFERENCES task_statuses(id),
	assignee_id INTEGER REFERENCES users(id),
	creator_id INTEGER NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	deadline TIMESTAMPTZ,
	priority SMALLINT NOT NULL DEFAULT 0,
	position_x DOUBLE PRECISION NOT NULL DEFAULT 0,
	position_y DOUBLE PRECISION NOT NULL DEFAULT 0,
	metadata BYTEA
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);

CREATE TABLE IF NOT EXISTS dependencies (
	id BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id),
	source_task_id BIGINT NOT NULL REFERENCES tasks(id),
	target_task_id BIGINT NOT NULL REFERENCES tasks(id),
	dependency_type TEXT NOT NULL DEFAULT 'simple',
	description TEXT NOT NULL DEFAULT '',
	created_by INTEGER NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (source_task_id, target_task_id)
);
CREATE INDEX IF NOT EXISTS idx_dependencies_project ON dependencies(project_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_source ON dependencies(source_task_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_target ON dependencies(target_task_id);

CREATE TABLE IF NOT EXISTS dependency_action_types (
	name TEXT PRIMARY KEY,
	requires_target_user BOOLEAN NOT NULL DEFAULT FALSE,
	requires_template BOOLEAN NOT NULL DEFAULT FALSE,
	supports_delay BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS dependency_actions (
	id BIGSERIAL PRIMARY KEY,
	dependency_id BIGINT NOT NULL REFERENCES dependencies(id),
	action_type TEXT NOT NULL REFERENCES dependency_action_types(name),
	target_user_id INTEGER REFERENCES users(id),
	target_status_id BIGINT REFERENCES task_statuses(id),
	message_template TEXT,
	delay_minutes INTEGER NOT NULL DEFAULT 0,
	execute_order INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_dependency_actions_dependency ON dependency_actions(dependency_id);

CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id),
	task_id BIGINT REFERENCES tasks(id),
	user_id INTEGER REFERENCES users(id),
	event_type TEXT NOT NULL,
	old_value TEXT,
	new_value TEXT,
	metadata BYTEA,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id);
CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id);

CREATE TABLE IF NOT EXISTS scheduled_actions (
	id BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id),
	task_id BIGINT REFERENCES tasks(id),
	action_type TEXT NOT NULL,
	scheduled_for TIMESTAMPTZ NOT NULL,
	executed_at TIMESTAMPTZ,
	payload BYTEA,
	dependency_action_id BIGINT REFERENCES dependency_actions(id),
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_scheduled_actions_due ON scheduled_actions(status, scheduled_for);

INSERT INTO project_roles (name, create_tasks, edit_any_task, delete_any_task, edit_own_task, delete_own_task, create_dependencies, delete_dependencies, manage_members, edit_project, delete_project)
VALUES
	('owner', TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE),
	('manager', TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, TRUE, FALSE),
	('developer', FALSE, FALSE, FALSE, TRUE, TRUE, TRUE, FALSE, FALSE, FALSE, FALSE),
	('observer', FALSE, FALSE, FALSE, FALSE, FALSE, FALSE, FALSE, FALSE, FALSE, FALSE)
ON CONFLICT (name) DO NOTHING;

INSERT INTO task_statuses (name, display_name, color, "order", is_final, is_blocking)
VALUES
	('todo', 'To Do', '#94a3b8', 0, FALSE, FALSE),
	('in_progress', 'In Progress', '#3b82f6', 1, FALSE, FALSE),
	('review', 'Review', '#f59e0b', 2, FALSE, FALSE),
	('completed', 'Completed', '#22c55e', 3, TRUE, FALSE),
	('blocked', 'Blocked', '#ef4444', 4, FALSE, TRUE)
ON CONFLICT (name) DO NOTHING;

INSERT INTO dependency_action_types (name, requires_target_user, requires_template, supports_delay)
VALUES
	('notify_assignee', FALSE, TRUE, TRUE),
	('notify_creator', FALSE, TRUE, TRUE),
	('notify_custom', TRUE, TRUE, TRUE),
	('change_status', FALSE, FALSE, TRUE),
	('create_subtask', FALSE, TRUE, FALSE)
ON CONFLICT (name) DO NOTHING;
`

func (d *DB) migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return err
}
