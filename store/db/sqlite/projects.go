package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrygo/taskgraph/store"
)

func (d *DB) CreateProject(ctx context.Context, name string) (*store.Project, error) {
	p := &store.Project{Name: name, Status: store.ProjectStatusActive}
	err := d.db.QueryRowContext(ctx,
		`INSERT INTO projects (name, status) VALUES (?, ?) RETURNING id, created_at, updated_at`,
		name, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

func (d *DB) GetProject(ctx context.Context, id int64) (*store.Project, error) {
	var p store.Project
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("project %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

func (d *DB) UpdateProjectStatus(ctx context.Context, id int64, status store.ProjectStatus) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	return nil
}

func scanRole(row interface{ Scan(...any) error }) (*store.ProjectRole, error) {
	var r store.ProjectRole
	err := row.Scan(&r.ID, &r.Name, &r.CreateTasks, &r.EditAnyTask, &r.DeleteAnyTask,
		&r.EditOwnTask, &r.DeleteOwnTask, &r.CreateDependencies, &r.DeleteDependencies,
		&r.ManageMembers, &r.EditProject, &r.DeleteProject)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const roleColumns = `id, name, create_tasks, edit_any_task, delete_any_task, edit_own_task, delete_own_task, create_dependencies, delete_dependencies, manage_members, edit_project, delete_project`

func (d *DB) GetRole(ctx context.Context, id int64) (*store.ProjectRole, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM project_roles WHERE id = ?`, id)
	r, err := scanRole(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return r, nil
}

func (d *DB) GetRoleByName(ctx context.Context, name string) (*store.ProjectRole, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM project_roles WHERE name = ?`, name)
	r, err := scanRole(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get role %q: %w", name, err)
	}
	return r, nil
}

func (d *DB) CreateMember(ctx context.Context, m *store.ProjectMember) (*store.ProjectMember, error) {
	err := d.db.QueryRowContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role_id, is_active)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (project_id, user_id) DO UPDATE SET role_id = excluded.role_id, is_active = excluded.is_active, updated_at = CURRENT_TIMESTAMP
		 RETURNING id, created_at, updated_at`,
		m.Project, m.User, m.Role, m.IsActive,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create member: %w", err)
	}
	return m, nil
}

func (d *DB) GetMember(ctx context.Context, project int64, user int32) (*store.ProjectMember, error) {
	var m store.ProjectMember
	err := d.db.QueryRowContext(ctx,
		`SELECT id, project_id, user_id, role_id, is_active, created_at, updated_at
		 FROM project_members WHERE project_id = ? AND user_id = ?`, project, user,
	).Scan(&m.ID, &m.Project, &m.User, &m.Role, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("member not found for project %d user %d: %w", project, user, err)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

func (d *DB) ListMembers(ctx context.Context, project int64) ([]*store.ProjectMember, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, project_id, user_id, role_id, is_active, created_at, updated_at
		 FROM project_members WHERE project_id = ?`, project)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*store.ProjectMember
	for rows.Next() {
		var m store.ProjectMember
		if err := rows.Scan(&m.ID, &m.Project, &m.User, &m.Role, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

func (d *DB) SetMemberActive(ctx context.Context, project int64, user int32, active bool) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE project_members SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE project_id = ? AND user_id = ?`,
		active, project, user)
	if err != nil {
		return fmt.Errorf("failed to set member active: %w", err)
	}
	return nil
}

func scanStatus(row interface{ Scan(...any) error }) (*store.TaskStatus, error) {
	var s store.TaskStatus
	if err := row.Scan(&s.ID, &s.Name, &s.DisplayName, &s.Color, &s.Order, &s.IsFinal, &s.IsBlocking); err != nil {
		return nil, err
	}
	return &s, nil
}

const statusColumns = `id, name, display_name, color, "order", is_final, is_blocking`

func (d *DB) GetStatus(ctx context.Context, id int64) (*store.TaskStatus, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+statusColumns+` FROM task_statuses WHERE id = ?`, id)
	s, err := scanStatus(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return s, nil
}

func (d *DB) GetStatusByName(ctx context.Context, name string) (*store.TaskStatus, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+statusColumns+` FROM task_statuses WHERE name = ?`, name)
	s, err := scanStatus(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get status %q: %w", name, err)
	}
	return s, nil
}

func (d *DB) ListStatuses(ctx context.Context) ([]*store.TaskStatus, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+statusColumns+` FROM task_statuses ORDER BY "order"`)
	if err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*store.TaskStatus
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}
