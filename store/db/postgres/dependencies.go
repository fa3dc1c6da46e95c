package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrygo/taskgraph/store"
)

const dependencyColumns = `id, project_id, source_task_id, target_task_id, dependency_type, description, created_by, created_at`

func scanDependency(row interface{ Scan(...any) error }) (*store.Dependency, error) {
	var dep store.Dependency
	err := row.Scan(&dep.ID, &dep.Project, &dep.SourceTask, &dep.TargetTask, &dep.DependencyType,
		&dep.Description, &dep.CreatedBy, &dep.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &dep, nil
}

func (d *DB) CreateDependency(ctx context.Context, create *store.CreateDependency) (*store.Dependency, error) {
	depType := create.DependencyType
	if depType == "" {
		depType = "simple"
	}
	row := d.db.QueryRowContext(ctx,
		`INSERT INTO dependencies (project_id, source_task_id, target_task_id, dependency_type, description, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+dependencyColumns,
		create.Project, create.SourceTask, create.TargetTask, depType, create.Description, create.CreatedBy)
	dep, err := scanDependency(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create dependency: %w", err)
	}
	return dep, nil
}

func (d *DB) GetDependency(ctx context.Context, id int64) (*store.Dependency, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+dependencyColumns+` FROM dependencies WHERE id = $1`, id)
	dep, err := scanDependency(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("dependency %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get dependency: %w", err)
	}
	return dep, nil
}

func (d *DB) ListDependencies(ctx context.Context, find *store.FindDependency) ([]*store.Dependency, error) {
	query := `SELECT ` + dependencyColumns + ` FROM dependencies WHERE 1=1`
	var args []any
	n := 0
	add := func(clause string, val any) {
		n++
		query += fmt.Sprintf(" AND %s $%d", clause, n)
		args = append(args, val)
	}
	if find.Project != nil {
		add("project_id =", *find.Project)
	}
	if find.SourceTask != nil {
		add("source_task_id =", *find.SourceTask)
	}
	if find.TargetTask != nil {
		add("target_task_id =", *find.TargetTask)
	}
	query += " ORDER BY id"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer rows.Close()

	var deps []*store.Dependency
	for rows.Next() {
		dep, err := scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

func (d *DB) DeleteDependency(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM dependencies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dependency: %w", err)
	}
	return nil
}

func (d *DB) GetActionType(ctx context.Context, name string) (*store.DependencyActionType, error) {
	var at store.DependencyActionType
	err := d.db.QueryRowContext(ctx,
		`SELECT name, requires_target_user, requires_template, supports_delay FROM dependency_action_types WHERE name = $1`, name,
	).Scan(&at.Name, &at.RequiresTargetUser, &at.RequiresTemplate, &at.SupportsDelay)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("action type %q not found: %w", name, err)
		}
		return nil, fmt.Errorf("failed to get action type: %w", err)
	}
	return &at, nil
}

func (d *DB) CreateDependencyAction(ctx context.Context, a *store.DependencyAction) (*store.DependencyAction, error) {
	err := d.db.QueryRowContext(ctx,
		`INSERT INTO dependency_actions (dependency_id, action_type, target_user_id, target_status_id, message_template, delay_minutes, execute_order, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		a.Dependency, a.ActionType, a.TargetUser, a.TargetStatus, a.MessageTemplate, a.DelayMinutes, a.ExecuteOrder, a.IsActive,
	).Scan(&a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create dependency action: %w", err)
	}
	return a, nil
}

func (d *DB) GetDependencyAction(ctx context.Context, id int64) (*store.DependencyAction, error) {
	var a store.DependencyAction
	err := d.db.QueryRowContext(ctx,
		`SELECT id, dependency_id, action_type, target_user_id, target_status_id, message_template, delay_minutes, execute_order, is_active
		 FROM dependency_actions WHERE id = $1`, id,
	).Scan(&a.ID, &a.Dependency, &a.ActionType, &a.TargetUser, &a.TargetStatus,
		&a.MessageTemplate, &a.DelayMinutes, &a.ExecuteOrder, &a.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("dependency action %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get dependency action: %w", err)
	}
	return &a, nil
}

func (d *DB) ListDependencyActions(ctx context.Context, find *store.FindDependencyAction) ([]*store.DependencyAction, error) {
	query := `SELECT id, dependency_id, action_type, target_user_id, target_status_id, message_template, delay_minutes, execute_order, is_active
	          FROM dependency_actions WHERE 1=1`
	var args []any
	n := 0
	if find.Dependency != nil {
		n++
		query += fmt.Sprintf(" AND dependency_id = $%d", n)
		args = append(args, *find.Dependency)
	}
	if find.IsActive != nil {
		n++
		query += fmt.Sprintf(" AND is_active = $%d", n)
		args = append(args, *find.IsActive)
	}
	query += " ORDER BY execute_order"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependency actions: %w", err)
	}
	defer rows.Close()

	var actions []*store.DependencyAction
	for rows.Next() {
		var a store.DependencyAction
		if err := rows.Scan(&a.ID, &a.Dependency, &a.ActionType, &a.TargetUser, &a.TargetStatus,
			&a.MessageTemplate, &a.DelayMinutes, &a.ExecuteOrder, &a.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan dependency action: %w", err)
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}
