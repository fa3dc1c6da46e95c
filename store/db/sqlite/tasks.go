package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/taskgraph/store"
)

const taskColumns = `id, project_id, name, description, status_id, assignee_id, creator_id, created_at, updated_at, started_at, completed_at, deadline, priority, position_x, position_y, metadata`

func scanTask(row interface{ Scan(...any) error }) (*store.Task, error) {
	var t store.Task
	err := row.Scan(&t.ID, &t.Project, &t.Name, &t.Description, &t.Status, &t.Assignee, &t.Creator,
		&t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.CompletedAt, &t.Deadline, &t.Priority,
		&t.PositionX, &t.PositionY, &t.Metadata)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (d *DB) CreateTask(ctx context.Context, create *store.CreateTask) (*store.Task, error) {
	status, err := d.GetStatusByName(ctx, store.StatusTodo)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default status: %w", err)
	}

	row := d.db.QueryRowContext(ctx,
		`INSERT INTO tasks (project_id, name, description, status_id, assignee_id, creator_id, deadline, priority, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+taskColumns,
		create.Project, create.Name, create.Description, status.ID, create.Assignee, create.Creator,
		create.Deadline, create.Priority, create.Metadata)
	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

func (d *DB) GetTask(ctx context.Context, id int64) (*store.Task, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("task %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (d *DB) ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	add := func(clause string, val any) {
		query += fmt.Sprintf(" AND %s ?", clause)
		args = append(args, val)
	}
	if find.Project != nil {
		add("project_id =", *find.Project)
	}
	if find.Status != nil {
		add("status_id =", *find.Status)
	}
	if find.Assignee != nil {
		add("assignee_id =", *find.Assignee)
	}
	if find.Creator != nil {
		add("creator_id =", *find.Creator)
	}
	query += " ORDER BY id"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (d *DB) UpdateTask(ctx context.Context, update *store.UpdateTask) (*store.Task, error) {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	var args []any
	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = ?", col))
		args = append(args, val)
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Description != nil {
		add("description", *update.Description)
	}
	if update.Assignee != nil {
		add("assignee_id", *update.Assignee)
	}
	if update.Deadline != nil {
		add("deadline", *update.Deadline)
	}
	if update.Priority != nil {
		add("priority", *update.Priority)
	}
	if update.PositionX != nil {
		add("position_x", *update.PositionX)
	}
	if update.PositionY != nil {
		add("position_y", *update.PositionY)
	}
	if update.Metadata != nil {
		add("metadata", update.Metadata)
	}
	args = append(args, update.ID)

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = ? RETURNING %s`, strings.Join(sets, ", "), taskColumns)
	row := d.db.QueryRowContext(ctx, query, args...)
	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return t, nil
}

func (d *DB) SetTaskStatus(ctx context.Context, id int64, status int64, startedAt, completedAt *time.Time) (*store.Task, error) {
	sets := []string{"status_id = ?", "updated_at = CURRENT_TIMESTAMP"}
	args := []any{status}
	if startedAt != nil {
		sets = append(sets, "started_at = COALESCE(started_at, ?)")
		args = append(args, *startedAt)
	}
	if completedAt != nil {
		sets = append(sets, "completed_at = COALESCE(completed_at, ?)")
		args = append(args, *completedAt)
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = ? RETURNING %s`, strings.Join(sets, ", "), taskColumns)
	row := d.db.QueryRowContext(ctx, query, args...)
	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("failed to set task status: %w", err)
	}
	return t, nil
}

func (d *DB) DeleteTask(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}
