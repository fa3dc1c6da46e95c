package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/hrygo/taskgraph/store"
)

const scheduledActionColumns = `id, project_id, task_id, action_type, scheduled_for, executed_at, payload, dependency_action_id, status, attempts, last_error, created_at`

func scanScheduledAction(row interface{ Scan(...any) error }) (*store.ScheduledAction, error) {
	var s store.ScheduledAction
	err := row.Scan(&s.ID, &s.Project, &s.Task, &s.ActionType, &s.ScheduledFor, &s.ExecutedAt, &s.Payload,
		&s.DependencyAction, &s.Status, &s.Attempts, &s.LastError, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *DB) CreateScheduledAction(ctx context.Context, create *store.CreateScheduledAction) (*store.ScheduledAction, error) {
	row := d.db.QueryRowContext(ctx,
		`INSERT INTO scheduled_actions (project_id, task_id, action_type, scheduled_for, payload, dependency_action_id, status)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending')
		 RETURNING `+scheduledActionColumns,
		create.Project, create.Task, create.ActionType, create.ScheduledFor, create.Payload, create.DependencyAction)
	s, err := scanScheduledAction(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduled action: %w", err)
	}
	return s, nil
}

func (d *DB) ListScheduledActions(ctx context.Context, find *store.FindScheduledAction) ([]*store.ScheduledAction, error) {
	query := `SELECT ` + scheduledActionColumns + ` FROM scheduled_actions WHERE 1=1`
	var args []any
	if find.Status != nil {
		query += " AND status = ?"
		args = append(args, *find.Status)
	}
	if find.DueBefore != nil {
		query += " AND scheduled_for <= ?"
		args = append(args, *find.DueBefore)
	}
	if find.Project != nil {
		query += " AND project_id = ?"
		args = append(args, *find.Project)
	}
	if find.Task != nil {
		query += " AND task_id = ?"
		args = append(args, *find.Task)
	}
	query += " ORDER BY scheduled_for"
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled actions: %w", err)
	}
	defer rows.Close()

	var actions []*store.ScheduledAction
	for rows.Next() {
		s, err := scanScheduledAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled action: %w", err)
		}
		actions = append(actions, s)
	}
	return actions, rows.Err()
}

// CancelScheduledActions marks every still-pending action of actionType for
// task as failed with a cancellation note, used when a deadline changes and
// its reminders must be rescheduled.
func (d *DB) CancelScheduledActions(ctx context.Context, task int64, actionType string) (int, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE scheduled_actions SET status = 'failed', last_error = 'cancelled: superseded'
		 WHERE task_id = ? AND action_type = ? AND status = 'pending'`, task, actionType)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel scheduled actions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ClaimDueScheduledActions atomically transitions due pending rows to
// processing and returns them. SQLite's single-writer-connection pool
// already serializes this against other claim calls; there is no
// SKIP LOCKED equivalent to reach for.
func (d *DB) ClaimDueScheduledActions(ctx context.Context, before time.Time, limit int) ([]*store.ScheduledAction, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+scheduledActionColumns+` FROM scheduled_actions
		 WHERE status = 'pending' AND scheduled_for <= ?
		 ORDER BY scheduled_for
		 LIMIT ?`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select due scheduled actions: %w", err)
	}

	var claimed []*store.ScheduledAction
	var ids []int64
	for rows.Next() {
		s, err := scanScheduledAction(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan scheduled action: %w", err)
		}
		claimed = append(claimed, s)
		ids = append(ids, s.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE scheduled_actions SET status = 'processing', attempts = attempts + 1 WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to claim scheduled action %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}
	for _, s := range claimed {
		s.Status = store.ScheduledProcessing
		s.Attempts++
	}
	return claimed, nil
}

func (d *DB) CompleteScheduledAction(ctx context.Context, id int64, executedAt time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE scheduled_actions SET status = 'completed', executed_at = ? WHERE id = ?`, executedAt, id)
	if err != nil {
		return fmt.Errorf("failed to complete scheduled action: %w", err)
	}
	return nil
}

func (d *DB) FailScheduledAction(ctx context.Context, id int64, reason string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE scheduled_actions SET status = 'failed', last_error = ? WHERE id = ?`, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark scheduled action failed: %w", err)
	}
	return nil
}

// ReapStuckScheduledActions resets rows left in processing past olderThan
// back to pending, covering a worker that claimed a row and then crashed.
func (d *DB) ReapStuckScheduledActions(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE scheduled_actions SET status = 'pending'
		 WHERE status = 'processing' AND scheduled_for <= ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stuck scheduled actions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
