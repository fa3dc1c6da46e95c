package postgres

import (
	"context"
	"fmt"

	"github.com/hrygo/taskgraph/store"
)

func (d *DB) AppendEvent(ctx context.Context, e *store.Event) (*store.Event, error) {
	err := d.db.QueryRowContext(ctx,
		`INSERT INTO events (project_id, task_id, user_id, event_type, old_value, new_value, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		e.Project, e.Task, e.User, e.EventType, e.OldValue, e.NewValue, e.Metadata,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}
	return e, nil
}

func (d *DB) ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error) {
	query := `SELECT id, project_id, task_id, user_id, event_type, old_value, new_value, metadata, created_at
	          FROM events WHERE 1=1`
	var args []any
	n := 0
	if find.Project != nil {
		n++
		query += fmt.Sprintf(" AND project_id = $%d", n)
		args = append(args, *find.Project)
	}
	if find.Task != nil {
		n++
		query += fmt.Sprintf(" AND task_id = $%d", n)
		args = append(args, *find.Task)
	}
	query += " ORDER BY created_at DESC"
	if find.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, find.Limit)
	}
	if find.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, find.Offset)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*store.Event
	for rows.Next() {
		var e store.Event
		if err := rows.Scan(&e.ID, &e.Project, &e.Task, &e.User, &e.EventType, &e.OldValue, &e.NewValue,
			&e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
