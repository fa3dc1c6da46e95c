package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hrygo/taskgraph/store"
)

func (d *DB) CreateUser(ctx context.Context, u *store.User) (*store.User, error) {
	prefsJSON, err := json.Marshal(u.NotificationPreferences)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification preferences: %w", err)
	}
	err = d.db.QueryRowContext(ctx,
		`INSERT INTO users (username, is_active, notification_preferences) VALUES ($1, $2, $3) RETURNING id`,
		u.Username, u.IsActive, prefsJSON,
	).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var u store.User
	var prefsJSON []byte
	if err := row.Scan(&u.ID, &u.Username, &u.IsActive, &prefsJSON); err != nil {
		return nil, err
	}
	if len(prefsJSON) > 0 {
		_ = json.Unmarshal(prefsJSON, &u.NotificationPreferences)
	}
	return &u, nil
}

func (d *DB) GetUser(ctx context.Context, id int32) (*store.User, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, username, is_active, notification_preferences FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (d *DB) ListUsers(ctx context.Context, ids []int32) ([]*store.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, username, is_active, notification_preferences FROM users WHERE id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (d *DB) UpdateUserNotificationPreferences(ctx context.Context, id int32, prefs map[string]bool) error {
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal notification preferences: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`UPDATE users SET notification_preferences = $1 WHERE id = $2`, prefsJSON, id)
	if err != nil {
		return fmt.Errorf("failed to update notification preferences: %w", err)
	}
	return nil
}
