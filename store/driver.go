package store

import (
	"context"
	"time"
)

// Driver is the persistence contract implemented once per backing engine
// (postgres, sqlite). Every write runs inside a serializable per-project
// transaction where the method touches more than one row; reads are plain
// queries. Driver never interprets §7 error categories, it only returns
// sql-level errors; translation to apperrors categories happens in the
// engine layer.
type Driver interface {
	Close() error
	IsInitialized(ctx context.Context) (bool, error)

	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUser(ctx context.Context, id int32) (*User, error)
	ListUsers(ctx context.Context, ids []int32) ([]*User, error)
	UpdateUserNotificationPreferences(ctx context.Context, id int32, prefs map[string]bool) error

	CreateProject(ctx context.Context, name string) (*Project, error)
	GetProject(ctx context.Context, id int64) (*Project, error)
	UpdateProjectStatus(ctx context.Context, id int64, status ProjectStatus) error

	GetRole(ctx context.Context, id int64) (*ProjectRole, error)
	GetRoleByName(ctx context.Context, name string) (*ProjectRole, error)

	CreateMember(ctx context.Context, m *ProjectMember) (*ProjectMember, error)
	GetMember(ctx context.Context, project int64, user int32) (*ProjectMember, error)
	ListMembers(ctx context.Context, project int64) ([]*ProjectMember, error)
	SetMemberActive(ctx context.Context, project int64, user int32, active bool) error

	GetStatus(ctx context.Context, id int64) (*TaskStatus, error)
	GetStatusByName(ctx context.Context, name string) (*TaskStatus, error)
	ListStatuses(ctx context.Context) ([]*TaskStatus, error)

	CreateTask(ctx context.Context, create *CreateTask) (*Task, error)
	GetTask(ctx context.Context, id int64) (*Task, error)
	ListTasks(ctx context.Context, find *FindTask) ([]*Task, error)
	UpdateTask(ctx context.Context, update *UpdateTask) (*Task, error)
	SetTaskStatus(ctx context.Context, id int64, status int64, startedAt, completedAt *time.Time) (*Task, error)
	DeleteTask(ctx context.Context, id int64) error

	CreateDependency(ctx context.Context, create *CreateDependency) (*Dependency, error)
	GetDependency(ctx context.Context, id int64) (*Dependency, error)
	ListDependencies(ctx context.Context, find *FindDependency) ([]*Dependency, error)
	DeleteDependency(ctx context.Context, id int64) error

	GetActionType(ctx context.Context, name string) (*DependencyActionType, error)

	CreateDependencyAction(ctx context.Context, a *DependencyAction) (*DependencyAction, error)
	GetDependencyAction(ctx context.Context, id int64) (*DependencyAction, error)
	ListDependencyActions(ctx context.Context, find *FindDependencyAction) ([]*DependencyAction, error)

	AppendEvent(ctx context.Context, e *Event) (*Event, error)
	ListEvents(ctx context.Context, find *FindEvent) ([]*Event, error)

	CreateScheduledAction(ctx context.Context, create *CreateScheduledAction) (*ScheduledAction, error)
	ListScheduledActions(ctx context.Context, find *FindScheduledAction) ([]*ScheduledAction, error)
	CancelScheduledActions(ctx context.Context, task int64, actionType string) (int, error)
	ClaimDueScheduledActions(ctx context.Context, before time.Time, limit int) ([]*ScheduledAction, error)
	CompleteScheduledAction(ctx context.Context, id int64, executedAt time.Time) error
	FailScheduledAction(ctx context.Context, id int64, reason string) error
	ReapStuckScheduledActions(ctx context.Context, olderThan time.Time) (int, error)
}
