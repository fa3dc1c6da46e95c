package store

import "time"

// User is the weakly-referenced principal behind tasks, events, and actions.
// Deactivated or deleted users still appear on historical rows; callers
// render them as "unknown" rather than failing the read.
type User struct {
	ID                      int32
	Username                string
	IsActive                bool
	NotificationPreferences map[string]bool
}

type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusArchived ProjectStatus = "archived"
	ProjectStatusDeleted  ProjectStatus = "deleted"
)

type Project struct {
	ID        int64
	Name      string
	Status    ProjectStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectRole is a named capability bundle over the closed set below.
// RoleOwner, RoleManager, RoleDeveloper, and RoleObserver are the canonical
// seeded instances; a deployment may add others with its own bit pattern.
type ProjectRole struct {
	ID                   int64
	Name                 string
	CreateTasks          bool
	EditAnyTask          bool
	DeleteAnyTask        bool
	EditOwnTask          bool
	DeleteOwnTask        bool
	CreateDependencies   bool
	DeleteDependencies   bool
	ManageMembers        bool
	EditProject          bool
	DeleteProject        bool
}

const (
	RoleOwner     = "owner"
	RoleManager   = "manager"
	RoleDeveloper = "developer"
	RoleObserver  = "observer"
)

// ProjectMember is unique on (Project, User).
type ProjectMember struct {
	ID        int64
	Project   int64
	User      int32
	Role      int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TaskStatus struct {
	ID          int64
	Name        string
	DisplayName string
	Color       string
	Order       int
	IsFinal     bool
	IsBlocking  bool
}

const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusCompleted  = "completed"
	StatusBlocked    = "blocked"
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// Task is a node in a project's dependency graph.
type Task struct {
	ID          int64
	Project     int64
	Name        string
	Description string
	Status      int64
	Assignee    *int32
	Creator     int32
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Deadline    *time.Time
	Priority    Priority
	PositionX   float64
	PositionY   float64
	Metadata    []byte
}

type CreateTask struct {
	Project     int64
	Name        string
	Description string
	Creator     int32
	Assignee    *int32
	Deadline    *time.Time
	Priority    Priority
	Metadata    []byte
}

type UpdateTask struct {
	ID          int64
	Name        *string
	Description *string
	Assignee    **int32
	Deadline    **time.Time
	Priority    *Priority
	PositionX   *float64
	PositionY   *float64
	Metadata    []byte
}

type FindTask struct {
	ID       *int64
	Project  *int64
	Status   *int64
	Assignee *int32
	Creator  *int32
}

// Dependency is a directed edge source -> target within one project.
type Dependency struct {
	ID             int64
	Project        int64
	SourceTask     int64
	TargetTask     int64
	DependencyType string
	Description    string
	CreatedBy      int32
	CreatedAt      time.Time
}

type CreateDependency struct {
	Project        int64
	SourceTask     int64
	TargetTask     int64
	DependencyType string
	Description    string
	CreatedBy      int32
}

type FindDependency struct {
	ID         *int64
	Project    *int64
	SourceTask *int64
	TargetTask *int64
}

const (
	ActionNotifyAssignee = "notify_assignee"
	ActionNotifyCreator  = "notify_creator"
	ActionNotifyCustom   = "notify_custom"
	ActionChangeStatus   = "change_status"
	ActionCreateSubtask  = "create_subtask"
)

type DependencyActionType struct {
	Name                string
	RequiresTargetUser  bool
	RequiresTemplate    bool
	SupportsDelay       bool
}

// DependencyAction is an ordered rule attached to a Dependency, executed
// when the edge's source task reaches a final status.
type DependencyAction struct {
	ID              int64
	Dependency      int64
	ActionType      string
	TargetUser      *int32
	TargetStatus    *int64
	MessageTemplate *string
	DelayMinutes    int
	ExecuteOrder    int
	IsActive        bool
}

type FindDependencyAction struct {
	Dependency *int64
	IsActive   *bool
}

type EventType string

const (
	EventCreated           EventType = "created"
	EventUpdated           EventType = "updated"
	EventStatusChanged     EventType = "status_changed"
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
	EventAssigneeChanged   EventType = "assignee_changed"
)

// Event is an immutable log line; one is written per observable change.
type Event struct {
	ID        int64
	Project   int64
	Task      *int64
	User      *int32
	EventType EventType
	OldValue  *string
	NewValue  *string
	Metadata  []byte
	CreatedAt time.Time
}

type FindEvent struct {
	Project *int64
	Task    *int64
	Limit   int
	Offset  int
}

type ScheduledStatus string

const (
	ScheduledPending    ScheduledStatus = "pending"
	ScheduledProcessing ScheduledStatus = "processing"
	ScheduledCompleted  ScheduledStatus = "completed"
	ScheduledFailed     ScheduledStatus = "failed"
)

// ScheduledAction is a deferred work unit drained by the scheduler tick.
type ScheduledAction struct {
	ID               int64
	Project          int64
	Task             *int64
	ActionType       string
	ScheduledFor     time.Time
	ExecutedAt       *time.Time
	Payload          []byte
	DependencyAction *int64
	Status           ScheduledStatus
	Attempts         int
	LastError        *string
	CreatedAt        time.Time
}

type CreateScheduledAction struct {
	Project          int64
	Task             *int64
	ActionType       string
	ScheduledFor     time.Time
	Payload          []byte
	DependencyAction *int64
}

type FindScheduledAction struct {
	Status       *ScheduledStatus
	DueBefore    *time.Time
	Project      *int64
	Task         *int64
	Limit        int
}
