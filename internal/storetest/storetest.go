// Package storetest is an in-memory store.Driver for engine/actioneval/
// scheduler tests, generalizing the fakeDriver convention established in
// taskgraph/taskgraph_test.go (a hand-rolled stub, not a mocking library)
// into one shared implementation since those three packages' tests all
// need the same full CRUD surface rather than just the handful of methods
// taskgraph itself touches.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/hrygo/taskgraph/store"
)

// MemDriver is a single-goroutine-at-a-time, in-memory store.Driver. It
// keeps just enough relational shape (maps keyed by id, a running sequence)
// to exercise real engine/actioneval/scheduler logic end to end.
type MemDriver struct {
	mu sync.Mutex

	users    map[int32]*store.User
	projects map[int64]*store.Project
	roles    map[int64]*store.ProjectRole
	members  map[string]*store.ProjectMember // "project:user" -> member
	statuses map[int64]*store.TaskStatus

	tasks            map[int64]*store.Task
	deps             map[int64]*store.Dependency
	actionTypes      map[string]*store.DependencyActionType
	depActions       map[int64]*store.DependencyAction
	events           []*store.Event
	scheduledActions map[int64]*store.ScheduledAction

	seq int64
}

// New builds an empty MemDriver. Callers populate it via the Seed* helpers
// before wiring it into store.New.
func New() *MemDriver {
	return &MemDriver{
		users:            make(map[int32]*store.User),
		projects:         make(map[int64]*store.Project),
		roles:            make(map[int64]*store.ProjectRole),
		members:          make(map[string]*store.ProjectMember),
		statuses:         make(map[int64]*store.TaskStatus),
		tasks:            make(map[int64]*store.Task),
		deps:             make(map[int64]*store.Dependency),
		actionTypes:      make(map[string]*store.DependencyActionType),
		depActions:       make(map[int64]*store.DependencyAction),
		scheduledActions: make(map[int64]*store.ScheduledAction),
	}
}

func (m *MemDriver) nextID() int64 {
	m.seq++
	return m.seq
}

func memberKey(project int64, user int32) string {
	return fmt.Sprintf("%d:%d", project, user)
}

// SeedRole registers a ProjectRole under an auto-assigned id, returning it.
func (m *MemDriver) SeedRole(r *store.ProjectRole) *store.ProjectRole {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.nextID()
	m.roles[r.ID] = r
	return r
}

// SeedStatus registers a TaskStatus under an auto-assigned id.
func (m *MemDriver) SeedStatus(s *store.TaskStatus) *store.TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextID()
	m.statuses[s.ID] = s
	return s
}

// SeedProject registers a Project under the given id.
func (m *MemDriver) SeedProject(id int64, name string) *store.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &store.Project{ID: id, Name: name, Status: store.ProjectStatusActive}
	m.projects[id] = p
	return p
}

// SeedUser registers a User.
func (m *MemDriver) SeedUser(u *store.User) *store.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return u
}

// SeedMember registers an active ProjectMember.
func (m *MemDriver) SeedMember(project int64, user int32, role int64) *store.ProjectMember {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem := &store.ProjectMember{ID: m.nextID(), Project: project, User: user, Role: role, IsActive: true}
	m.members[memberKey(project, user)] = mem
	return mem
}

// SeedTask registers a Task under an auto-assigned id if it has none.
func (m *MemDriver) SeedTask(t *store.Task) *store.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.nextID()
	}
	m.tasks[t.ID] = t
	return t
}

// SeedActionType registers a DependencyActionType.
func (m *MemDriver) SeedActionType(a *store.DependencyActionType) *store.DependencyActionType {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionTypes[a.Name] = a
	return a
}

func (m *MemDriver) Close() error                                   { return nil }
func (m *MemDriver) IsInitialized(ctx context.Context) (bool, error) { return true, nil }

func (m *MemDriver) CreateUser(ctx context.Context, u *store.User) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return u, nil
}

func (m *MemDriver) GetUser(ctx context.Context, id int32) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *MemDriver) ListUsers(ctx context.Context, ids []int32) ([]*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemDriver) UpdateUserNotificationPreferences(ctx context.Context, id int32, prefs map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.NotificationPreferences = prefs
	return nil
}

func (m *MemDriver) CreateProject(ctx context.Context, name string) (*store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &store.Project{ID: m.nextID(), Name: name, Status: store.ProjectStatusActive}
	m.projects[p.ID] = p
	return p, nil
}

func (m *MemDriver) GetProject(ctx context.Context, id int64) (*store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (m *MemDriver) UpdateProjectStatus(ctx context.Context, id int64, status store.ProjectStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	return nil
}

func (m *MemDriver) GetRole(ctx context.Context, id int64) (*store.ProjectRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r, nil
}

func (m *MemDriver) GetRoleByName(ctx context.Context, name string) (*store.ProjectRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *MemDriver) CreateMember(ctx context.Context, mem *store.ProjectMember) (*store.ProjectMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem.ID = m.nextID()
	m.members[memberKey(mem.Project, mem.User)] = mem
	return mem, nil
}

func (m *MemDriver) GetMember(ctx context.Context, project int64, user int32) (*store.ProjectMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberKey(project, user)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return mem, nil
}

func (m *MemDriver) ListMembers(ctx context.Context, project int64) ([]*store.ProjectMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.ProjectMember
	for _, mem := range m.members {
		if mem.Project == project {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *MemDriver) SetMemberActive(ctx context.Context, project int64, user int32, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberKey(project, user)]
	if !ok {
		return sql.ErrNoRows
	}
	mem.IsActive = active
	return nil
}

func (m *MemDriver) GetStatus(ctx context.Context, id int64) (*store.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (m *MemDriver) GetStatusByName(ctx context.Context, name string) (*store.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.statuses {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *MemDriver) ListStatuses(ctx context.Context) ([]*store.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.TaskStatus
	for _, s := range m.statuses {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemDriver) CreateTask(ctx context.Context, create *store.CreateTask) (*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	todo, err := m.statusByNameLocked(store.StatusTodo)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	t := &store.Task{
		ID:          m.nextID(),
		Project:     create.Project,
		Name:        create.Name,
		Description: create.Description,
		Status:      todo.ID,
		Assignee:    create.Assignee,
		Creator:     create.Creator,
		CreatedAt:   now,
		UpdatedAt:   now,
		Deadline:    create.Deadline,
		Priority:    create.Priority,
		Metadata:    create.Metadata,
	}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *MemDriver) statusByNameLocked(name string) (*store.TaskStatus, error) {
	for _, s := range m.statuses {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *MemDriver) GetTask(ctx context.Context, id int64) (*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (m *MemDriver) ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Task
	for _, t := range m.tasks {
		if find.ID != nil && t.ID != *find.ID {
			continue
		}
		if find.Project != nil && t.Project != *find.Project {
			continue
		}
		if find.Status != nil && t.Status != *find.Status {
			continue
		}
		if find.Assignee != nil && (t.Assignee == nil || *t.Assignee != *find.Assignee) {
			continue
		}
		if find.Creator != nil && t.Creator != *find.Creator {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *MemDriver) UpdateTask(ctx context.Context, update *store.UpdateTask) (*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[update.ID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if update.Name != nil {
		t.Name = *update.Name
	}
	if update.Description != nil {
		t.Description = *update.Description
	}
	if update.Assignee != nil {
		t.Assignee = *update.Assignee
	}
	if update.Deadline != nil {
		t.Deadline = *update.Deadline
	}
	if update.Priority != nil {
		t.Priority = *update.Priority
	}
	if update.PositionX != nil {
		t.PositionX = *update.PositionX
	}
	if update.PositionY != nil {
		t.PositionY = *update.PositionY
	}
	if update.Metadata != nil {
		t.Metadata = update.Metadata
	}
	t.UpdatedAt = time.Now()
	return t, nil
}

func (m *MemDriver) SetTaskStatus(ctx context.Context, id int64, status int64, startedAt, completedAt *time.Time) (*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	t.Status = status
	if startedAt != nil {
		t.StartedAt = startedAt
	}
	if completedAt != nil {
		t.CompletedAt = completedAt
	}
	t.UpdatedAt = time.Now()
	return t, nil
}

func (m *MemDriver) DeleteTask(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *MemDriver) CreateDependency(ctx context.Context, create *store.CreateDependency) (*store.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &store.Dependency{
		ID:             m.nextID(),
		Project:        create.Project,
		SourceTask:     create.SourceTask,
		TargetTask:     create.TargetTask,
		DependencyType: create.DependencyType,
		Description:    create.Description,
		CreatedBy:      create.CreatedBy,
		CreatedAt:      time.Now(),
	}
	m.deps[d.ID] = d
	return d, nil
}

func (m *MemDriver) GetDependency(ctx context.Context, id int64) (*store.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return d, nil
}

func (m *MemDriver) ListDependencies(ctx context.Context, find *store.FindDependency) ([]*store.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Dependency
	for _, d := range m.deps {
		if find.ID != nil && d.ID != *find.ID {
			continue
		}
		if find.Project != nil && d.Project != *find.Project {
			continue
		}
		if find.SourceTask != nil && d.SourceTask != *find.SourceTask {
			continue
		}
		if find.TargetTask != nil && d.TargetTask != *find.TargetTask {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *MemDriver) DeleteDependency(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deps, id)
	return nil
}

func (m *MemDriver) GetActionType(ctx context.Context, name string) (*store.DependencyActionType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actionTypes[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return a, nil
}

func (m *MemDriver) CreateDependencyAction(ctx context.Context, a *store.DependencyAction) (*store.DependencyAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID()
	m.depActions[a.ID] = a
	return a, nil
}

func (m *MemDriver) GetDependencyAction(ctx context.Context, id int64) (*store.DependencyAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.depActions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return a, nil
}

func (m *MemDriver) ListDependencyActions(ctx context.Context, find *store.FindDependencyAction) ([]*store.DependencyAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.DependencyAction
	for _, a := range m.depActions {
		if find.Dependency != nil && a.Dependency != *find.Dependency {
			continue
		}
		if find.IsActive != nil && a.IsActive != *find.IsActive {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *MemDriver) AppendEvent(ctx context.Context, e *store.Event) (*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID()
	e.CreatedAt = time.Now()
	m.events = append(m.events, e)
	return e, nil
}

func (m *MemDriver) ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Event
	for _, e := range m.events {
		if find.Project != nil && e.Project != *find.Project {
			continue
		}
		if find.Task != nil && (e.Task == nil || *e.Task != *find.Task) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemDriver) CreateScheduledAction(ctx context.Context, create *store.CreateScheduledAction) (*store.ScheduledAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &store.ScheduledAction{
		ID:               m.nextID(),
		Project:          create.Project,
		Task:             create.Task,
		ActionType:       create.ActionType,
		ScheduledFor:     create.ScheduledFor,
		Payload:          create.Payload,
		DependencyAction: create.DependencyAction,
		Status:           store.ScheduledPending,
		CreatedAt:        time.Now(),
	}
	m.scheduledActions[a.ID] = a
	return a, nil
}

func (m *MemDriver) ListScheduledActions(ctx context.Context, find *store.FindScheduledAction) ([]*store.ScheduledAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.ScheduledAction
	for _, a := range m.scheduledActions {
		if find.Status != nil && a.Status != *find.Status {
			continue
		}
		if find.Project != nil && a.Project != *find.Project {
			continue
		}
		if find.Task != nil && (a.Task == nil || *a.Task != *find.Task) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *MemDriver) CancelScheduledActions(ctx context.Context, task int64, actionType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.scheduledActions {
		if a.Task != nil && *a.Task == task && a.ActionType == actionType && a.Status == store.ScheduledPending {
			a.Status = store.ScheduledFailed
			reason := "cancelled"
			a.LastError = &reason
			n++
		}
	}
	return n, nil
}

func (m *MemDriver) ClaimDueScheduledActions(ctx context.Context, before time.Time, limit int) ([]*store.ScheduledAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.ScheduledAction
	for _, a := range m.scheduledActions {
		if len(out) >= limit {
			break
		}
		if a.Status == store.ScheduledPending && !a.ScheduledFor.After(before) {
			a.Status = store.ScheduledProcessing
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemDriver) CompleteScheduledAction(ctx context.Context, id int64, executedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.scheduledActions[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.Status = store.ScheduledCompleted
	a.ExecutedAt = &executedAt
	return nil
}

func (m *MemDriver) FailScheduledAction(ctx context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.scheduledActions[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.Status = store.ScheduledFailed
	a.LastError = &reason
	a.Attempts++
	return nil
}

func (m *MemDriver) ReapStuckScheduledActions(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.scheduledActions {
		if a.Status == store.ScheduledProcessing && a.CreatedAt.Before(olderThan) {
			a.Status = store.ScheduledPending
			n++
		}
	}
	return n, nil
}

var _ store.Driver = (*MemDriver)(nil)
