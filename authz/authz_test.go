package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskgraph/internal/profile"
	"github.com/hrygo/taskgraph/store"
)

type fakeDriver struct {
	members map[string]*store.ProjectMember
	roles   map[int64]*store.ProjectRole
}

func memberKey(project int64, user int32) string {
	return string(rune(project)) + ":" + string(rune(user))
}

func (f *fakeDriver) GetMember(ctx context.Context, project int64, user int32) (*store.ProjectMember, error) {
	m, ok := f.members[memberKey(project, user)]
	if !ok {
		return nil, errNotFound
	}
	return m, nil
}

func (f *fakeDriver) GetRole(ctx context.Context, id int64) (*store.ProjectRole, error) {
	r, ok := f.roles[id]
	if !ok {
		return nil, errNotFound
	}
	return r, nil
}

var errNotFound = assertError("not found")

type assertError string

func (e assertError) Error() string { return string(e) }

func (f *fakeDriver) Close() error                                   { panic("not used") }
func (f *fakeDriver) IsInitialized(ctx context.Context) (bool, error) { panic("not used") }
func (f *fakeDriver) CreateUser(ctx context.Context, u *store.User) (*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) GetUser(ctx context.Context, id int32) (*store.User, error) { panic("not used") }
func (f *fakeDriver) ListUsers(ctx context.Context, ids []int32) ([]*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) UpdateUserNotificationPreferences(ctx context.Context, id int32, prefs map[string]bool) error {
	panic("not used")
}
func (f *fakeDriver) CreateProject(ctx context.Context, name string) (*store.Project, error) {
	panic("not used")
}
func (f *fakeDriver) GetProject(ctx context.Context, id int64) (*store.Project, error) {
	panic("not used")
}
func (f *fakeDriver) UpdateProjectStatus(ctx context.Context, id int64, status store.ProjectStatus) error {
	panic("not used")
}
func (f *fakeDriver) GetRoleByName(ctx context.Context, name string) (*store.ProjectRole, error) {
	panic("not used")
}
func (f *fakeDriver) CreateMember(ctx context.Context, m *store.ProjectMember) (*store.ProjectMember, error) {
	panic("not used")
}
func (f *fakeDriver) ListMembers(ctx context.Context, project int64) ([]*store.ProjectMember, error) {
	panic("not used")
}
func (f *fakeDriver) SetMemberActive(ctx context.Context, project int64, user int32, active bool) error {
	panic("not used")
}
func (f *fakeDriver) GetStatus(ctx context.Context, id int64) (*store.TaskStatus, error) {
	panic("not used")
}
func (f *fakeDriver) GetStatusByName(ctx context.Context, name string) (*store.TaskStatus, error) {
	panic("not used")
}
func (f *fakeDriver) ListStatuses(ctx context.Context) ([]*store.TaskStatus, error) {
	panic("not used")
}
func (f *fakeDriver) CreateTask(ctx context.Context, create *store.CreateTask) (*store.Task, error) {
	panic("not used")
}
func (f *fakeDriver) GetTask(ctx context.Context, id int64) (*store.Task, error) { panic("not used") }
func (f *fakeDriver) ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error) {
	panic("not used")
}
func (f *fakeDriver) UpdateTask(ctx context.Context, update *store.UpdateTask) (*store.Task, error) {
	panic("not used")
}
func (f *fakeDriver) SetTaskStatus(ctx context.Context, id int64, status int64, startedAt, completedAt *time.Time) (*store.Task, error) {
	panic("not used")
}
func (f *fakeDriver) DeleteTask(ctx context.Context, id int64) error { panic("not used") }
func (f *fakeDriver) CreateDependency(ctx context.Context, create *store.CreateDependency) (*store.Dependency, error) {
	panic("not used")
}
func (f *fakeDriver) GetDependency(ctx context.Context, id int64) (*store.Dependency, error) {
	panic("not used")
}
func (f *fakeDriver) ListDependencies(ctx context.Context, find *store.FindDependency) ([]*store.Dependency, error) {
	panic("not used")
}
func (f *fakeDriver) DeleteDependency(ctx context.Context, id int64) error { panic("not used") }
func (f *fakeDriver) GetActionType(ctx context.Context, name string) (*store.DependencyActionType, error) {
	panic("not used")
}
func (f *fakeDriver) CreateDependencyAction(ctx context.Context, a *store.DependencyAction) (*store.DependencyAction, error) {
	panic("not used")
}
func (f *fakeDriver) GetDependencyAction(ctx context.Context, id int64) (*store.DependencyAction, error) {
	panic("not used")
}
func (f *fakeDriver) ListDependencyActions(ctx context.Context, find *store.FindDependencyAction) ([]*store.DependencyAction, error) {
	panic("not used")
}
func (f *fakeDriver) AppendEvent(ctx context.Context, e *store.Event) (*store.Event, error) {
	panic("not used")
}
func (f *fakeDriver) ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error) {
	panic("not used")
}
func (f *fakeDriver) CreateScheduledAction(ctx context.Context, create *store.CreateScheduledAction) (*store.ScheduledAction, error) {
	panic("not used")
}
func (f *fakeDriver) ListScheduledActions(ctx context.Context, find *store.FindScheduledAction) ([]*store.ScheduledAction, error) {
	panic("not used")
}
func (f *fakeDriver) CancelScheduledActions(ctx context.Context, task int64, actionType string) (int, error) {
	panic("not used")
}
func (f *fakeDriver) ClaimDueScheduledActions(ctx context.Context, before time.Time, limit int) ([]*store.ScheduledAction, error) {
	panic("not used")
}
func (f *fakeDriver) CompleteScheduledAction(ctx context.Context, id int64, executedAt time.Time) error {
	panic("not used")
}
func (f *fakeDriver) FailScheduledAction(ctx context.Context, id int64, reason string) error {
	panic("not used")
}
func (f *fakeDriver) ReapStuckScheduledActions(ctx context.Context, olderThan time.Time) (int, error) {
	panic("not used")
}

func newChecker(members map[string]*store.ProjectMember, roles map[int64]*store.ProjectRole) *Checker {
	driver := &fakeDriver{members: members, roles: roles}
	s := store.New(driver, &profile.Profile{})
	return NewChecker(s)
}

const (
	project int64 = 1
	owner   int32 = 1
	dev     int32 = 2
	other   int32 = 3
)

func TestCanEditTaskEditAnyTask(t *testing.T) {
	roles := map[int64]*store.ProjectRole{10: {ID: 10, Name: "manager", EditAnyTask: true}}
	members := map[string]*store.ProjectMember{memberKey(project, owner): {Project: project, User: owner, Role: 10, IsActive: true}}
	c := newChecker(members, roles)

	task := &store.Task{Project: project, Creator: dev, Assignee: nil}
	ok, err := c.CanEditTask(context.Background(), owner, task)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanEditTaskEditOwnRequiresCreatorOrAssignee(t *testing.T) {
	roles := map[int64]*store.ProjectRole{20: {ID: 20, Name: "developer", EditOwnTask: true}}
	members := map[string]*store.ProjectMember{memberKey(project, dev): {Project: project, User: dev, Role: 20, IsActive: true}}
	c := newChecker(members, roles)

	task := &store.Task{Project: project, Creator: dev}
	ok, err := c.CanEditTask(context.Background(), dev, task)
	require.NoError(t, err)
	assert.True(t, ok)

	strangerTask := &store.Task{Project: project, Creator: other}
	ok, err = c.CanEditTask(context.Background(), dev, strangerTask)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanEditTaskNonMemberDenied(t *testing.T) {
	c := newChecker(nil, nil)
	ok, err := c.CanEditTask(context.Background(), other, &store.Task{Project: project, Creator: other})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanDeleteTaskOwnRequiresCreator(t *testing.T) {
	roles := map[int64]*store.ProjectRole{20: {ID: 20, Name: "developer", DeleteOwnTask: true}}
	members := map[string]*store.ProjectMember{memberKey(project, dev): {Project: project, User: dev, Role: 20, IsActive: true}}
	c := newChecker(members, roles)

	ok, err := c.CanDeleteTask(context.Background(), dev, &store.Task{Project: project, Creator: dev})
	require.NoError(t, err)
	assert.True(t, ok)

	assignedButNotCreator := &store.Task{Project: project, Creator: other, Assignee: &dev}
	ok, err = c.CanDeleteTask(context.Background(), dev, assignedButNotCreator)
	require.NoError(t, err)
	assert.False(t, ok, "delete_own_task only covers the creator, not the assignee")
}

func TestCanCreateDependenciesRequiresCreatorOrAssigneeWithoutEditAny(t *testing.T) {
	roles := map[int64]*store.ProjectRole{20: {ID: 20, Name: "developer", CreateDependencies: true}}
	members := map[string]*store.ProjectMember{memberKey(project, dev): {Project: project, User: dev, Role: 20, IsActive: true}}
	c := newChecker(members, roles)

	sourceTask := &store.Task{Project: project, Creator: dev}
	ok, err := c.CanCreateDependencies(context.Background(), dev, sourceTask)
	require.NoError(t, err)
	assert.True(t, ok)

	otherSource := &store.Task{Project: project, Creator: other}
	ok, err = c.CanCreateDependencies(context.Background(), dev, otherSource)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanCreateDependenciesEditAnyBypassesOwnership(t *testing.T) {
	roles := map[int64]*store.ProjectRole{10: {ID: 10, Name: "manager", CreateDependencies: true, EditAnyTask: true}}
	members := map[string]*store.ProjectMember{memberKey(project, owner): {Project: project, User: owner, Role: 10, IsActive: true}}
	c := newChecker(members, roles)

	ok, err := c.CanCreateDependencies(context.Background(), owner, &store.Task{Project: project, Creator: other})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanDeleteDependenciesRoleFlag(t *testing.T) {
	roles := map[int64]*store.ProjectRole{10: {ID: 10, Name: "manager", DeleteDependencies: true}}
	members := map[string]*store.ProjectMember{memberKey(project, owner): {Project: project, User: owner, Role: 10, IsActive: true}}
	c := newChecker(members, roles)

	ok, err := c.CanDeleteDependencies(context.Background(), owner, project)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CanDeleteDependencies(context.Background(), other, project)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInactiveMemberDenied(t *testing.T) {
	roles := map[int64]*store.ProjectRole{10: {ID: 10, Name: "manager", EditAnyTask: true}}
	members := map[string]*store.ProjectMember{memberKey(project, owner): {Project: project, User: owner, Role: 10, IsActive: false}}
	c := newChecker(members, roles)

	ok, err := c.CanEditTask(context.Background(), owner, &store.Task{Project: project, Creator: other})
	require.NoError(t, err)
	assert.False(t, ok)
}
