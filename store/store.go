package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hrygo/taskgraph/internal/cache"
	"github.com/hrygo/taskgraph/internal/profile"
)

// Store provides access to all persisted entities, layering a short-TTL
// cache over reference data (roles, statuses) that changes rarely but is
// read on every authz check and status transition.
type Store struct {
	profile *profile.Profile
	driver  Driver

	cacheConfig cache.Config
	roleCache   *cache.Cache
	statusCache *cache.Cache
	userCache   *cache.Cache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		profile:     profile,
		driver:      driver,
		cacheConfig: cacheConfig,
		roleCache:   cache.New(cacheConfig),
		statusCache: cache.New(cacheConfig),
		userCache:   cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver { return s.driver }

func (s *Store) Close() error {
	s.roleCache.Close()
	s.statusCache.Close()
	s.userCache.Close()
	return s.driver.Close()
}

func (s *Store) IsInitialized(ctx context.Context) (bool, error) {
	return s.driver.IsInitialized(ctx)
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, u *User) (*User, error) {
	return s.driver.CreateUser(ctx, u)
}

func (s *Store) GetUser(ctx context.Context, id int32) (*User, error) {
	key := fmt.Sprintf("user:%d", id)
	if cached, ok := s.userCache.Get(key); ok {
		return cached.(*User), nil
	}
	u, err := s.driver.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.userCache.Set(key, u)
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, ids []int32) ([]*User, error) {
	return s.driver.ListUsers(ctx, ids)
}

func (s *Store) UpdateUserNotificationPreferences(ctx context.Context, id int32, prefs map[string]bool) error {
	if err := s.driver.UpdateUserNotificationPreferences(ctx, id, prefs); err != nil {
		return err
	}
	s.userCache.Delete(fmt.Sprintf("user:%d", id))
	return nil
}

// --- Projects ---

func (s *Store) CreateProject(ctx context.Context, name string) (*Project, error) {
	return s.driver.CreateProject(ctx, name)
}

func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	return s.driver.GetProject(ctx, id)
}

func (s *Store) UpdateProjectStatus(ctx context.Context, id int64, status ProjectStatus) error {
	return s.driver.UpdateProjectStatus(ctx, id, status)
}

// --- Roles (cached: read on every authz check) ---

func (s *Store) GetRole(ctx context.Context, id int64) (*ProjectRole, error) {
	key := fmt.Sprintf("role:id:%d", id)
	if cached, ok := s.roleCache.Get(key); ok {
		return cached.(*ProjectRole), nil
	}
	r, err := s.driver.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	s.roleCache.Set(key, r)
	return r, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (*ProjectRole, error) {
	key := fmt.Sprintf("role:name:%s", name)
	if cached, ok := s.roleCache.Get(key); ok {
		return cached.(*ProjectRole), nil
	}
	r, err := s.driver.GetRoleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.roleCache.Set(key, r)
	return r, nil
}

// --- Members ---

func (s *Store) CreateMember(ctx context.Context, m *ProjectMember) (*ProjectMember, error) {
	return s.driver.CreateMember(ctx, m)
}

func (s *Store) GetMember(ctx context.Context, project int64, user int32) (*ProjectMember, error) {
	return s.driver.GetMember(ctx, project, user)
}

func (s *Store) ListMembers(ctx context.Context, project int64) ([]*ProjectMember, error) {
	return s.driver.ListMembers(ctx, project)
}

func (s *Store) SetMemberActive(ctx context.Context, project int64, user int32, active bool) error {
	return s.driver.SetMemberActive(ctx, project, user, active)
}

// --- Task statuses (cached reference data) ---

func (s *Store) GetStatus(ctx context.Context, id int64) (*TaskStatus, error) {
	key := fmt.Sprintf("status:id:%d", id)
	if cached, ok := s.statusCache.Get(key); ok {
		return cached.(*TaskStatus), nil
	}
	st, err := s.driver.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	s.statusCache.Set(key, st)
	return st, nil
}

func (s *Store) GetStatusByName(ctx context.Context, name string) (*TaskStatus, error) {
	key := fmt.Sprintf("status:name:%s", name)
	if cached, ok := s.statusCache.Get(key); ok {
		return cached.(*TaskStatus), nil
	}
	st, err := s.driver.GetStatusByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.statusCache.Set(key, st)
	return st, nil
}

func (s *Store) ListStatuses(ctx context.Context) ([]*TaskStatus, error) {
	return s.driver.ListStatuses(ctx)
}

// --- Tasks ---

func (s *Store) CreateTask(ctx context.Context, create *CreateTask) (*Task, error) {
	return s.driver.CreateTask(ctx, create)
}

func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	return s.driver.GetTask(ctx, id)
}

func (s *Store) ListTasks(ctx context.Context, find *FindTask) ([]*Task, error) {
	return s.driver.ListTasks(ctx, find)
}

func (s *Store) UpdateTask(ctx context.Context, update *UpdateTask) (*Task, error) {
	return s.driver.UpdateTask(ctx, update)
}

func (s *Store) SetTaskStatus(ctx context.Context, id int64, status int64, startedAt, completedAt *time.Time) (*Task, error) {
	return s.driver.SetTaskStatus(ctx, id, status, startedAt, completedAt)
}

func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	return s.driver.DeleteTask(ctx, id)
}

// --- Dependencies ---

func (s *Store) CreateDependency(ctx context.Context, create *CreateDependency) (*Dependency, error) {
	return s.driver.CreateDependency(ctx, create)
}

func (s *Store) GetDependency(ctx context.Context, id int64) (*Dependency, error) {
	return s.driver.GetDependency(ctx, id)
}

func (s *Store) ListDependencies(ctx context.Context, find *FindDependency) ([]*Dependency, error) {
	return s.driver.ListDependencies(ctx, find)
}

func (s *Store) DeleteDependency(ctx context.Context, id int64) error {
	return s.driver.DeleteDependency(ctx, id)
}

// --- Dependency actions ---

func (s *Store) GetActionType(ctx context.Context, name string) (*DependencyActionType, error) {
	return s.driver.GetActionType(ctx, name)
}

func (s *Store) CreateDependencyAction(ctx context.Context, a *DependencyAction) (*DependencyAction, error) {
	return s.driver.CreateDependencyAction(ctx, a)
}

func (s *Store) GetDependencyAction(ctx context.Context, id int64) (*DependencyAction, error) {
	return s.driver.GetDependencyAction(ctx, id)
}

func (s *Store) ListDependencyActions(ctx context.Context, find *FindDependencyAction) ([]*DependencyAction, error) {
	return s.driver.ListDependencyActions(ctx, find)
}

// --- Events ---

func (s *Store) AppendEvent(ctx context.Context, e *Event) (*Event, error) {
	return s.driver.AppendEvent(ctx, e)
}

func (s *Store) ListEvents(ctx context.Context, find *FindEvent) ([]*Event, error) {
	return s.driver.ListEvents(ctx, find)
}

// --- Scheduled actions ---

func (s *Store) CreateScheduledAction(ctx context.Context, create *CreateScheduledAction) (*ScheduledAction, error) {
	return s.driver.CreateScheduledAction(ctx, create)
}

func (s *Store) ListScheduledActions(ctx context.Context, find *FindScheduledAction) ([]*ScheduledAction, error) {
	return s.driver.ListScheduledActions(ctx, find)
}

func (s *Store) CancelScheduledActions(ctx context.Context, task int64, actionType string) (int, error) {
	return s.driver.CancelScheduledActions(ctx, task, actionType)
}

func (s *Store) ClaimDueScheduledActions(ctx context.Context, before time.Time, limit int) ([]*ScheduledAction, error) {
	return s.driver.ClaimDueScheduledActions(ctx, before, limit)
}

func (s *Store) CompleteScheduledAction(ctx context.Context, id int64, executedAt time.Time) error {
	return s.driver.CompleteScheduledAction(ctx, id, executedAt)
}

func (s *Store) FailScheduledAction(ctx context.Context, id int64, reason string) error {
	return s.driver.FailScheduledAction(ctx, id, reason)
}

func (s *Store) ReapStuckScheduledActions(ctx context.Context, olderThan time.Time) (int, error) {
	return s.driver.ReapStuckScheduledActions(ctx, olderThan)
}
