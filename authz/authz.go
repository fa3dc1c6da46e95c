// Package authz implements the pure, side-effect-free permission predicates
// every state-changing TaskEngine and ActionEvaluator operation checks
// before writing anything. It generalizes permissions.go's role/superuser
// short-circuit pattern from the teacher's Admin/Host roles to the
// ProjectRole capability bundle.
package authz

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/taskgraph/store"
)

// Checker resolves membership and roles against the Store to answer the
// capability predicates. It holds no state of its own.
type Checker struct {
	store *store.Store
}

func NewChecker(s *store.Store) *Checker {
	return &Checker{store: s}
}

// roleFor returns the ProjectRole governing user's membership in project,
// or nil if the user is not an active member.
func (c *Checker) roleFor(ctx context.Context, user int32, project int64) (*store.ProjectRole, error) {
	member, err := c.store.GetMember(ctx, project, user)
	if err != nil {
		return nil, nil
	}
	if !member.IsActive {
		return nil, nil
	}
	return c.store.GetRole(ctx, member.Role)
}

// IsMember reports whether user is an active member of project.
func (c *Checker) IsMember(ctx context.Context, user int32, project int64) (bool, error) {
	role, err := c.roleFor(ctx, user, project)
	if err != nil {
		return false, errors.Wrap(err, "failed to resolve membership")
	}
	return role != nil, nil
}

// Role returns user's role in project, or nil if they are not a member.
func (c *Checker) Role(ctx context.Context, user int32, project int64) (*store.ProjectRole, error) {
	return c.roleFor(ctx, user, project)
}

func (c *Checker) CanManageMembers(ctx context.Context, user int32, project int64) (bool, error) {
	role, err := c.roleFor(ctx, user, project)
	if err != nil || role == nil {
		return false, err
	}
	return role.ManageMembers, nil
}

func (c *Checker) CanEditProject(ctx context.Context, user int32, project int64) (bool, error) {
	role, err := c.roleFor(ctx, user, project)
	if err != nil || role == nil {
		return false, err
	}
	return role.EditProject, nil
}

func (c *Checker) CanDeleteProject(ctx context.Context, user int32, project int64) (bool, error) {
	role, err := c.roleFor(ctx, user, project)
	if err != nil || role == nil {
		return false, err
	}
	return role.DeleteProject, nil
}

func (c *Checker) CanCreateTasks(ctx context.Context, user int32, project int64) (bool, error) {
	role, err := c.roleFor(ctx, user, project)
	if err != nil || role == nil {
		return false, err
	}
	return role.CreateTasks, nil
}

// CanEditTask reports whether user may edit task: either the project grants
// edit_any_task, or it grants edit_own_task and user is the task's creator
// or assignee.
func (c *Checker) CanEditTask(ctx context.Context, user int32, task *store.Task) (bool, error) {
	role, err := c.roleFor(ctx, user, task.Project)
	if err != nil || role == nil {
		return false, err
	}
	if role.EditAnyTask {
		return true, nil
	}
	if !role.EditOwnTask {
		return false, nil
	}
	return user == task.Creator || (task.Assignee != nil && user == *task.Assignee), nil
}

// CanDeleteTask reports whether user may delete task: either the project
// grants delete_any_task, or it grants delete_own_task and user created it.
func (c *Checker) CanDeleteTask(ctx context.Context, user int32, task *store.Task) (bool, error) {
	role, err := c.roleFor(ctx, user, task.Project)
	if err != nil || role == nil {
		return false, err
	}
	if role.DeleteAnyTask {
		return true, nil
	}
	return role.DeleteOwnTask && user == task.Creator, nil
}

// CanCreateDependencies reports whether user may attach a dependency whose
// source is sourceTask: the project must grant create_dependencies, and
// unless the user also holds edit_any_task, they must be the source task's
// creator or assignee.
func (c *Checker) CanCreateDependencies(ctx context.Context, user int32, sourceTask *store.Task) (bool, error) {
	role, err := c.roleFor(ctx, user, sourceTask.Project)
	if err != nil || role == nil {
		return false, err
	}
	if !role.CreateDependencies {
		return false, nil
	}
	if role.EditAnyTask {
		return true, nil
	}
	return user == sourceTask.Creator || (sourceTask.Assignee != nil && user == *sourceTask.Assignee), nil
}

// CanDeleteDependencies reports whether user may delete any dependency in
// project.
func (c *Checker) CanDeleteDependencies(ctx context.Context, user int32, project int64) (bool, error) {
	role, err := c.roleFor(ctx, user, project)
	if err != nil || role == nil {
		return false, err
	}
	return role.DeleteDependencies, nil
}
