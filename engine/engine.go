// Package engine implements the TaskEngine (spec C5): the reactive state
// machine that creates and mutates tasks and dependencies, enforces
// authorization and graph invariants before every write, appends the
// immutable event log, and fans out to the ActionEvaluator on terminal
// status transitions. Grounded on TaskService.py's create_task/update_task/
// change_task_status/create_dependency/delete_dependency.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/taskgraph/authz"
	"github.com/hrygo/taskgraph/engine/actioneval"
	"github.com/hrygo/taskgraph/internal/apperrors"
	"github.com/hrygo/taskgraph/internal/metrics"
	"github.com/hrygo/taskgraph/store"
	"github.com/hrygo/taskgraph/taskgraph"
)

// Exported aliases so callers outside this package don't need to import
// engine/actioneval directly for the result shapes engine returns.
type (
	ActionOutcome       = actioneval.Outcome
	StatusChangeResult  = actioneval.StatusChangeResult
)

const (
	taskNameMinLen = 1
	taskNameMaxLen = 500
)

// Engine orchestrates every state-changing task/dependency operation.
type Engine struct {
	store     *store.Store
	authz     *authz.Checker
	graphs    *taskgraph.Loader
	evaluator *actioneval.Evaluator
	metrics   *metrics.Exporter
	now       func() time.Time
}

// New wires an Engine and its ActionEvaluator together, breaking the
// construction cycle described in engine/actioneval: ev is built first
// (store, notifier, metrics only), then New sets ev's StatusChanger to the
// Engine it returns.
func New(s *store.Store, az *authz.Checker, graphs *taskgraph.Loader, ev *actioneval.Evaluator, m *metrics.Exporter) *Engine {
	e := &Engine{store: s, authz: az, graphs: graphs, evaluator: ev, metrics: m, now: time.Now}
	ev.SetStatusChanger(e)
	return e
}

// SetClock overrides the engine's notion of "now", for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// CreateTaskParams carries the optional fields of create_task.
type CreateTaskParams struct {
	Description string
	Assignee    *int32
	Deadline    *time.Time
	Priority    store.Priority
	Metadata    []byte
}

// CreateTask requires can_create_tasks on project. Name is trimmed and
// length-validated; a provided assignee must be an active member; a
// provided deadline schedules T-24h and T-1h reminders (past ones skipped).
func (e *Engine) CreateTask(ctx context.Context, project int64, name string, creator int32, params CreateTaskParams) (*store.Task, error) {
	can, err := e.authz.CanCreateTasks(ctx, creator, project)
	if err != nil {
		return nil, apperrors.Internalf("authz check failed: %w", err)
	}
	if !can {
		return nil, apperrors.Forbiddenf("user %d may not create tasks in project %d", creator, project)
	}

	name, err = validateName(name)
	if err != nil {
		return nil, err
	}

	if params.Assignee != nil {
		if err := e.requireActiveMember(ctx, project, *params.Assignee); err != nil {
			return nil, err
		}
	}

	create := &store.CreateTask{
		Project:     project,
		Name:        name,
		Description: params.Description,
		Creator:     creator,
		Assignee:    params.Assignee,
		Deadline:    params.Deadline,
		Priority:    params.Priority,
		Metadata:    params.Metadata,
	}

	task, err := withRetry(ctx, func() (*store.Task, error) {
		return e.store.CreateTask(ctx, create)
	})
	e.recordOp("create_task", err)
	if err != nil {
		return nil, apperrors.Internalf("failed to create task: %w", err)
	}

	if err := e.appendEvent(ctx, task.Project, &task.ID, &creator, store.EventCreated, nil, &task.Name); err != nil {
		slog.Error("engine: failed to append created event", "task", task.ID, "error", err)
	}

	if params.Deadline != nil {
		e.scheduleDeadlineReminders(ctx, task, *params.Deadline)
	}

	if e.graphs != nil {
		e.graphs.Invalidate(project)
	}
	return task, nil
}

// UpdateTaskParams carries the mutable, settable-to-null fields of
// update_task; a nil field leaves that attribute unchanged.
type UpdateTaskParams struct {
	Name        *string
	Description *string
	Assignee    **int32
	Deadline    **time.Time
	Priority    *store.Priority
	PositionX   *float64
	PositionY   *float64
	Metadata    []byte
}

// UpdateTask requires can_edit_task. Reassigning to a non-member fails. A
// deadline change cancels and re-schedules the two deadline reminders.
func (e *Engine) UpdateTask(ctx context.Context, taskID int64, actor int32, params UpdateTaskParams) (*store.Task, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, apperrors.NotFoundf("task %d not found: %w", taskID, err)
	}

	can, err := e.authz.CanEditTask(ctx, actor, task)
	if err != nil {
		return nil, apperrors.Internalf("authz check failed: %w", err)
	}
	if !can {
		return nil, apperrors.Forbiddenf("user %d may not edit task %d", actor, taskID)
	}

	if params.Name != nil {
		trimmed, err := validateName(*params.Name)
		if err != nil {
			return nil, err
		}
		params.Name = &trimmed
	}

	if params.Assignee != nil && *params.Assignee != nil {
		if err := e.requireActiveMember(ctx, task.Project, **params.Assignee); err != nil {
			return nil, err
		}
	}

	deadlineChanged := params.Deadline != nil
	update := &store.UpdateTask{
		ID:          taskID,
		Name:        params.Name,
		Description: params.Description,
		Assignee:    params.Assignee,
		Deadline:    params.Deadline,
		Priority:    params.Priority,
		PositionX:   params.PositionX,
		PositionY:   params.PositionY,
		Metadata:    params.Metadata,
	}

	updated, err := withRetry(ctx, func() (*store.Task, error) {
		return e.store.UpdateTask(ctx, update)
	})
	e.recordOp("update_task", err)
	if err != nil {
		return nil, apperrors.Internalf("failed to update task %d: %w", taskID, err)
	}

	if err := e.appendEvent(ctx, updated.Project, &updated.ID, &actor, store.EventUpdated, nil, nil); err != nil {
		slog.Error("engine: failed to append updated event", "task", updated.ID, "error", err)
	}

	if deadlineChanged {
		if _, err := e.store.CancelScheduledActions(ctx, taskID, "deadline_approaching"); err != nil {
			slog.Error("engine: failed to cancel stale deadline reminders", "task", taskID, "error", err)
		}
		if updated.Deadline != nil {
			e.scheduleDeadlineReminders(ctx, updated, *updated.Deadline)
		}
	}

	return updated, nil
}

// ChangeTaskStatus requires can_edit_task; reopening a final-status task
// (final -> non-final) additionally requires edit_any_task. Fires the
// ActionEvaluator over every outgoing edge exactly when the transition
// crosses ¬old.is_final ∧ new.is_final.
func (e *Engine) ChangeTaskStatus(ctx context.Context, taskID int64, newStatusName string, actor int32) (*StatusChangeResult, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, apperrors.NotFoundf("task %d not found: %w", taskID, err)
	}

	can, err := e.authz.CanEditTask(ctx, actor, task)
	if err != nil {
		return nil, apperrors.Internalf("authz check failed: %w", err)
	}
	if !can {
		return nil, apperrors.Forbiddenf("user %d may not edit task %d", actor, taskID)
	}

	oldStatus, err := e.store.GetStatus(ctx, task.Status)
	if err != nil {
		return nil, apperrors.Internalf("failed to resolve current status of task %d: %w", taskID, err)
	}
	newStatus, err := e.store.GetStatusByName(ctx, newStatusName)
	if err != nil {
		return nil, apperrors.Validationf("unknown task status %q: %w", newStatusName, err)
	}

	if oldStatus.ID == newStatus.ID {
		return &StatusChangeResult{Task: task, OldStatus: oldStatus, NewStatus: newStatus, StatusChanged: false}, nil
	}

	if oldStatus.IsFinal && !newStatus.IsFinal {
		role, err := e.authz.Role(ctx, actor, task.Project)
		if err != nil {
			return nil, apperrors.Internalf("authz role lookup failed: %w", err)
		}
		if role == nil || !role.EditAnyTask {
			return nil, apperrors.Forbiddenf("reopening task %d requires edit_any_task", taskID)
		}
	}

	startedAt := task.StartedAt
	if newStatus.Name == store.StatusInProgress && startedAt == nil {
		now := e.now()
		startedAt = &now
	}
	completedAt := task.CompletedAt
	if newStatus.IsFinal && completedAt == nil {
		now := e.now()
		completedAt = &now
	}

	updated, err := withRetry(ctx, func() (*store.Task, error) {
		return e.store.SetTaskStatus(ctx, taskID, newStatus.ID, startedAt, completedAt)
	})
	if e.metrics != nil {
		e.metrics.RecordStatusTransition(oldStatus.Name, newStatus.Name)
	}
	e.recordOp("change_task_status", err)
	if err != nil {
		return nil, apperrors.Internalf("failed to set status of task %d: %w", taskID, err)
	}

	oldName, newName := oldStatus.Name, newStatus.Name
	if err := e.appendEvent(ctx, updated.Project, &updated.ID, &actor, store.EventStatusChanged, &oldName, &newName); err != nil {
		slog.Error("engine: failed to append status_changed event", "task", updated.ID, "error", err)
	}

	result := &StatusChangeResult{Task: updated, OldStatus: oldStatus, NewStatus: newStatus, StatusChanged: true}

	if !oldStatus.IsFinal && newStatus.IsFinal {
		result.ActionsExecuted = e.fireOutgoingEdges(ctx, updated, actor)
	}

	if e.graphs != nil {
		e.graphs.Invalidate(updated.Project)
	}
	return result, nil
}

// CreateDependency requires can_create_dependencies on source. It enforces
// the §3 Dependency invariants and, via TaskGraph, acyclicity. If source is
// already final, the ActionEvaluator runs immediately for the new edge.
func (e *Engine) CreateDependency(ctx context.Context, project, source, target int64, depType, description string, actor int32) (*store.Dependency, error) {
	sourceTask, err := e.store.GetTask(ctx, source)
	if err != nil {
		return nil, apperrors.NotFoundf("source task %d not found: %w", source, err)
	}
	targetTask, err := e.store.GetTask(ctx, target)
	if err != nil {
		return nil, apperrors.NotFoundf("target task %d not found: %w", target, err)
	}

	can, err := e.authz.CanCreateDependencies(ctx, actor, sourceTask)
	if err != nil {
		return nil, apperrors.Internalf("authz check failed: %w", err)
	}
	if !can {
		return nil, apperrors.Forbiddenf("user %d may not create dependencies from task %d", actor, source)
	}

	if sourceTask.Project != project || targetTask.Project != project {
		return nil, apperrors.Validationf("source and target tasks must belong to project %d", project)
	}
	if source == target {
		return nil, apperrors.Conflictf(apperrors.WouldCreateCycle, "a task cannot depend on itself")
	}

	existing, err := e.store.ListDependencies(ctx, &store.FindDependency{Project: &project, SourceTask: &source, TargetTask: &target})
	if err != nil {
		return nil, apperrors.Internalf("failed to check for duplicate dependency: %w", err)
	}
	if len(existing) > 0 {
		return nil, apperrors.Conflictf("duplicate_dependency", "dependency %d -> %d already exists", source, target)
	}

	graph, err := e.graphs.Load(ctx, project)
	if err != nil {
		return nil, apperrors.Internalf("failed to load project graph: %w", err)
	}
	if graph.WouldCreateCycle(source, target) {
		return nil, apperrors.Conflictf(apperrors.WouldCreateCycle, "dependency %d -> %d would create a cycle", source, target)
	}

	dep, err := withRetry(ctx, func() (*store.Dependency, error) {
		return e.store.CreateDependency(ctx, &store.CreateDependency{
			Project: project, SourceTask: source, TargetTask: target,
			DependencyType: depType, Description: description, CreatedBy: actor,
		})
	})
	e.recordOp("create_dependency", err)
	if err != nil {
		return nil, apperrors.Internalf("failed to create dependency: %w", err)
	}

	if err := e.appendEvent(ctx, project, &source, &actor, store.EventDependencyAdded, nil, nil); err != nil {
		slog.Error("engine: failed to append dependency_added event", "dependency", dep.ID, "error", err)
	}

	e.graphs.Invalidate(project)

	sourceStatus, err := e.store.GetStatus(ctx, sourceTask.Status)
	if err == nil && sourceStatus.IsFinal {
		e.evaluator.Evaluate(ctx, dep, actioneval.TriggerTaskCompleted, actor)
	}

	return dep, nil
}

// DeleteDependency requires can_delete_dependencies in the dependency's
// project; writes dependency_removed on the source task.
func (e *Engine) DeleteDependency(ctx context.Context, depID int64, actor int32) error {
	dep, err := e.store.GetDependency(ctx, depID)
	if err != nil {
		return apperrors.NotFoundf("dependency %d not found: %w", depID, err)
	}

	can, err := e.authz.CanDeleteDependencies(ctx, actor, dep.Project)
	if err != nil {
		return apperrors.Internalf("authz check failed: %w", err)
	}
	if !can {
		return apperrors.Forbiddenf("user %d may not delete dependencies in project %d", actor, dep.Project)
	}

	if err := withRetryErr(ctx, func() error { return e.store.DeleteDependency(ctx, depID) }); err != nil {
		e.recordOp("delete_dependency", err)
		return apperrors.Internalf("failed to delete dependency %d: %w", depID, err)
	}
	e.recordOp("delete_dependency", nil)

	if err := e.appendEvent(ctx, dep.Project, &dep.SourceTask, &actor, store.EventDependencyRemoved, nil, nil); err != nil {
		slog.Error("engine: failed to append dependency_removed event", "dependency", depID, "error", err)
	}

	e.graphs.Invalidate(dep.Project)
	return nil
}

// TaskNode is one task within a ProjectGraph projection, annotated with its
// resolved status name and current readiness.
type TaskNode struct {
	Task       *store.Task
	StatusName string
	Ready      bool
}

// EdgeNode is one dependency within a ProjectGraph projection, annotated
// with the count of active DependencyActions configured on it.
type EdgeNode struct {
	Dependency  *store.Dependency
	ActionCount int
}

// ProjectGraphView is the read-only whole-project projection returned by
// ProjectGraph: every task (with computed readiness) and every edge (with
// its action count), suitable for a debug surface or test assertions.
type ProjectGraphView struct {
	Project int64
	Tasks   []TaskNode
	Edges   []EdgeNode
}

// ProjectGraph returns a read-only snapshot of project's whole graph:
// every task with its resolved status name and readiness, and every edge
// with its configured action count. Supplemented from TaskService.py's
// get_project_graph; read-only, no new invariants.
func (e *Engine) ProjectGraph(ctx context.Context, project int64) (*ProjectGraphView, error) {
	g, err := e.graphs.Load(ctx, project)
	if err != nil {
		return nil, err
	}

	view := &ProjectGraphView{Project: project}
	for _, t := range g.Tasks {
		st := g.Statuses[t.Status]
		name := ""
		if st != nil {
			name = st.Name
		}
		view.Tasks = append(view.Tasks, TaskNode{Task: t, StatusName: name, Ready: g.IsReady(t.ID)})
	}

	deps, err := e.store.ListDependencies(ctx, &store.FindDependency{Project: &project})
	if err != nil {
		return nil, apperrors.Internalf("failed to list dependencies for project %d: %w", project, err)
	}
	active := true
	for _, d := range deps {
		actions, err := e.store.ListDependencyActions(ctx, &store.FindDependencyAction{Dependency: &d.ID, IsActive: &active})
		if err != nil {
			return nil, apperrors.Internalf("failed to list actions for dependency %d: %w", d.ID, err)
		}
		view.Edges = append(view.Edges, EdgeNode{Dependency: d, ActionCount: len(actions)})
	}
	return view, nil
}

// TaskStats is the aggregate summary returned by TaskStats/UserTaskStats:
// counts by status name, the overdue count, and the fraction of tasks
// whose status is "completed".
type TaskStats struct {
	Total          int
	ByStatus       map[string]int
	Overdue        int
	CompletionRate float64
}

// TaskStats computes aggregate counts for project: tasks by status,
// the overdue count (deadline passed, not yet completed), and the
// completion rate. Supplemented from TaskService.py's get_task_stats;
// read-only Store-backed aggregation, no new invariants.
func (e *Engine) TaskStats(ctx context.Context, project int64) (*TaskStats, error) {
	tasks, err := e.store.ListTasks(ctx, &store.FindTask{Project: &project})
	if err != nil {
		return nil, apperrors.Internalf("failed to list tasks for project %d: %w", project, err)
	}
	return e.aggregateStats(ctx, tasks)
}

// UserTaskStats computes the same aggregate counts as TaskStats, scoped to
// tasks assigned to user rather than to a whole project. Supplemented from
// TaskService.py's get_user_task_stats.
func (e *Engine) UserTaskStats(ctx context.Context, user int32) (*TaskStats, error) {
	tasks, err := e.store.ListTasks(ctx, &store.FindTask{Assignee: &user})
	if err != nil {
		return nil, apperrors.Internalf("failed to list tasks for user %d: %w", user, err)
	}
	return e.aggregateStats(ctx, tasks)
}

func (e *Engine) aggregateStats(ctx context.Context, tasks []*store.Task) (*TaskStats, error) {
	stats := &TaskStats{ByStatus: make(map[string]int)}
	now := e.now()
	completed := 0
	for _, t := range tasks {
		st, err := e.store.GetStatus(ctx, t.Status)
		if err != nil {
			return nil, apperrors.Internalf("failed to resolve status %d: %w", t.Status, err)
		}
		stats.ByStatus[st.Name]++
		stats.Total++
		if st.Name == store.StatusCompleted {
			completed++
		}
		if t.Deadline != nil && t.Deadline.Before(now) && t.CompletedAt == nil {
			stats.Overdue++
		}
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(completed) / float64(stats.Total)
	}
	return stats, nil
}

// fireOutgoingEdges runs the ActionEvaluator over every edge leaving task,
// flattening per-edge outcomes into one ordered list. A single edge's
// evaluator error becomes an Internal-category failure outcome rather than
// aborting the remaining edges (§7 propagation policy).
func (e *Engine) fireOutgoingEdges(ctx context.Context, task *store.Task, actor int32) []ActionOutcome {
	deps, err := e.store.ListDependencies(ctx, &store.FindDependency{Project: &task.Project, SourceTask: &task.ID})
	if err != nil {
		slog.Error("engine: failed to list outgoing dependencies", "task", task.ID, "error", err)
		return nil
	}

	var outcomes []ActionOutcome
	for _, dep := range deps {
		result, err := e.evaluator.Evaluate(ctx, dep, actioneval.TriggerTaskCompleted, actor)
		if err != nil {
			outcomes = append(outcomes, ActionOutcome{Status: actioneval.StatusFailed, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, result...)
	}
	return outcomes
}

// scheduleDeadlineReminders creates the T-24h and T-1h ScheduledActions for
// a task's deadline, skipping any that already fall in the past.
func (e *Engine) scheduleDeadlineReminders(ctx context.Context, task *store.Task, deadline time.Time) {
	now := e.now()
	reminders := []struct {
		before      time.Duration
		hoursBefore string
	}{
		{24 * time.Hour, "24"},
		{1 * time.Hour, "1"},
	}
	for _, r := range reminders {
		due := deadline.Add(-r.before)
		if due.Before(now) {
			continue
		}
		payload := []byte(fmt.Sprintf(`{"hours_before":"%s"}`, r.hoursBefore))
		if _, err := e.store.CreateScheduledAction(ctx, &store.CreateScheduledAction{
			Project:      task.Project,
			Task:         &task.ID,
			ActionType:   "deadline_approaching",
			ScheduledFor: due,
			Payload:      payload,
		}); err != nil {
			slog.Error("engine: failed to schedule deadline reminder", "task", task.ID, "error", err)
		}
	}
}

func (e *Engine) requireActiveMember(ctx context.Context, project int64, user int32) error {
	member, err := e.store.GetMember(ctx, project, user)
	if err != nil {
		return apperrors.Validationf("user %d is not a member of project %d", user, project)
	}
	if !member.IsActive {
		return apperrors.Validationf("user %d is not an active member of project %d", user, project)
	}
	return nil
}

func (e *Engine) appendEvent(ctx context.Context, project int64, task *int64, user *int32, eventType store.EventType, oldValue, newValue *string) error {
	_, err := e.store.AppendEvent(ctx, &store.Event{
		Project:   project,
		Task:      task,
		User:      user,
		EventType: eventType,
		OldValue:  oldValue,
		NewValue:  newValue,
	})
	return err
}

func (e *Engine) recordOp(op string, err error) {
	if e.metrics != nil {
		e.metrics.RecordTaskOperation(op, err)
	}
}

func validateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < taskNameMinLen || len(trimmed) > taskNameMaxLen {
		return "", apperrors.Validationf("task name must be between %d and %d characters, got %d", taskNameMinLen, taskNameMaxLen, len(trimmed))
	}
	return trimmed, nil
}

// withRetry retries a Store operation up to three attempts total with a
// short linear backoff, matching §7's "Store contention is retried with
// bounded backoff (3 attempts) at the engine boundary". The Store layer
// doesn't classify errors, so this treats every error as potentially
// transient and retries it up to the attempt budget; only a cancelled
// context stops the retries early.
func withRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	const maxAttempts = 3
	var zero T
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == maxAttempts-1 {
			break
		}
		delay := time.Duration(attempt+1) * 20 * time.Millisecond
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

func withRetryErr(ctx context.Context, op func() error) error {
	_, err := withRetry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
