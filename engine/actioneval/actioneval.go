// Package actioneval implements the dependency-action evaluator (spec C6):
// given a Dependency whose source task just reached a final status, it
// dispatches the dependency's ordered, active DependencyAction rows —
// immediately through a Notifier, or deferred into a ScheduledAction — and
// never aborts the batch on a single action's failure. Grounded on
// TaskService.py's execute_dependency_actions/execute_single_action.
package actioneval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/taskgraph/internal/apperrors"
	"github.com/hrygo/taskgraph/internal/metrics"
	"github.com/hrygo/taskgraph/notifier"
	"github.com/hrygo/taskgraph/store"
)

// Trigger events identify why an edge is being evaluated.
const (
	TriggerTaskCompleted = "task_completed"
	TriggerDelayed       = "delayed"
)

// Outcome statuses reported per dispatched action.
const (
	StatusExecuted      = "executed"
	StatusScheduled     = "scheduled"
	StatusSkipped       = "skipped"
	StatusFailed        = "failed"
	StatusNotImplemented = "not_implemented"
)

// StatusChanger is the slice of TaskEngine the evaluator needs to dispatch
// change_status actions. Defined here (rather than imported from package
// engine) so engine can depend on actioneval without a cycle; package engine
// satisfies this interface with its own ChangeTaskStatus.
type StatusChanger interface {
	ChangeTaskStatus(ctx context.Context, taskID int64, newStatusName string, actor int32) (*StatusChangeResult, error)
}

// StatusChangeResult mirrors the structured record spec §4.5 requires
// change_task_status to return.
type StatusChangeResult struct {
	Task            *store.Task
	OldStatus       *store.TaskStatus
	NewStatus       *store.TaskStatus
	ActionsExecuted []Outcome
	StatusChanged   bool
}

// Outcome is one dispatched DependencyAction's result, part of the
// actions_executed[] list spec §4.5/§4.6 requires.
type Outcome struct {
	ActionID     int64
	ActionType   string
	Status       string
	ScheduledFor *time.Time
	TargetUser   *int32
	NewStatus    string
	Reason       string
	Error        string
}

// Evaluator dispatches DependencyAction rows. Changer is set after
// construction (see engine.New) to break the engine<->actioneval
// construction cycle; Evaluate must not be called before it is set.
type Evaluator struct {
	store    *store.Store
	notifier notifier.Notifier
	changer  StatusChanger
	metrics  *metrics.Exporter
	now      func() time.Time
}

func New(s *store.Store, n notifier.Notifier, m *metrics.Exporter) *Evaluator {
	return &Evaluator{store: s, notifier: n, metrics: m, now: time.Now}
}

// SetStatusChanger wires the TaskEngine instance that owns this Evaluator,
// needed only by the change_status action type's recursive dispatch.
func (e *Evaluator) SetStatusChanger(c StatusChanger) { e.changer = c }

// SetClock overrides the evaluator's notion of "now", for tests.
func (e *Evaluator) SetClock(now func() time.Time) { e.now = now }

// Evaluate runs every active DependencyAction on dep, in execute_order,
// dispatching immediate actions and enqueuing delayed ones. It returns one
// Outcome per action and never returns early on a single action's failure.
func (e *Evaluator) Evaluate(ctx context.Context, dep *store.Dependency, trigger string, triggeredBy int32) ([]Outcome, error) {
	trueVal := true
	actions, err := e.store.ListDependencyActions(ctx, &store.FindDependencyAction{Dependency: &dep.ID, IsActive: &trueVal})
	if err != nil {
		return nil, apperrors.Internalf("failed to list dependency actions for dependency %d: %w", dep.ID, err)
	}

	outcomes := make([]Outcome, 0, len(actions))
	for _, action := range actions {
		if action.DelayMinutes > 0 {
			outcomes = append(outcomes, e.schedule(ctx, dep, action, trigger, triggeredBy))
			continue
		}
		outcomes = append(outcomes, e.dispatch(ctx, dep, action, trigger, triggeredBy))
	}
	return outcomes, nil
}

// EvaluateKnown re-dispatches action (already resolved by the caller) in the
// context of dep, the standard entry point for the Scheduler's
// delayed_notification handling.
func (e *Evaluator) EvaluateKnown(ctx context.Context, dep *store.Dependency, action *store.DependencyAction, triggeredBy int32) Outcome {
	return e.dispatch(ctx, dep, action, TriggerDelayed, triggeredBy)
}

func (e *Evaluator) schedule(ctx context.Context, dep *store.Dependency, action *store.DependencyAction, trigger string, triggeredBy int32) Outcome {
	due := e.now().Add(time.Duration(action.DelayMinutes) * time.Minute)
	payload := []byte(fmt.Sprintf(`{"action_id":%d,"trigger_event":%q,"triggered_by":%d}`, action.ID, trigger, triggeredBy))

	target := dep.TargetTask
	_, err := e.store.CreateScheduledAction(ctx, &store.CreateScheduledAction{
		Project:          dep.Project,
		Task:             &target,
		ActionType:       "delayed_notification",
		ScheduledFor:     due,
		Payload:          payload,
		DependencyAction: &action.ID,
	})
	if e.metrics != nil {
		status := StatusScheduled
		if err != nil {
			status = StatusFailed
		}
		e.metrics.RecordActionDispatch(action.ActionType, status, 0)
	}
	if err != nil {
		return Outcome{ActionID: action.ID, ActionType: action.ActionType, Status: StatusFailed, Error: err.Error()}
	}
	return Outcome{ActionID: action.ID, ActionType: action.ActionType, Status: StatusScheduled, ScheduledFor: &due}
}

func (e *Evaluator) dispatch(ctx context.Context, dep *store.Dependency, action *store.DependencyAction, trigger string, triggeredBy int32) Outcome {
	start := time.Now()
	outcome := Outcome{ActionID: action.ID, ActionType: action.ActionType, Status: StatusExecuted}

	defer func() {
		if e.metrics != nil {
			e.metrics.RecordActionDispatch(action.ActionType, outcome.Status, time.Since(start))
		}
	}()

	sourceTask, err := e.store.GetTask(ctx, dep.SourceTask)
	if err != nil {
		return fail(outcome, fmt.Errorf("load source task %d: %w", dep.SourceTask, err))
	}
	targetTask, err := e.store.GetTask(ctx, dep.TargetTask)
	if err != nil {
		return fail(outcome, fmt.Errorf("load target task %d: %w", dep.TargetTask, err))
	}
	project, err := e.store.GetProject(ctx, dep.Project)
	if err != nil {
		return fail(outcome, fmt.Errorf("load project %d: %w", dep.Project, err))
	}

	switch action.ActionType {
	case store.ActionNotifyAssignee:
		return e.notifyAssignee(ctx, action, targetTask, project, outcome)
	case store.ActionNotifyCreator:
		return e.notifyCreator(ctx, action, sourceTask, project, outcome)
	case store.ActionNotifyCustom:
		return e.notifyCustom(ctx, action, targetTask, project, outcome)
	case store.ActionChangeStatus:
		return e.changeStatus(ctx, action, dep, triggeredBy, outcome)
	case store.ActionCreateSubtask:
		outcome.Status = StatusNotImplemented
		return outcome
	default:
		return fail(outcome, fmt.Errorf("unknown action type %q", action.ActionType))
	}
}

func (e *Evaluator) notifyAssignee(ctx context.Context, action *store.DependencyAction, target *store.Task, project *store.Project, outcome Outcome) Outcome {
	if target.Assignee == nil {
		outcome.Status = StatusSkipped
		outcome.Reason = "target task has no assignee"
		return outcome
	}
	user, err := e.store.GetUser(ctx, *target.Assignee)
	if err != nil {
		return fail(outcome, fmt.Errorf("load assignee %d: %w", *target.Assignee, err))
	}
	if !preferenceAllows(user, "dependency_ready") {
		outcome.Status = StatusSkipped
		outcome.Reason = "recipient disabled dependency_ready notifications"
		return outcome
	}

	template := "Task {task_name} is ready to start"
	if action.MessageTemplate != nil && *action.MessageTemplate != "" {
		template = *action.MessageTemplate
	}
	message := substitute(template, target.Name, project.Name, user.Username)

	if err := e.notifier.Notify(ctx, user.ID, notifier.KindTaskReady, map[string]string{
		"message":      message,
		"task_id":      fmt.Sprint(target.ID),
		"task_name":    target.Name,
		"project_name": project.Name,
	}); err != nil {
		return fail(outcome, err)
	}
	outcome.TargetUser = &user.ID
	return outcome
}

func (e *Evaluator) notifyCreator(ctx context.Context, action *store.DependencyAction, source *store.Task, project *store.Project, outcome Outcome) Outcome {
	user, err := e.store.GetUser(ctx, source.Creator)
	if err != nil {
		return fail(outcome, fmt.Errorf("load creator %d: %w", source.Creator, err))
	}
	if !preferenceAllows(user, "task_completed") {
		outcome.Status = StatusSkipped
		outcome.Reason = "recipient disabled task_completed notifications"
		return outcome
	}

	template := "Task {task_name} completed"
	if action.MessageTemplate != nil && *action.MessageTemplate != "" {
		template = *action.MessageTemplate
	}
	message := substitute(template, source.Name, project.Name, user.Username)

	if err := e.notifier.Notify(ctx, user.ID, notifier.KindTaskCompleted, map[string]string{
		"message":      message,
		"task_id":      fmt.Sprint(source.ID),
		"task_name":    source.Name,
		"project_name": project.Name,
	}); err != nil {
		return fail(outcome, err)
	}
	outcome.TargetUser = &user.ID
	return outcome
}

func (e *Evaluator) notifyCustom(ctx context.Context, action *store.DependencyAction, target *store.Task, project *store.Project, outcome Outcome) Outcome {
	if action.TargetUser == nil {
		return fail(outcome, fmt.Errorf("notify_custom action %d has no target_user", action.ID))
	}
	user, err := e.store.GetUser(ctx, *action.TargetUser)
	if err != nil {
		return fail(outcome, fmt.Errorf("load target user %d: %w", *action.TargetUser, err))
	}

	template := "Notification about task {task_name}"
	if action.MessageTemplate != nil && *action.MessageTemplate != "" {
		template = *action.MessageTemplate
	}
	message := substitute(template, target.Name, project.Name, user.Username)

	if err := e.notifier.Notify(ctx, user.ID, notifier.KindCustom, map[string]string{
		"message":      message,
		"task_id":      fmt.Sprint(target.ID),
		"task_name":    target.Name,
		"project_name": project.Name,
	}); err != nil {
		return fail(outcome, err)
	}
	outcome.TargetUser = &user.ID
	return outcome
}

func (e *Evaluator) changeStatus(ctx context.Context, action *store.DependencyAction, dep *store.Dependency, triggeredBy int32, outcome Outcome) Outcome {
	if action.TargetStatus == nil {
		return fail(outcome, fmt.Errorf("change_status action %d has no target_status", action.ID))
	}
	status, err := e.store.GetStatus(ctx, *action.TargetStatus)
	if err != nil {
		return fail(outcome, fmt.Errorf("load target status %d: %w", *action.TargetStatus, err))
	}
	if e.changer == nil {
		return fail(outcome, fmt.Errorf("actioneval: no StatusChanger wired"))
	}
	result, err := e.changer.ChangeTaskStatus(ctx, dep.TargetTask, status.Name, triggeredBy)
	if err != nil {
		return fail(outcome, err)
	}
	outcome.NewStatus = result.NewStatus.Name
	return outcome
}

func fail(outcome Outcome, err error) Outcome {
	outcome.Status = StatusFailed
	outcome.Error = err.Error()
	return outcome
}

// preferenceAllows reports whether user's NotificationPreferences permit
// kind; absent keys default to allowed (TaskService.py:
// settings.get(key, True)).
func preferenceAllows(user *store.User, key string) bool {
	if user.NotificationPreferences == nil {
		return true
	}
	allowed, ok := user.NotificationPreferences[key]
	if !ok {
		return true
	}
	return allowed
}

// substitute performs the pure string replacement of §4.6's template
// grammar: {task_name}, {project_name}, {user}. Keys not present in the
// template are left untouched; the template's own unknown placeholders
// render literally, unreplaced.
func substitute(template, taskName, projectName, user string) string {
	return strings.NewReplacer(
		"{task_name}", taskName,
		"{project_name}", projectName,
		"{user}", user,
	).Replace(template)
}
