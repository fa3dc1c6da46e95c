package actioneval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskgraph/internal/metrics"
	"github.com/hrygo/taskgraph/internal/profile"
	"github.com/hrygo/taskgraph/internal/storetest"
	"github.com/hrygo/taskgraph/notifier"
	"github.com/hrygo/taskgraph/notifier/memnotify"
	"github.com/hrygo/taskgraph/store"
)

// fakeChanger is a minimal StatusChanger used to test the change_status
// action type without wiring a full Engine.
type fakeChanger struct {
	called   bool
	newState *store.TaskStatus
	err      error
}

func (f *fakeChanger) ChangeTaskStatus(ctx context.Context, taskID int64, newStatusName string, actor int32) (*StatusChangeResult, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return &StatusChangeResult{NewStatus: f.newState, StatusChanged: true}, nil
}

const project1 = int64(1)

func newEnv(t *testing.T) (*Evaluator, *storetest.MemDriver, *memnotify.Notifier) {
	t.Helper()
	mem := storetest.New()
	mem.SeedProject(project1, "Project 1")
	mem.SeedStatus(&store.TaskStatus{Name: store.StatusTodo})
	s := store.New(mem, &profile.Profile{})
	n := memnotify.New()
	m := metrics.New(metrics.DefaultConfig())
	ev := New(s, n, m)
	return ev, mem, n
}

func seedDep(t *testing.T, mem *storetest.MemDriver, sourceAssignee, targetAssignee *int32) *store.Dependency {
	t.Helper()
	ctx := context.Background()
	source, err := mem.CreateTask(ctx, &store.CreateTask{Project: project1, Name: "source", Creator: 1, Assignee: sourceAssignee})
	require.NoError(t, err)
	target, err := mem.CreateTask(ctx, &store.CreateTask{Project: project1, Name: "target", Creator: 1, Assignee: targetAssignee})
	require.NoError(t, err)
	dep, err := mem.CreateDependency(ctx, &store.CreateDependency{Project: project1, SourceTask: source.ID, TargetTask: target.ID, DependencyType: "blocks", CreatedBy: 1})
	require.NoError(t, err)
	return dep
}

func TestEvaluateDispatchesNotifyAssignee(t *testing.T) {
	ev, mem, n := newEnv(t)
	ctx := context.Background()

	assignee := int32(5)
	dep := seedDep(t, mem, nil, &assignee)
	mem.SeedUser(&store.User{ID: 5, Username: "bob", IsActive: true})

	_, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionNotifyAssignee, IsActive: true,
	})
	require.NoError(t, err)

	outcomes, err := ev.Evaluate(ctx, dep, TriggerTaskCompleted, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusExecuted, outcomes[0].Status)

	calls := n.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, int32(5), calls[0].Recipient)
	assert.Equal(t, notifier.KindTaskReady, calls[0].Kind)
}

func TestNotifyAssigneeSkipsWhenTargetHasNoAssignee(t *testing.T) {
	ev, mem, n := newEnv(t)
	ctx := context.Background()

	dep := seedDep(t, mem, nil, nil) // target has no assignee
	_, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionNotifyAssignee, IsActive: true,
	})
	require.NoError(t, err)

	outcomes, err := ev.Evaluate(ctx, dep, TriggerTaskCompleted, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.Empty(t, n.Calls())
}

func TestNotifyAssigneeRespectsPreferenceGate(t *testing.T) {
	ev, mem, n := newEnv(t)
	ctx := context.Background()

	assignee := int32(5)
	dep := seedDep(t, mem, nil, &assignee)
	mem.SeedUser(&store.User{ID: 5, Username: "bob", IsActive: true, NotificationPreferences: map[string]bool{"dependency_ready": false}})

	_, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionNotifyAssignee, IsActive: true,
	})
	require.NoError(t, err)

	outcomes, err := ev.Evaluate(ctx, dep, TriggerTaskCompleted, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.Empty(t, n.Calls())
}

func TestNotifyCreatorSendsTaskCompletedKind(t *testing.T) {
	ev, mem, n := newEnv(t)
	ctx := context.Background()

	dep := seedDep(t, mem, nil, nil)
	mem.SeedUser(&store.User{ID: 1, Username: "creator", IsActive: true})

	_, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionNotifyCreator, IsActive: true,
	})
	require.NoError(t, err)

	outcomes, err := ev.Evaluate(ctx, dep, TriggerTaskCompleted, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusExecuted, outcomes[0].Status)
	require.Len(t, n.Calls(), 1)
	assert.Equal(t, notifier.KindTaskCompleted, n.Calls()[0].Kind)
}

func TestNotifyCustomAlwaysDeliversRegardlessOfGate(t *testing.T) {
	ev, mem, n := newEnv(t)
	ctx := context.Background()

	dep := seedDep(t, mem, nil, nil)
	custom := int32(9)
	mem.SeedUser(&store.User{ID: 9, Username: "custom", IsActive: true, NotificationPreferences: map[string]bool{"dependency_ready": false, "task_completed": false}})

	_, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionNotifyCustom, TargetUser: &custom, IsActive: true,
	})
	require.NoError(t, err)

	outcomes, err := ev.Evaluate(ctx, dep, TriggerTaskCompleted, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusExecuted, outcomes[0].Status)
	require.Len(t, n.Calls(), 1)
}

func TestNotifyCustomFailsWithoutTargetUser(t *testing.T) {
	ev, mem, _ := newEnv(t)
	ctx := context.Background()

	dep := seedDep(t, mem, nil, nil)
	_, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionNotifyCustom, IsActive: true,
	})
	require.NoError(t, err)

	outcomes, err := ev.Evaluate(ctx, dep, TriggerTaskCompleted, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
}

func TestTemplateSubstitution(t *testing.T) {
	ev, mem, n := newEnv(t)
	ctx := context.Background()

	assignee := int32(5)
	dep := seedDep(t, mem, nil, &assignee)
	mem.SeedUser(&store.User{ID: 5, Username: "bob", IsActive: true})

	template := "Hi {user}, {task_name} in {project_name} needs you"
	_, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionNotifyAssignee, IsActive: true, MessageTemplate: &template,
	})
	require.NoError(t, err)

	_, err = ev.Evaluate(ctx, dep, TriggerTaskCompleted, 1)
	require.NoError(t, err)

	calls := n.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Hi bob, target in Project 1 needs you", calls[0].Payload["message"])
}

func TestEvaluateSchedulesDelayedAction(t *testing.T) {
	ev, mem, n := newEnv(t)
	ctx := context.Background()
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ev.SetClock(func() time.Time { return fixedNow })

	assignee := int32(5)
	dep := seedDep(t, mem, nil, &assignee)
	mem.SeedUser(&store.User{ID: 5, Username: "bob", IsActive: true})

	_, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionNotifyAssignee, IsActive: true, DelayMinutes: 30,
	})
	require.NoError(t, err)

	outcomes, err := ev.Evaluate(ctx, dep, TriggerTaskCompleted, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusScheduled, outcomes[0].Status)
	require.NotNil(t, outcomes[0].ScheduledFor)
	assert.Equal(t, fixedNow.Add(30*time.Minute), *outcomes[0].ScheduledFor)
	assert.Empty(t, n.Calls()) // not dispatched yet

	pending, err := mem.ListScheduledActions(ctx, &store.FindScheduledAction{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "delayed_notification", pending[0].ActionType)
}

func TestChangeStatusDispatchesThroughStatusChanger(t *testing.T) {
	ev, mem, _ := newEnv(t)
	ctx := context.Background()

	dep := seedDep(t, mem, nil, nil)
	status := mem.SeedStatus(&store.TaskStatus{Name: store.StatusBlocked, IsBlocking: true})

	changer := &fakeChanger{newState: status}
	ev.SetStatusChanger(changer)

	targetStatusID := status.ID
	_, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionChangeStatus, IsActive: true, TargetStatus: &targetStatusID,
	})
	require.NoError(t, err)

	outcomes, err := ev.Evaluate(ctx, dep, TriggerTaskCompleted, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, changer.called)
	assert.Equal(t, StatusExecuted, outcomes[0].Status)
	assert.Equal(t, store.StatusBlocked, outcomes[0].NewStatus)
}

func TestCreateSubtaskIsNotImplemented(t *testing.T) {
	ev, mem, _ := newEnv(t)
	ctx := context.Background()

	dep := seedDep(t, mem, nil, nil)
	_, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionCreateSubtask, IsActive: true,
	})
	require.NoError(t, err)

	outcomes, err := ev.Evaluate(ctx, dep, TriggerTaskCompleted, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusNotImplemented, outcomes[0].Status)
}

func TestEvaluateKnownUsesDelayedTrigger(t *testing.T) {
	ev, mem, n := newEnv(t)
	ctx := context.Background()

	assignee := int32(5)
	dep := seedDep(t, mem, nil, &assignee)
	mem.SeedUser(&store.User{ID: 5, Username: "bob", IsActive: true})

	action, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionNotifyAssignee, IsActive: true,
	})
	require.NoError(t, err)

	outcome := ev.EvaluateKnown(ctx, dep, action, 1)
	assert.Equal(t, StatusExecuted, outcome.Status)
	assert.Len(t, n.Calls(), 1)
}

func TestInactiveActionsAreNotDispatched(t *testing.T) {
	ev, mem, n := newEnv(t)
	ctx := context.Background()

	dep := seedDep(t, mem, nil, nil)
	_, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionNotifyCreator, IsActive: false,
	})
	require.NoError(t, err)

	outcomes, err := ev.Evaluate(ctx, dep, TriggerTaskCompleted, 1)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Empty(t, n.Calls())
}
