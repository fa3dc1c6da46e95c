package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskgraph/engine/actioneval"
	"github.com/hrygo/taskgraph/internal/metrics"
	"github.com/hrygo/taskgraph/internal/profile"
	"github.com/hrygo/taskgraph/internal/storetest"
	"github.com/hrygo/taskgraph/notifier/memnotify"
	"github.com/hrygo/taskgraph/store"
)

const project1 = int64(1)

func newEnv(t *testing.T) (*Scheduler, *storetest.MemDriver, *memnotify.Notifier, *actioneval.Evaluator) {
	t.Helper()
	mem := storetest.New()
	mem.SeedProject(project1, "Project 1")
	mem.SeedStatus(&store.TaskStatus{Name: store.StatusTodo})
	s := store.New(mem, &profile.Profile{})
	n := memnotify.New()
	m := metrics.New(metrics.DefaultConfig())
	ev := actioneval.New(s, n, m)
	sc := New(s, ev, n, m, &profile.Profile{})
	return sc, mem, n, ev
}

func seedTask(t *testing.T, mem *storetest.MemDriver, assignee *int32) *store.Task {
	t.Helper()
	task, err := mem.CreateTask(context.Background(), &store.CreateTask{
		Project: project1, Name: "task", Creator: 1, Assignee: assignee,
	})
	require.NoError(t, err)
	return task
}

func TestRunOneClaimsDispatchesAndCompletes(t *testing.T) {
	sc, mem, n, _ := newEnv(t)
	ctx := context.Background()
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc.SetClock(func() time.Time { return fixedNow })

	assignee := int32(5)
	task := seedTask(t, mem, &assignee)
	mem.SeedUser(&store.User{ID: 5, Username: "bob", IsActive: true})

	payload, err := json.Marshal(deadlinePayload{HoursBefore: "24"})
	require.NoError(t, err)
	_, err = mem.CreateScheduledAction(ctx, &store.CreateScheduledAction{
		Project:      project1,
		Task:         &task.ID,
		ActionType:   actionTypeDeadlineApproaching,
		ScheduledFor: fixedNow.Add(-time.Minute),
		Payload:      payload,
	})
	require.NoError(t, err)

	require.NoError(t, sc.RunOnce(ctx))

	calls := n.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, int32(5), calls[0].Recipient)

	pending, err := mem.ListScheduledActions(ctx, &store.FindScheduledAction{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.ScheduledCompleted, pending[0].Status)
	require.NotNil(t, pending[0].ExecutedAt)
}

func TestRunOnceSkipsActionsNotYetDue(t *testing.T) {
	sc, mem, n, _ := newEnv(t)
	ctx := context.Background()
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc.SetClock(func() time.Time { return fixedNow })

	assignee := int32(5)
	task := seedTask(t, mem, &assignee)
	mem.SeedUser(&store.User{ID: 5, Username: "bob", IsActive: true})

	_, err := mem.CreateScheduledAction(ctx, &store.CreateScheduledAction{
		Project:      project1,
		Task:         &task.ID,
		ActionType:   actionTypeDeadlineApproaching,
		ScheduledFor: fixedNow.Add(time.Hour), // not due yet
	})
	require.NoError(t, err)

	require.NoError(t, sc.RunOnce(ctx))

	assert.Empty(t, n.Calls())
	pending, err := mem.ListScheduledActions(ctx, &store.FindScheduledAction{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.ScheduledPending, pending[0].Status)
}

func TestDispatchDeadlineSkipsTaskWithNoAssignee(t *testing.T) {
	sc, mem, n, _ := newEnv(t)
	ctx := context.Background()
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc.SetClock(func() time.Time { return fixedNow })

	task := seedTask(t, mem, nil)

	_, err := mem.CreateScheduledAction(ctx, &store.CreateScheduledAction{
		Project:      project1,
		Task:         &task.ID,
		ActionType:   actionTypeDeadlineApproaching,
		ScheduledFor: fixedNow.Add(-time.Minute),
	})
	require.NoError(t, err)

	require.NoError(t, sc.RunOnce(ctx))

	assert.Empty(t, n.Calls())
	pending, err := mem.ListScheduledActions(ctx, &store.FindScheduledAction{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.ScheduledCompleted, pending[0].Status) // no assignee isn't an error
}

func TestDispatchDeadlineRespectsNotificationPreference(t *testing.T) {
	sc, mem, n, _ := newEnv(t)
	ctx := context.Background()
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc.SetClock(func() time.Time { return fixedNow })

	assignee := int32(5)
	task := seedTask(t, mem, &assignee)
	mem.SeedUser(&store.User{ID: 5, Username: "bob", IsActive: true, NotificationPreferences: map[string]bool{"deadline_approaching": false}})

	_, err := mem.CreateScheduledAction(ctx, &store.CreateScheduledAction{
		Project:      project1,
		Task:         &task.ID,
		ActionType:   actionTypeDeadlineApproaching,
		ScheduledFor: fixedNow.Add(-time.Minute),
	})
	require.NoError(t, err)

	require.NoError(t, sc.RunOnce(ctx))

	assert.Empty(t, n.Calls())
	pending, err := mem.ListScheduledActions(ctx, &store.FindScheduledAction{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.ScheduledCompleted, pending[0].Status)
}

func TestDispatchDelayedReEvaluatesDependencyAction(t *testing.T) {
	sc, mem, n, _ := newEnv(t)
	ctx := context.Background()
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc.SetClock(func() time.Time { return fixedNow })

	assignee := int32(5)
	source, err := mem.CreateTask(ctx, &store.CreateTask{Project: project1, Name: "source", Creator: 1})
	require.NoError(t, err)
	target, err := mem.CreateTask(ctx, &store.CreateTask{Project: project1, Name: "target", Creator: 1, Assignee: &assignee})
	require.NoError(t, err)
	dep, err := mem.CreateDependency(ctx, &store.CreateDependency{Project: project1, SourceTask: source.ID, TargetTask: target.ID, DependencyType: "blocks", CreatedBy: 1})
	require.NoError(t, err)
	mem.SeedUser(&store.User{ID: 5, Username: "bob", IsActive: true})

	action, err := mem.CreateDependencyAction(ctx, &store.DependencyAction{
		Dependency: dep.ID, ActionType: store.ActionNotifyAssignee, IsActive: true,
	})
	require.NoError(t, err)

	payload, err := json.Marshal(delayedPayload{ActionID: action.ID, TriggerEvent: "task_completed", TriggeredBy: 1})
	require.NoError(t, err)
	_, err = mem.CreateScheduledAction(ctx, &store.CreateScheduledAction{
		Project:          project1,
		ActionType:       actionTypeDelayedNotification,
		ScheduledFor:     fixedNow.Add(-time.Minute),
		Payload:          payload,
		DependencyAction: &action.ID,
	})
	require.NoError(t, err)

	require.NoError(t, sc.RunOnce(ctx))

	calls := n.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, int32(5), calls[0].Recipient)

	pending, err := mem.ListScheduledActions(ctx, &store.FindScheduledAction{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.ScheduledCompleted, pending[0].Status)
}

func TestDispatchDelayedMarksFailedWhenActionMissing(t *testing.T) {
	sc, mem, n, _ := newEnv(t)
	ctx := context.Background()
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc.SetClock(func() time.Time { return fixedNow })

	payload, err := json.Marshal(delayedPayload{ActionID: 999, TriggerEvent: "task_completed", TriggeredBy: 1})
	require.NoError(t, err)
	_, err = mem.CreateScheduledAction(ctx, &store.CreateScheduledAction{
		Project:      project1,
		ActionType:   actionTypeDelayedNotification,
		ScheduledFor: fixedNow.Add(-time.Minute),
		Payload:      payload,
	})
	require.NoError(t, err)

	require.NoError(t, sc.RunOnce(ctx))

	assert.Empty(t, n.Calls())
	pending, err := mem.ListScheduledActions(ctx, &store.FindScheduledAction{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.ScheduledFailed, pending[0].Status)
	require.NotNil(t, pending[0].LastError)
}

func TestRunOnceReapsStuckProcessingRows(t *testing.T) {
	mem := storetest.New()
	mem.SeedProject(project1, "Project 1")
	s := store.New(mem, &profile.Profile{})
	n := memnotify.New()
	m := metrics.New(metrics.DefaultConfig())
	ev := actioneval.New(s, n, m)
	// MemDriver stamps CreatedAt with the real wall clock, so the reaper
	// threshold here is driven by an actual short sleep rather than an
	// injected clock.
	sc := New(s, ev, n, m, &profile.Profile{SchedulerReaperAfter: time.Millisecond})
	ctx := context.Background()

	task := seedTask(t, mem, nil)
	action, err := mem.CreateScheduledAction(ctx, &store.CreateScheduledAction{
		Project:      project1,
		Task:         &task.ID,
		ActionType:   actionTypeDeadlineApproaching,
		ScheduledFor: time.Now().Add(time.Hour), // not due; only the reaper should touch it
	})
	require.NoError(t, err)

	// Simulate a worker crash mid-dispatch: claim it directly, leaving it
	// stuck in `processing`.
	claimed, err := mem.ClaimDueScheduledActions(ctx, time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, action.ID, claimed[0].ID)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, sc.RunOnce(ctx))

	all, err := mem.ListScheduledActions(ctx, &store.FindScheduledAction{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, store.ScheduledPending, all[0].Status)
}

func TestDispatchOneRejectsUnknownActionType(t *testing.T) {
	sc, mem, n, _ := newEnv(t)
	ctx := context.Background()
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc.SetClock(func() time.Time { return fixedNow })

	task := seedTask(t, mem, nil)
	_, err := mem.CreateScheduledAction(ctx, &store.CreateScheduledAction{
		Project:      project1,
		Task:         &task.ID,
		ActionType:   "not_a_real_type",
		ScheduledFor: fixedNow.Add(-time.Minute),
	})
	require.NoError(t, err)

	require.NoError(t, sc.RunOnce(ctx))

	assert.Empty(t, n.Calls())
	pending, err := mem.ListScheduledActions(ctx, &store.FindScheduledAction{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.ScheduledFailed, pending[0].Status)
}
