// Package scheduler implements the persistent deferred-action queue (spec
// C8): a tick claims due ScheduledAction rows, dispatches each by its
// action_type, and marks the outcome. A reaper resets rows stuck in
// `processing` back to `pending` after a crash. Grounded on
// TaskService.py's process_scheduled_actions.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/taskgraph/engine/actioneval"
	"github.com/hrygo/taskgraph/internal/metrics"
	"github.com/hrygo/taskgraph/internal/profile"
	"github.com/hrygo/taskgraph/notifier"
	"github.com/hrygo/taskgraph/store"
)

const (
	defaultTick        = 60 * time.Second
	defaultBatchSize   = 100
	defaultReaperAfter = 10 * time.Minute

	actionTypeDeadlineApproaching = "deadline_approaching"
	actionTypeDelayedNotification = "delayed_notification"
)

// Scheduler drains due ScheduledAction rows on a fixed interval.
type Scheduler struct {
	store       *store.Store
	evaluator   *actioneval.Evaluator
	notifier    notifier.Notifier
	metrics     *metrics.Exporter
	tick        time.Duration
	batchSize   int
	reaperAfter time.Duration
	now         func() time.Time
}

// New builds a Scheduler from profile-configured tick/batch/reaper settings,
// falling back to spec defaults (60s, 100, 10m) when unset.
func New(s *store.Store, ev *actioneval.Evaluator, n notifier.Notifier, m *metrics.Exporter, p *profile.Profile) *Scheduler {
	sc := &Scheduler{
		store:       s,
		evaluator:   ev,
		notifier:    n,
		metrics:     m,
		tick:        defaultTick,
		batchSize:   defaultBatchSize,
		reaperAfter: defaultReaperAfter,
		now:         time.Now,
	}
	if p != nil {
		if p.SchedulerTick > 0 {
			sc.tick = p.SchedulerTick
		}
		if p.SchedulerBatchSize > 0 {
			sc.batchSize = p.SchedulerBatchSize
		}
		if p.SchedulerReaperAfter > 0 {
			sc.reaperAfter = p.SchedulerReaperAfter
		}
	}
	return sc
}

// SetClock overrides the scheduler's notion of "now", for tests.
func (sc *Scheduler) SetClock(now func() time.Time) { sc.now = now }

// Run ticks every sc.tick until ctx is cancelled. Each tick's errors are
// logged, not propagated: a failed tick must not stop the worker.
func (sc *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(sc.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sc.RunOnce(ctx); err != nil {
				slog.Error("scheduler: tick failed", "error", err)
			}
		}
	}
}

// RunOnce performs one tick: claim ≤ batchSize due rows, dispatch each
// concurrently (bounded), mark outcomes, then reap stuck `processing` rows.
func (sc *Scheduler) RunOnce(ctx context.Context) error {
	start := sc.now()

	claimed, err := sc.store.ClaimDueScheduledActions(ctx, start, sc.batchSize)
	if err != nil {
		return fmt.Errorf("claim due scheduled actions: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, action := range claimed {
		action := action
		g.Go(func() error {
			sc.dispatchOne(gctx, action)
			return nil
		})
	}
	_ = g.Wait() // dispatchOne never returns an error; per-row outcomes are recorded individually

	reaped, err := sc.store.ReapStuckScheduledActions(ctx, start.Add(-sc.reaperAfter))
	if err != nil {
		slog.Error("scheduler: reap failed", "error", err)
	} else if reaped > 0 {
		slog.Warn("scheduler: reaped stuck scheduled actions", "count", reaped)
	}

	if sc.metrics != nil {
		sc.metrics.RecordSchedulerTick(sc.now().Sub(start), len(claimed))
	}
	return nil
}

// dispatchOne dispatches a single already-claimed row and marks it completed
// or failed; it never returns an error so one row's failure can't cancel the
// errgroup and starve its siblings.
func (sc *Scheduler) dispatchOne(ctx context.Context, action *store.ScheduledAction) {
	var dispatchErr error
	switch action.ActionType {
	case actionTypeDeadlineApproaching:
		dispatchErr = sc.dispatchDeadline(ctx, action)
	case actionTypeDelayedNotification:
		dispatchErr = sc.dispatchDelayed(ctx, action)
	default:
		dispatchErr = fmt.Errorf("unknown scheduled action type %q", action.ActionType)
	}

	outcomeStatus := "completed"
	if dispatchErr != nil {
		outcomeStatus = "failed"
		if err := sc.store.FailScheduledAction(ctx, action.ID, dispatchErr.Error()); err != nil {
			slog.Error("scheduler: failed to mark scheduled action failed", "action", action.ID, "error", err)
		}
	} else if err := sc.store.CompleteScheduledAction(ctx, action.ID, sc.now()); err != nil {
		slog.Error("scheduler: failed to mark scheduled action completed", "action", action.ID, "error", err)
	}

	if sc.metrics != nil {
		sc.metrics.RecordScheduledOutcome(action.ActionType, outcomeStatus)
	}
}

type deadlinePayload struct {
	HoursBefore string `json:"hours_before"`
}

// dispatchDeadline notifies a task's assignee that its deadline is
// approaching, subject to notification preferences.
func (sc *Scheduler) dispatchDeadline(ctx context.Context, action *store.ScheduledAction) error {
	if action.Task == nil {
		return fmt.Errorf("deadline_approaching scheduled action %d has no task", action.ID)
	}
	task, err := sc.store.GetTask(ctx, *action.Task)
	if err != nil {
		return fmt.Errorf("load task %d: %w", *action.Task, err)
	}
	if task.Assignee == nil {
		return nil // nothing to notify; not an error
	}
	user, err := sc.store.GetUser(ctx, *task.Assignee)
	if err != nil {
		return fmt.Errorf("load assignee %d: %w", *task.Assignee, err)
	}
	if user.NotificationPreferences != nil {
		if allowed, ok := user.NotificationPreferences["deadline_approaching"]; ok && !allowed {
			return nil
		}
	}

	var payload deadlinePayload
	_ = json.Unmarshal(action.Payload, &payload)

	return sc.notifier.Notify(ctx, user.ID, notifier.KindDeadlineApproaching, map[string]string{
		"task_id":    fmt.Sprint(task.ID),
		"task_name":  task.Name,
		"hours_left": payload.HoursBefore,
	})
}

type delayedPayload struct {
	ActionID    int64  `json:"action_id"`
	TriggerEvent string `json:"trigger_event"`
	TriggeredBy int32  `json:"triggered_by"`
}

// dispatchDelayed resolves the DependencyAction a delayed_notification row
// was created for and re-runs it through the ActionEvaluator with
// trigger = "delayed".
func (sc *Scheduler) dispatchDelayed(ctx context.Context, action *store.ScheduledAction) error {
	var payload delayedPayload
	if err := json.Unmarshal(action.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal delayed_notification payload: %w", err)
	}

	depAction, err := sc.store.GetDependencyAction(ctx, payload.ActionID)
	if err != nil {
		return fmt.Errorf("load dependency action %d: %w", payload.ActionID, err)
	}
	dep, err := sc.store.GetDependency(ctx, depAction.Dependency)
	if err != nil {
		return fmt.Errorf("load dependency %d: %w", depAction.Dependency, err)
	}

	outcome := sc.evaluator.EvaluateKnown(ctx, dep, depAction, payload.TriggeredBy)
	if outcome.Status == actioneval.StatusFailed {
		return fmt.Errorf("delayed dispatch of action %d: %s", depAction.ID, outcome.Error)
	}
	return nil
}
