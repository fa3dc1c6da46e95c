// Package notifier defines the out-of-band delivery contract ActionEvaluator
// and Scheduler dispatch against (spec C7): a structured message to a user,
// fallibly asynchronous, with no assumption about the transport underneath.
// Concrete implementations live in sibling packages (notifier/telegram,
// notifier/memnotify).
package notifier

import "context"

// Kind is the closed set of notification shapes a caller may request.
type Kind string

const (
	KindTaskReady           Kind = "task_ready"
	KindTaskCompleted       Kind = "task_completed"
	KindTaskAssigned        Kind = "task_assigned"
	KindDeadlineApproaching Kind = "deadline_approaching"
	KindCustom              Kind = "custom"
)

// Notifier delivers a structured message to recipient over whatever channel
// the implementation wraps. Notify returns a non-nil error on failure; the
// caller (ActionEvaluator, Scheduler) logs it and continues rather than
// aborting the enclosing batch.
type Notifier interface {
	Notify(ctx context.Context, recipient int32, kind Kind, payload map[string]string) error
}

// Func adapts a plain function to the Notifier interface, mirroring the
// standard library's http.HandlerFunc pattern.
type Func func(ctx context.Context, recipient int32, kind Kind, payload map[string]string) error

func (f Func) Notify(ctx context.Context, recipient int32, kind Kind, payload map[string]string) error {
	return f(ctx, recipient, kind, payload)
}
