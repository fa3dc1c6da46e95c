// Package memnotify is an in-memory Notifier recording every call, used by
// engine/actioneval and scheduler tests in place of a real transport —
// grounded on the teacher's in-memory test doubles for store.Driver
// (taskgraph's fakeDriver) applied to the Notifier contract instead.
package memnotify

import (
	"context"
	"sync"

	"github.com/hrygo/taskgraph/notifier"
)

// Call records one Notify invocation.
type Call struct {
	Payload   map[string]string
	Kind      notifier.Kind
	Recipient int32
}

// Notifier is a concurrency-safe in-memory Notifier. Fail, if set, is
// returned by every subsequent Notify call instead of recording success.
type Notifier struct {
	mu    sync.Mutex
	calls []Call
	Fail  error
}

func New() *Notifier { return &Notifier{} }

func (n *Notifier) Notify(_ context.Context, recipient int32, kind notifier.Kind, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail != nil {
		return n.Fail
	}
	n.calls = append(n.calls, Call{Recipient: recipient, Kind: kind, Payload: payload})
	return nil
}

// Calls returns a copy of every call recorded so far.
func (n *Notifier) Calls() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Call, len(n.calls))
	copy(out, n.calls)
	return out
}
