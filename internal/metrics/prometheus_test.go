package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersDoNotPanic(t *testing.T) {
	e := New(Config{})

	e.RecordStatusTransition("todo", "in_progress")
	e.RecordTaskOperation("create_task", nil)
	e.RecordTaskOperation("change_task_status", assertErr)
	e.RecordActionDispatch("notify_assignee", "executed", 5*time.Millisecond)
	e.RecordSchedulerTick(10*time.Millisecond, 3)
	e.RecordScheduledOutcome("delayed_notification", "completed")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "taskgraph_engine_status_transitions_total")
	assert.Contains(t, rec.Body.String(), "taskgraph_scheduler_backlog")
}

var assertErr = errSentinel("boom")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
