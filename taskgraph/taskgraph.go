// Package taskgraph maintains a typed projection of Dependency rows for one
// project: the reachability check that guards against cyclic dependencies,
// and the readiness predicate a Task must satisfy before work can start on
// it. Both are grounded on TaskService.would_create_cycle and
// TaskService.check_task_readiness.
package taskgraph

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hrygo/taskgraph/internal/apperrors"
	"github.com/hrygo/taskgraph/internal/cache"
	"github.com/hrygo/taskgraph/store"
)

// Graph is an adjacency projection of one project's dependencies, rebuilt
// from the Store on demand and cached between calls that don't mutate it.
type Graph struct {
	Project  int64
	Out      map[int64][]int64 // source task id -> target task ids
	In       map[int64][]int64 // target task id -> source task ids
	Tasks    map[int64]*store.Task
	Statuses map[int64]*store.TaskStatus // status id -> status row
}

// Loader rebuilds Graph instances for a project, caching the result and
// collapsing concurrent rebuild requests for the same project through
// singleflight — multiple goroutines racing to read the same project's
// graph after a cold cache should hit the Store once, not N times.
type Loader struct {
	store *store.Store
	cache *cache.Cache
	group singleflight.Group
}

func NewLoader(s *store.Store) *Loader {
	return &Loader{
		store: s,
		cache: cache.New(cache.Config{DefaultTTL: 0, CleanupInterval: time.Minute, MaxItems: 256}),
	}
}

func cacheKey(project int64) string {
	return fmt.Sprintf("graph:%d", project)
}

// Load returns the Graph for project, rebuilding it from the Store if it
// isn't already cached.
func (l *Loader) Load(ctx context.Context, project int64) (*Graph, error) {
	if cached, ok := l.cache.Get(cacheKey(project)); ok {
		return cached.(*Graph), nil
	}

	v, err, _ := l.group.Do(fmt.Sprintf("%d", project), func() (any, error) {
		g, err := l.rebuild(ctx, project)
		if err != nil {
			return nil, err
		}
		l.cache.Set(cacheKey(project), g)
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Graph), nil
}

// Invalidate drops the cached Graph for project; callers invoke this after
// any write that changes the project's tasks or dependencies.
func (l *Loader) Invalidate(project int64) {
	l.cache.Delete(cacheKey(project))
}

func (l *Loader) Close() {
	l.cache.Close()
}

func (l *Loader) rebuild(ctx context.Context, project int64) (*Graph, error) {
	tasks, err := l.store.ListTasks(ctx, &store.FindTask{Project: &project})
	if err != nil {
		return nil, apperrors.Internalf("failed to list tasks for project %d: %w", project, err)
	}
	deps, err := l.store.ListDependencies(ctx, &store.FindDependency{Project: &project})
	if err != nil {
		return nil, apperrors.Internalf("failed to list dependencies for project %d: %w", project, err)
	}
	statuses, err := l.store.ListStatuses(ctx)
	if err != nil {
		return nil, apperrors.Internalf("failed to list statuses: %w", err)
	}

	g := &Graph{
		Project:  project,
		Out:      make(map[int64][]int64),
		In:       make(map[int64][]int64),
		Tasks:    make(map[int64]*store.Task, len(tasks)),
		Statuses: make(map[int64]*store.TaskStatus, len(statuses)),
	}
	for _, t := range tasks {
		g.Tasks[t.ID] = t
	}
	for _, st := range statuses {
		g.Statuses[st.ID] = st
	}
	for _, d := range deps {
		g.Out[d.SourceTask] = append(g.Out[d.SourceTask], d.TargetTask)
		g.In[d.TargetTask] = append(g.In[d.TargetTask], d.SourceTask)
	}
	return g, nil
}

// Incoming returns the task ids that task depends on.
func (g *Graph) Incoming(task int64) []int64 { return g.In[task] }

// Outgoing returns the task ids that depend on task.
func (g *Graph) Outgoing(task int64) []int64 { return g.Out[task] }

func (g *Graph) statusName(task *store.Task) string {
	if st, ok := g.Statuses[task.Status]; ok {
		return st.Name
	}
	return ""
}

// WouldCreateCycle reports whether adding an edge source -> target would
// create a cycle, i.e. whether target can already reach source. The walk is
// iterative with an explicit stack so deep graphs don't blow the Go stack.
func (g *Graph) WouldCreateCycle(source, target int64) bool {
	if source == target {
		return true
	}
	visited := make(map[int64]bool)
	stack := []int64{target}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		if cur == source {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, g.Out[cur]...)
	}
	return false
}

// IsReady implements the readiness predicate of spec §4.3: a task is ready
// only while its status is "todo" and every task it depends on (if any) has
// reached "completed" — no weaker final status qualifies.
func (g *Graph) IsReady(task int64) bool {
	t, ok := g.Tasks[task]
	if !ok {
		return false
	}
	if g.statusName(t) != store.StatusTodo {
		return false
	}
	incoming := g.In[task]
	if len(incoming) == 0 {
		return true
	}
	for _, src := range incoming {
		srcTask, ok := g.Tasks[src]
		if !ok || g.statusName(srcTask) != store.StatusCompleted {
			return false
		}
	}
	return true
}
