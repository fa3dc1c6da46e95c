// Package graphalgo implements the stateless graph algorithms of spec §4.2:
// topological sort, SCC, cycle detection/sampling, critical path, and
// shortest path. All traversals are iterative (explicit stack), per spec §9's
// "Recursive DFS → iterative DFS" rewrite note, so arbitrarily deep graphs
// never overflow the native stack. Grounded on
// original_source/core/graph.py's GraphAlgorithms class.
package graphalgo

import (
	"container/heap"
	"errors"
	"sort"

	"github.com/hrygo/taskgraph/graphstore"
)

// ErrCycle is returned by TopoSort when the graph is not a DAG.
var ErrCycle = errors.New("graphalgo: graph contains a cycle")

// ErrNotDAG is returned by CriticalPath when the graph is not a DAG.
var ErrNotDAG = errors.New("graphalgo: critical path requires a DAG")

// Edge is one outgoing (or incoming) adjacency entry.
type Edge struct {
	To     int64
	Weight int64
}

// Graph is an adjacency-list view over a vertex set, built once and passed
// by pointer to every algorithm below; none of them mutate it.
type Graph struct {
	Out      map[int64][]Edge
	In       map[int64][]Edge
	Vertices []int64
}

// FromEdgeStore materializes a Graph from an EdgeStore's adjacency.
func FromEdgeStore(store *graphstore.EdgeStore) *Graph {
	out, in := store.Adjacency()
	vertexSet := store.Vertices()

	g := &Graph{
		Out: make(map[int64][]Edge, len(out)),
		In:  make(map[int64][]Edge, len(in)),
	}
	for v, entries := range out {
		for _, e := range entries {
			g.Out[v] = append(g.Out[v], Edge{To: e.Neighbor, Weight: e.Weight})
		}
	}
	for v, entries := range in {
		for _, e := range entries {
			g.In[v] = append(g.In[v], Edge{To: e.Neighbor, Weight: e.Weight})
		}
	}
	for v := range vertexSet {
		g.Vertices = append(g.Vertices, v)
	}
	sort.Slice(g.Vertices, func(i, j int) bool { return g.Vertices[i] < g.Vertices[j] })
	return g
}

// New builds a Graph directly from an edge list, each (from, to, weight).
// Vertices referenced only as endpoints are included.
func New(edges [][3]int64) *Graph {
	g := &Graph{Out: make(map[int64][]Edge), In: make(map[int64][]Edge)}
	seen := make(map[int64]struct{})
	for _, e := range edges {
		from, to, weight := e[0], e[1], e[2]
		g.Out[from] = append(g.Out[from], Edge{To: to, Weight: weight})
		g.In[to] = append(g.In[to], Edge{To: from, Weight: weight})
		seen[from] = struct{}{}
		seen[to] = struct{}{}
	}
	for v := range seen {
		g.Vertices = append(g.Vertices, v)
	}
	sort.Slice(g.Vertices, func(i, j int) bool { return g.Vertices[i] < g.Vertices[j] })
	return g
}

// int64Heap is a min-heap of vertex ids, used by TopoSort to make Kahn's
// algorithm's tie-break deterministic (natural/ascending vertex order).
type int64Heap []int64

func (h int64Heap) Len() int            { return len(h) }
func (h int64Heap) Less(i, j int) bool  { return h[i] < h[j] }
func (h int64Heap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *int64Heap) Push(x any)         { *h = append(*h, x.(int64)) }
func (h *int64Heap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// TopoSort performs Kahn's algorithm, emitting ready vertices in ascending
// numeric order whenever more than one is ready (deterministic tie-break).
// Returns ErrCycle if fewer vertices are emitted than the graph declares.
func TopoSort(g *Graph) ([]int64, error) {
	inDegree := make(map[int64]int, len(g.Vertices))
	for _, v := range g.Vertices {
		inDegree[v] = 0
	}
	for _, v := range g.Vertices {
		for _, e := range g.Out[v] {
			inDegree[e.To]++
		}
	}

	ready := &int64Heap{}
	for _, v := range g.Vertices {
		if inDegree[v] == 0 {
			heap.Push(ready, v)
		}
	}

	order := make([]int64, 0, len(g.Vertices))
	for ready.Len() > 0 {
		v := heap.Pop(ready).(int64)
		order = append(order, v)
		for _, e := range g.Out[v] {
			inDegree[e.To]--
			if inDegree[e.To] == 0 {
				heap.Push(ready, e.To)
			}
		}
	}

	if len(order) != len(g.Vertices) {
		return nil, ErrCycle
	}
	return order, nil
}

// IsDAG reports whether g is acyclic.
func IsDAG(g *Graph) bool {
	_, err := TopoSort(g)
	return err == nil
}
