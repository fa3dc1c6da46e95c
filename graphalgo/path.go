package graphalgo

import "container/heap"

// CriticalPath computes the longest path in a DAG by topological
// relaxation over edge weights, returning the total weight and the vertex
// sequence from a source to the deepest sink. Returns ErrNotDAG if the
// graph is cyclic.
func CriticalPath(g *Graph) (int64, []int64, error) {
	order, err := TopoSort(g)
	if err != nil {
		return 0, nil, ErrNotDAG
	}

	dist := make(map[int64]int64, len(order))
	prev := make(map[int64]int64)
	hasPrev := make(map[int64]bool)
	for _, v := range order {
		dist[v] = 0
	}

	var best int64
	var bestVertex int64
	if len(order) > 0 {
		bestVertex = order[0]
	}

	for _, v := range order {
		for _, e := range g.Out[v] {
			candidate := dist[v] + e.Weight
			if candidate > dist[e.To] {
				dist[e.To] = candidate
				prev[e.To] = v
				hasPrev[e.To] = true
			}
		}
		if dist[v] > best {
			best = dist[v]
			bestVertex = v
		}
	}

	if len(order) == 0 {
		return 0, nil, nil
	}

	var path []int64
	v := bestVertex
	for {
		path = append([]int64{v}, path...)
		if !hasPrev[v] {
			break
		}
		v = prev[v]
	}
	return best, path, nil
}

// bfsQueue is a simple FIFO of int64.
type bfsQueue struct {
	items []int64
}

func (q *bfsQueue) push(v int64)  { q.items = append(q.items, v) }
func (q *bfsQueue) empty() bool   { return len(q.items) == 0 }
func (q *bfsQueue) pop() int64 {
	v := q.items[0]
	q.items = q.items[1:]
	return v
}

// ShortestPath returns the shortest distance and path from source to
// target. If weighted is false (no edge carries a meaningful weight), an
// unweighted BFS is used; otherwise Dijkstra's algorithm runs with a binary
// min-heap, requiring non-negative weights. Returns (nil, nil) if target is
// unreachable, and (0, [source]) if source == target.
func ShortestPath(g *Graph, source, target int64, weighted bool) (*int64, []int64) {
	if source == target {
		zero := int64(0)
		return &zero, []int64{source}
	}
	if weighted {
		return dijkstra(g, source, target)
	}
	return bfsShortestPath(g, source, target)
}

func bfsShortestPath(g *Graph, source, target int64) (*int64, []int64) {
	visited := map[int64]bool{source: true}
	prev := make(map[int64]int64)
	dist := map[int64]int64{source: 0}

	q := &bfsQueue{}
	q.push(source)

	for !q.empty() {
		v := q.pop()
		if v == target {
			break
		}
		for _, e := range g.Out[v] {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			dist[e.To] = dist[v] + 1
			prev[e.To] = v
			q.push(e.To)
		}
	}

	if !visited[target] {
		return nil, nil
	}
	d := dist[target]
	return &d, reconstructPath(prev, source, target)
}

type pqItem struct {
	vertex int64
	dist   int64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)         { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

func dijkstra(g *Graph, source, target int64) (*int64, []int64) {
	dist := map[int64]int64{source: 0}
	prev := make(map[int64]int64)
	visited := make(map[int64]bool)

	pq := &priorityQueue{{vertex: source, dist: 0}}
	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		v := item.vertex
		if visited[v] {
			continue
		}
		visited[v] = true
		if v == target {
			break
		}
		for _, e := range g.Out[v] {
			if e.Weight < 0 {
				continue // non-negative weight precondition (spec §4.2)
			}
			candidate := dist[v] + e.Weight
			if existing, ok := dist[e.To]; !ok || candidate < existing {
				dist[e.To] = candidate
				prev[e.To] = v
				heap.Push(pq, pqItem{vertex: e.To, dist: candidate})
			}
		}
	}

	d, ok := dist[target]
	if !ok {
		return nil, nil
	}
	return &d, reconstructPath(prev, source, target)
}

func reconstructPath(prev map[int64]int64, source, target int64) []int64 {
	path := []int64{target}
	v := target
	for v != source {
		p, ok := prev[v]
		if !ok {
			break
		}
		path = append([]int64{p}, path...)
		v = p
	}
	return path
}
