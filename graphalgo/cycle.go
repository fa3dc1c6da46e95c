package graphalgo

const defaultCycleCountBound = 100

type color int

const (
	white color = iota // unvisited
	gray               // on-stack
	black              // done
)

type dfsFrame struct {
	v       int64
	edgeIdx int
}

// HasCycle performs an iterative three-colour DFS (white/gray/black) and
// reports whether the graph has at least one cycle, plus an approximate
// count of back edges found, capped at maxCount (0 means the spec's default
// of 100). The count is "approximate" because it counts back-edges
// encountered, not distinct simple cycles (spec §4.2).
func HasCycle(g *Graph, maxCount int) (bool, int) {
	if maxCount <= 0 {
		maxCount = defaultCycleCountBound
	}

	colors := make(map[int64]color, len(g.Vertices))
	count := 0

	for _, start := range g.Vertices {
		if colors[start] != white {
			continue
		}
		if count >= maxCount {
			break
		}

		stack := []dfsFrame{{v: start}}
		colors[start] = gray

		for len(stack) > 0 && count < maxCount {
			top := &stack[len(stack)-1]
			v := top.v

			if top.edgeIdx < len(g.Out[v]) {
				w := g.Out[v][top.edgeIdx].To
				top.edgeIdx++

				switch colors[w] {
				case white:
					colors[w] = gray
					stack = append(stack, dfsFrame{v: w})
				case gray:
					count++
				case black:
					// cross/forward edge, not a cycle
				}
				continue
			}

			colors[v] = black
			stack = stack[:len(stack)-1]
		}
	}

	return count > 0, count
}

const (
	defaultSampleMaxDepth  = 20
	defaultSampleMaxStarts = 100
)

// SampleCycles best-effort enumerates up to maxCycles short cycles via
// bounded iterative DFS from a start-vertex set. If starts is nil, the
// graph's own vertex set is used, capped at defaultSampleMaxStarts (ascending
// order, so results are deterministic). Depth is capped at maxDepth (0 means
// the spec default of 20). Duplicate cycles (identical vertex sets) are
// suppressed.
func SampleCycles(g *Graph, maxCycles int, starts []int64, maxDepth int) [][]int64 {
	if maxDepth <= 0 {
		maxDepth = defaultSampleMaxDepth
	}
	if maxCycles <= 0 {
		return nil
	}
	if starts == nil {
		starts = g.Vertices
		if len(starts) > defaultSampleMaxStarts {
			starts = starts[:defaultSampleMaxStarts]
		}
	}

	seen := make(map[string]struct{})
	var results [][]int64

	for _, start := range starts {
		if len(results) >= maxCycles {
			break
		}
		results = appendCyclesFrom(g, start, maxDepth, maxCycles, seen, results)
	}
	return results
}

func appendCyclesFrom(g *Graph, start int64, maxDepth, maxCycles int, seen map[string]struct{}, results [][]int64) [][]int64 {
	type frame struct {
		v       int64
		edgeIdx int
	}
	path := []int64{start}
	onPath := map[int64]int{start: 0}
	stack := []frame{{v: start}}

	for len(stack) > 0 && len(results) < maxCycles {
		top := &stack[len(stack)-1]
		v := top.v

		if len(path) > maxDepth {
			delete(onPath, v)
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
			continue
		}

		if top.edgeIdx < len(g.Out[v]) {
			w := g.Out[v][top.edgeIdx].To
			top.edgeIdx++

			if w == start && len(path) > 0 {
				cycle := append([]int64(nil), path...)
				key := cycleKey(cycle)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					results = append(results, cycle)
					if len(results) >= maxCycles {
						return results
					}
				}
				continue
			}
			if idx, onStack := onPath[w]; onStack {
				cycle := append([]int64(nil), path[idx:]...)
				key := cycleKey(cycle)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					results = append(results, cycle)
					if len(results) >= maxCycles {
						return results
					}
				}
				continue
			}

			onPath[w] = len(path)
			path = append(path, w)
			stack = append(stack, frame{v: w})
			continue
		}

		delete(onPath, v)
		path = path[:len(path)-1]
		stack = stack[:len(stack)-1]
	}
	return results
}

// cycleKey produces a canonical key from a cycle's sorted vertex set, so any
// two cycles over the same vertices (whatever their rotation or order) map to
// the same key and the later one is suppressed as a duplicate.
func cycleKey(cycle []int64) string {
	set := make(map[int64]struct{}, len(cycle))
	for _, v := range cycle {
		set[v] = struct{}{}
	}
	sorted := make([]int64, 0, len(set))
	for v := range set {
		sorted = append(sorted, v)
	}
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	key := make([]byte, 0, len(sorted)*8)
	for _, v := range sorted {
		key = appendInt64(key, v)
	}
	return string(key)
}

func appendInt64(buf []byte, v int64) []byte {
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	buf = append(buf, ',')
	return buf
}
