package graphalgo

// tarjanFrame is one stack frame of the iterative Tarjan SCC algorithm: the
// vertex being visited and the index of the next outgoing edge to examine.
type tarjanFrame struct {
	v        int64
	edgeIdx  int
}

// StronglyConnectedComponents returns Tarjan's SCCs, each component listed
// in pop order (the order the algorithm closes it off the recursion stack).
// Runs iteratively with an explicit stack so graphs deeper than the native
// stack do not overflow (spec §4.2, §9).
func StronglyConnectedComponents(g *Graph) [][]int64 {
	index := make(map[int64]int)
	lowlink := make(map[int64]int)
	onStack := make(map[int64]bool)
	var stack []int64
	var components [][]int64
	nextIndex := 0

	for _, root := range g.Vertices {
		if _, visited := index[root]; visited {
			continue
		}
		components = append(components, strongconnectIterative(g, root, index, lowlink, onStack, &stack, &nextIndex)...)
	}
	return components
}

func strongconnectIterative(
	g *Graph,
	root int64,
	index, lowlink map[int64]int,
	onStack map[int64]bool,
	stack *[]int64,
	nextIndex *int,
) [][]int64 {
	var components [][]int64
	var frames []tarjanFrame

	push := func(v int64) {
		index[v] = *nextIndex
		lowlink[v] = *nextIndex
		*nextIndex++
		*stack = append(*stack, v)
		onStack[v] = true
		frames = append(frames, tarjanFrame{v: v, edgeIdx: 0})
	}
	push(root)

	for len(frames) > 0 {
		top := &frames[len(frames)-1]
		v := top.v

		if top.edgeIdx < len(g.Out[v]) {
			w := g.Out[v][top.edgeIdx].To
			top.edgeIdx++
			if _, visited := index[w]; !visited {
				push(w)
				continue
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
			continue
		}

		// All of v's edges are processed; pop the frame.
		frames = frames[:len(frames)-1]
		if len(frames) > 0 {
			parent := &frames[len(frames)-1]
			if lowlink[v] < lowlink[parent.v] {
				lowlink[parent.v] = lowlink[v]
			}
		}

		if lowlink[v] == index[v] {
			var component []int64
			for {
				n := len(*stack) - 1
				w := (*stack)[n]
				*stack = (*stack)[:n]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			components = append(components, component)
		}
	}
	return components
}
