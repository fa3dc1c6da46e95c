// Command taskgraphbench is a secondary debug binary, in the shape of the
// teacher's cmd/cc-async-test: a standalone main() exercising one subsystem
// directly rather than going through the HTTP surface. It builds a synthetic
// layered DAG (grounded on original_source/core/graph.py's
// generate_complex_task_graph_ultra_fast) and reports TopoSort/SCC/
// CriticalPath timings at a configurable size.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/hrygo/taskgraph/graphalgo"
)

func main() {
	layers := flag.Int("layers", 20, "number of layers in the synthetic graph")
	perLayer := flag.Int("per-layer", 500, "vertices per layer")
	fanOut := flag.Int("fan-out", 4, "edges from each vertex to the next layer")
	flag.Parse()

	g := generateLayeredDAG(*layers, *perLayer, *fanOut)
	fmt.Printf("graph: %d layers x %d = %d vertices\n", *layers, *perLayer, *layers**perLayer)

	timeIt("TopoSort", func() {
		if _, err := graphalgo.TopoSort(g); err != nil {
			panic(err)
		}
	})
	timeIt("StronglyConnectedComponents", func() {
		graphalgo.StronglyConnectedComponents(g)
	})
	timeIt("CriticalPath", func() {
		if _, _, err := graphalgo.CriticalPath(g); err != nil {
			panic(err)
		}
	})
}

func timeIt(name string, fn func()) {
	start := time.Now()
	fn()
	fmt.Printf("%-30s %s\n", name, time.Since(start))
}

// generateLayeredDAG builds a synthetic acyclic edge list of layers*perLayer
// vertices, each vertex in layer i wired to fanOut vertices in layer i+1.
func generateLayeredDAG(layers, perLayer, fanOut int) *graphalgo.Graph {
	r := rand.New(rand.NewSource(1))
	var edges [][3]int64
	for l := 0; l < layers-1; l++ {
		for i := 0; i < perLayer; i++ {
			from := int64(l*perLayer + i)
			for f := 0; f < fanOut; f++ {
				to := int64((l+1)*perLayer + r.Intn(perLayer))
				edges = append(edges, [3]int64{from, to, int64(1 + r.Intn(5))})
			}
		}
	}
	return graphalgo.New(edges)
}
