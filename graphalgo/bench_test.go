package graphalgo

import (
	"fmt"
	"math/rand"
	"testing"
)

// generateLayeredDAG builds a synthetic acyclic edge list of layers*perLayer
// vertices, each vertex in layer i wired to a few vertices in layer i+1.
// Mirrors original_source/core/graph.py's generate_complex_task_graph_ultra_fast:
// a layered generator keeps the result guaranteed acyclic regardless of size,
// which is what the benchmarks below need to exercise TopoSort/SCC/CriticalPath
// at scale without tripping ErrCycle.
func generateLayeredDAG(layers, perLayer, fanOut int) *Graph {
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
	return New(edges)
}

func benchmarkSizes() []struct{ layers, perLayer int } {
	return []struct{ layers, perLayer int }{
		{layers: 10, perLayer: 100},
		{layers: 20, perLayer: 500},
		{layers: 50, perLayer: 1000},
	}
}

func BenchmarkTopoSort(b *testing.B) {
	for _, sz := range benchmarkSizes() {
		g := generateLayeredDAG(sz.layers, sz.perLayer, 4)
		b.Run(fmt.Sprintf("%dx%d", sz.layers, sz.perLayer), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := TopoSort(g); err != nil {
					b.Fatalf("unexpected cycle: %v", err)
				}
			}
		})
	}
}

func BenchmarkStronglyConnectedComponents(b *testing.B) {
	for _, sz := range benchmarkSizes() {
		g := generateLayeredDAG(sz.layers, sz.perLayer, 4)
		b.Run(fmt.Sprintf("%dx%d", sz.layers, sz.perLayer), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				StronglyConnectedComponents(g)
			}
		})
	}
}

func BenchmarkCriticalPath(b *testing.B) {
	for _, sz := range benchmarkSizes() {
		g := generateLayeredDAG(sz.layers, sz.perLayer, 4)
		b.Run(fmt.Sprintf("%dx%d", sz.layers, sz.perLayer), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, _, err := CriticalPath(g); err != nil {
					b.Fatalf("unexpected error: %v", err)
				}
			}
		})
	}
}
