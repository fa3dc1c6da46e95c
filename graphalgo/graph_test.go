package graphalgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskgraph/graphstore"
)

func linearChain() *Graph {
	return New([][3]int64{{1, 2, 1}, {2, 3, 1}})
}

func TestTopoSortLinearChain(t *testing.T) {
	order, err := TopoSort(linearChain())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, order)
}

func TestTopoSortEmptyGraph(t *testing.T) {
	order, err := TopoSort(New(nil))
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestTopoSortTieBreakAscending(t *testing.T) {
	// 3 -> 1, 3 -> 2: both 1 and 2 become ready together after 3 is emitted.
	g := New([][3]int64{{3, 1, 0}, {3, 2, 0}})
	order, err := TopoSort(g)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, order)
}

func TestTopoSortCycleFails(t *testing.T) {
	g := New([][3]int64{{1, 2, 0}, {2, 1, 0}})
	_, err := TopoSort(g)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestIsDAG(t *testing.T) {
	assert.True(t, IsDAG(linearChain()))
	assert.False(t, IsDAG(New([][3]int64{{1, 2, 0}, {2, 1, 0}})))
}

func TestStronglyConnectedComponents(t *testing.T) {
	// 1<->2 form a cycle; 3 is isolated downstream.
	g := New([][3]int64{{1, 2, 0}, {2, 1, 0}, {2, 3, 0}})
	sccs := StronglyConnectedComponents(g)

	var sawPair, sawSingleton bool
	for _, c := range sccs {
		if len(c) == 2 {
			sawPair = true
		}
		if len(c) == 1 && c[0] == 3 {
			sawSingleton = true
		}
	}
	assert.True(t, sawPair, "expected the 1<->2 cycle as one component")
	assert.True(t, sawSingleton, "expected vertex 3 as its own component")
}

func TestHasCycleDetectsBackEdge(t *testing.T) {
	has, count := HasCycle(New([][3]int64{{1, 2, 0}, {2, 1, 0}}), 0)
	assert.True(t, has)
	assert.GreaterOrEqual(t, count, 1)
}

func TestHasCycleFalseOnDAG(t *testing.T) {
	has, count := HasCycle(linearChain(), 0)
	assert.False(t, has)
	assert.Equal(t, 0, count)
}

func TestHasCycleRespectsCountBound(t *testing.T) {
	// A complete-ish graph with many back edges; bound caps the count.
	edges := [][3]int64{}
	for i := int64(1); i <= 10; i++ {
		for j := int64(1); j <= 10; j++ {
			if i != j {
				edges = append(edges, [3]int64{i, j, 0})
			}
		}
	}
	has, count := HasCycle(New(edges), 5)
	assert.True(t, has)
	assert.LessOrEqual(t, count, 5)
}

func TestSampleCyclesFindsSimpleCycle(t *testing.T) {
	g := New([][3]int64{{1, 2, 0}, {2, 3, 0}, {3, 1, 0}})
	cycles := SampleCycles(g, 10, nil, 0)
	require.NotEmpty(t, cycles)
}

func TestSampleCyclesRespectsMaxCycles(t *testing.T) {
	g := New([][3]int64{{1, 2, 0}, {2, 1, 0}, {1, 3, 0}, {3, 1, 0}})
	cycles := SampleCycles(g, 1, nil, 0)
	assert.LessOrEqual(t, len(cycles), 1)
}

func TestCriticalPathOnDAG(t *testing.T) {
	g := New([][3]int64{{1, 2, 5}, {2, 3, 3}, {1, 3, 1}})
	total, path, err := CriticalPath(g)
	require.NoError(t, err)
	assert.Equal(t, int64(8), total)
	assert.Equal(t, []int64{1, 2, 3}, path)
}

func TestCriticalPathRejectsCycle(t *testing.T) {
	_, _, err := CriticalPath(New([][3]int64{{1, 2, 1}, {2, 1, 1}}))
	assert.ErrorIs(t, err, ErrNotDAG)
}

func TestCriticalPathEmptyGraph(t *testing.T) {
	total, path, err := CriticalPath(New(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, path)
}

func TestShortestPathSameVertex(t *testing.T) {
	d, path := ShortestPath(linearChain(), 1, 1, false)
	require.NotNil(t, d)
	assert.Equal(t, int64(0), *d)
	assert.Equal(t, []int64{1}, path)
}

func TestShortestPathUnweightedBFS(t *testing.T) {
	g := New([][3]int64{{1, 2, 0}, {2, 3, 0}, {1, 3, 0}})
	d, path := ShortestPath(g, 1, 3, false)
	require.NotNil(t, d)
	assert.Equal(t, int64(1), *d)
	assert.Equal(t, []int64{1, 3}, path)
}

func TestShortestPathWeightedDijkstra(t *testing.T) {
	g := New([][3]int64{{1, 2, 10}, {2, 3, 10}, {1, 3, 100}})
	d, path := ShortestPath(g, 1, 3, true)
	require.NotNil(t, d)
	assert.Equal(t, int64(20), *d)
	assert.Equal(t, []int64{1, 2, 3}, path)
}

func TestShortestPathUnreachable(t *testing.T) {
	g := New([][3]int64{{1, 2, 0}})
	d, path := ShortestPath(g, 2, 1, false)
	assert.Nil(t, d)
	assert.Nil(t, path)
}

func TestFromEdgeStoreRoundTrip(t *testing.T) {
	schema, err := graphstore.NewSchema([]graphstore.Field{
		{Name: "source", DType: graphstore.Uint32},
		{Name: "target", DType: graphstore.Uint32},
		{Name: "duration", DType: graphstore.Uint32},
	})
	require.NoError(t, err)
	store, err := graphstore.New(schema, "source", "target")
	require.NoError(t, err)

	_, err = store.AddEdge(map[string]int64{"source": 1, "target": 2, "duration": 7})
	require.NoError(t, err)

	g := FromEdgeStore(store)
	require.Len(t, g.Out[1], 1)
	assert.Equal(t, int64(2), g.Out[1][0].To)
	assert.Equal(t, int64(7), g.Out[1][0].Weight)
}
