package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSchema(t *testing.T) *Schema {
	t.Helper()
	schema, err := NewSchema([]Field{
		{Name: "source", DType: Uint16},
		{Name: "target", DType: Uint16},
		{Name: "duration", DType: Uint32},
	})
	require.NoError(t, err)
	return schema
}

func TestAddAndGetEdge(t *testing.T) {
	schema := newTestSchema(t)
	store, err := New(schema, "source", "target")
	require.NoError(t, err)

	idx, err := store.AddEdge(map[string]int64{"source": 1, "target": 2, "duration": 42})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	edge, err := store.GetEdge(idx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), edge["source"])
	assert.Equal(t, int64(2), edge["target"])
	assert.Equal(t, int64(42), edge["duration"])
}

func TestAddEdgeMissingField(t *testing.T) {
	schema := newTestSchema(t)
	store, err := New(schema, "source", "target")
	require.NoError(t, err)

	_, err = store.AddEdge(map[string]int64{"source": 1, "target": 2})
	assert.Error(t, err)
}

func TestAddEdgeOutOfRange(t *testing.T) {
	schema := newTestSchema(t)
	store, err := New(schema, "source", "target")
	require.NoError(t, err)

	_, err = store.AddEdge(map[string]int64{"source": 1, "target": 2, "duration": 1 << 40})
	assert.Error(t, err)
}

func TestGetEdgeOutOfRange(t *testing.T) {
	schema := newTestSchema(t)
	store, err := New(schema, "source", "target")
	require.NoError(t, err)
	_, err = store.GetEdge(0)
	assert.Error(t, err)
}

func TestBufferSizeInvariant(t *testing.T) {
	schema := newTestSchema(t)
	store, err := New(schema, "source", "target")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := store.AddEdge(map[string]int64{"source": int64(i), "target": int64(i + 1), "duration": 1})
		require.NoError(t, err)
	}
	assert.Equal(t, store.NumEdges()*store.RecordSize(), store.BufferSize())
}

func TestVertices(t *testing.T) {
	schema := newTestSchema(t)
	store, err := New(schema, "source", "target")
	require.NoError(t, err)

	_, _ = store.AddEdge(map[string]int64{"source": 1, "target": 2, "duration": 1})
	_, _ = store.AddEdge(map[string]int64{"source": 2, "target": 3, "duration": 1})

	vertices := store.Vertices()
	assert.Len(t, vertices, 3)
	for _, v := range []int64{1, 2, 3} {
		_, ok := vertices[v]
		assert.True(t, ok)
	}
}

func TestAdjacencyPreservesInsertionOrderAndWeight(t *testing.T) {
	schema := newTestSchema(t)
	store, err := New(schema, "source", "target")
	require.NoError(t, err)

	_, _ = store.AddEdge(map[string]int64{"source": 1, "target": 2, "duration": 10})
	_, _ = store.AddEdge(map[string]int64{"source": 1, "target": 3, "duration": 20})

	out, in := store.Adjacency()
	require.Len(t, out[1], 2)
	assert.Equal(t, int64(2), out[1][0].Neighbor)
	assert.Equal(t, int64(10), out[1][0].Weight)
	assert.Equal(t, int64(3), out[1][1].Neighbor)
	assert.Equal(t, int64(20), out[1][1].Weight)

	require.Len(t, in[2], 1)
	assert.Equal(t, int64(1), in[2][0].Neighbor)
}

func TestAdjacencyNoDurationFieldDefaultsZeroWeight(t *testing.T) {
	schema, err := NewSchema([]Field{
		{Name: "source", DType: Uint8},
		{Name: "target", DType: Uint8},
	})
	require.NoError(t, err)
	store, err := New(schema, "source", "target")
	require.NoError(t, err)

	_, _ = store.AddEdge(map[string]int64{"source": 1, "target": 2})
	out, _ := store.Adjacency()
	assert.Equal(t, int64(0), out[1][0].Weight)
}

func TestLittleEndianLayout(t *testing.T) {
	schema, err := NewSchema([]Field{
		{Name: "source", DType: Uint32},
		{Name: "target", DType: Uint32},
	})
	require.NoError(t, err)
	store, err := New(schema, "source", "target")
	require.NoError(t, err)

	_, err = store.AddEdge(map[string]int64{"source": 0x01020304, "target": 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01, 0x00, 0x00, 0x00, 0x00}, store.buf)

	raw, err := store.GetEdge(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0x01020304), raw["source"])
}
