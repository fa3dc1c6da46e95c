package graphstore

import "fmt"

// EdgeStore stores edges as a contiguous little-endian byte buffer of
// fixed-length records (spec §4.1). Two schema fields are nominated as the
// source and target of each edge; an optional "duration" field supplies
// edge weight for weighted algorithms (§4.2).
type EdgeStore struct {
	schema      *Schema
	sourceField string
	targetField string
	buf         []byte
	numEdges    int
}

// New creates an empty EdgeStore over schema, with sourceField/targetField
// nominated as the edge endpoints. Both must be integer fields declared in
// schema.
func New(schema *Schema, sourceField, targetField string) (*EdgeStore, error) {
	if !schema.Has(sourceField) {
		return nil, fmt.Errorf("graphstore: source field %q not in schema", sourceField)
	}
	if !schema.Has(targetField) {
		return nil, fmt.Errorf("graphstore: target field %q not in schema", targetField)
	}
	return &EdgeStore{schema: schema, sourceField: sourceField, targetField: targetField}, nil
}

// NumEdges returns the number of stored edges.
func (e *EdgeStore) NumEdges() int { return e.numEdges }

// BufferSize returns len(buffer) == NumEdges()*RecordSize, per the §4.1
// invariant.
func (e *EdgeStore) BufferSize() int { return len(e.buf) }

// RecordSize returns the fixed per-edge record size in bytes.
func (e *EdgeStore) RecordSize() int { return e.schema.RecordSize }

// AddEdge appends one edge record. fields must supply a value for every
// schema field; range-checking is per-field against its dtype's bounds.
// Returns the new edge's 0-based index.
func (e *EdgeStore) AddEdge(fields map[string]int64) (int, error) {
	for _, f := range e.schema.fields {
		if _, ok := fields[f.Name]; !ok {
			return 0, fmt.Errorf("graphstore: missing field %q in edge data", f.Name)
		}
	}

	start := e.numEdges * e.schema.RecordSize
	e.buf = append(e.buf, make([]byte, e.schema.RecordSize)...)
	for _, f := range e.schema.fields {
		if err := e.schema.putField(e.buf[start:start+e.schema.RecordSize], f, fields[f.Name]); err != nil {
			e.buf = e.buf[:start]
			return 0, err
		}
	}
	idx := e.numEdges
	e.numEdges++
	return idx, nil
}

// GetEdge returns the field values of the edge at idx.
func (e *EdgeStore) GetEdge(idx int) (map[string]int64, error) {
	if idx < 0 || idx >= e.numEdges {
		return nil, fmt.Errorf("graphstore: edge index %d out of range [0,%d)", idx, e.numEdges)
	}
	start := idx * e.schema.RecordSize
	rec := e.buf[start : start+e.schema.RecordSize]
	out := make(map[string]int64, len(e.schema.fields))
	for _, f := range e.schema.fields {
		out[f.Name] = e.schema.getField(rec, f)
	}
	return out, nil
}

// Vertices returns the set of distinct source/target values seen across all
// edges, computed in a single scan with no per-edge allocation beyond the
// result set itself.
func (e *EdgeStore) Vertices() map[int64]struct{} {
	src := e.schema.fieldByName[e.sourceField]
	tgt := e.schema.fieldByName[e.targetField]
	vertices := make(map[int64]struct{})
	sz := e.schema.RecordSize
	for i := 0; i < e.numEdges; i++ {
		off := i * sz
		rec := e.buf[off : off+sz]
		vertices[e.schema.getField(rec, src)] = struct{}{}
		vertices[e.schema.getField(rec, tgt)] = struct{}{}
	}
	return vertices
}

// AdjacencyEntry is one out/in-adjacency record: the neighbor vertex, the
// edge's index in the store, and its weight (0 if the store has no
// "duration" field).
type AdjacencyEntry struct {
	Neighbor int64
	EdgeIdx  int
	Weight   int64
}

// Adjacency materializes paired out/in adjacency lists in insertion order
// (spec §4.1). The weight comes from the well-known "duration" field if the
// schema declares one, else 0.
func (e *EdgeStore) Adjacency() (out, in map[int64][]AdjacencyEntry) {
	src := e.schema.fieldByName[e.sourceField]
	tgt := e.schema.fieldByName[e.targetField]
	var durationField *Field
	if e.schema.Has("duration") {
		f := e.schema.fieldByName["duration"]
		durationField = &f
	}

	out = make(map[int64][]AdjacencyEntry)
	in = make(map[int64][]AdjacencyEntry)
	sz := e.schema.RecordSize

	for i := 0; i < e.numEdges; i++ {
		off := i * sz
		rec := e.buf[off : off+sz]
		s := e.schema.getField(rec, src)
		t := e.schema.getField(rec, tgt)
		var weight int64
		if durationField != nil {
			weight = e.schema.getField(rec, *durationField)
		}
		out[s] = append(out[s], AdjacencyEntry{Neighbor: t, EdgeIdx: i, Weight: weight})
		in[t] = append(in[t], AdjacencyEntry{Neighbor: s, EdgeIdx: i, Weight: weight})
	}
	return out, in
}
