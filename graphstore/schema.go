// Package graphstore implements the binary edge container from spec §4.1: a
// fixed-record container of typed edges, packed little-endian at fixed
// offsets, with O(E) scans and no per-edge allocation. Grounded on
// original_source/core/graph.py's Field/EdgeSchema/GraphStorage, rewritten
// around encoding/binary instead of Python's struct.Struct.
package graphstore

import (
	"encoding/binary"
	"fmt"
)

// DType is an integer field width/signedness, one of the eight the schema
// supports.
type DType int

const (
	Uint8 DType = iota
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
)

// size returns the encoded width in bytes.
func (d DType) size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32:
		return 4
	case Uint64, Int64:
		return 8
	default:
		panic(fmt.Sprintf("graphstore: unknown dtype %d", d))
	}
}

// maxValue returns the largest value the dtype can hold. Signed dtypes are
// range-checked the same as unsigned ones: the schema stores non-negative
// quantities (vertex ids, durations) so the lower bound is always 0
// regardless of signedness, matching original_source's `value < 0` check.
func (d DType) maxValue() int64 {
	switch d {
	case Uint8:
		return 255
	case Int8:
		return 127
	case Uint16:
		return 65535
	case Int16:
		return 32767
	case Uint32:
		return 4294967295
	case Int32:
		return 2147483647
	case Uint64, Int64:
		return 1<<63 - 1
	default:
		panic(fmt.Sprintf("graphstore: unknown dtype %d", d))
	}
}

// Field describes one named, typed column of an edge record.
type Field struct {
	Name   string
	DType  DType
	offset int
}

// Schema is the ordered, fixed-offset binary layout of an edge record.
type Schema struct {
	fields     []Field
	offsets    map[string]int
	fieldByName map[string]Field
	RecordSize int
}

// NewSchema builds a Schema from an ordered field list. Field offsets are
// assigned packed with no padding, in declaration order.
func NewSchema(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("graphstore: schema must declare at least one field")
	}
	s := &Schema{
		offsets:     make(map[string]int, len(fields)),
		fieldByName: make(map[string]Field, len(fields)),
	}
	offset := 0
	for _, f := range fields {
		if _, dup := s.offsets[f.Name]; dup {
			return nil, fmt.Errorf("graphstore: duplicate field %q", f.Name)
		}
		f.offset = offset
		s.fields = append(s.fields, f)
		s.offsets[f.Name] = offset
		s.fieldByName[f.Name] = f
		offset += f.DType.size()
	}
	s.RecordSize = offset
	return s, nil
}

// FieldNames returns the schema's fields in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Has reports whether the schema declares a field of that name.
func (s *Schema) Has(name string) bool {
	_, ok := s.offsets[name]
	return ok
}

func (s *Schema) putField(buf []byte, f Field, value int64) error {
	if value < 0 || value > f.DType.maxValue() {
		return fmt.Errorf("graphstore: value %d out of range for field %q (dtype max %d)", value, f.Name, f.DType.maxValue())
	}
	off := f.offset
	switch f.DType {
	case Uint8, Int8:
		buf[off] = byte(value)
	case Uint16, Int16:
		binary.LittleEndian.PutUint16(buf[off:], uint16(value))
	case Uint32, Int32:
		binary.LittleEndian.PutUint32(buf[off:], uint32(value))
	case Uint64, Int64:
		binary.LittleEndian.PutUint64(buf[off:], uint64(value))
	}
	return nil
}

func (s *Schema) getField(buf []byte, f Field) int64 {
	off := f.offset
	switch f.DType {
	case Uint8:
		return int64(buf[off])
	case Int8:
		return int64(int8(buf[off]))
	case Uint16:
		return int64(binary.LittleEndian.Uint16(buf[off:]))
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(buf[off:])))
	case Uint32:
		return int64(binary.LittleEndian.Uint32(buf[off:]))
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(buf[off:])))
	case Uint64:
		return int64(binary.LittleEndian.Uint64(buf[off:]))
	case Int64:
		return int64(binary.LittleEndian.Uint64(buf[off:]))
	default:
		panic(fmt.Sprintf("graphstore: unknown dtype %d", f.DType))
	}
}
