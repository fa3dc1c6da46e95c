package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOfClassified(t *testing.T) {
	err := Conflictf(WouldCreateCycle, "edge %d->%d would create a cycle", 1, 2)
	assert.Equal(t, Conflict, CategoryOf(err))
	assert.Equal(t, WouldCreateCycle, CodeOf(err))
	assert.True(t, Is(err, Conflict))
}

func TestCategoryOfUnclassifiedDefaultsInternal(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, Internal, CategoryOf(err))
	assert.Equal(t, "", CodeOf(err))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("missing row")
	err := NotFoundf("task %d: %w", 7, inner)
	assert.ErrorIs(t, err, inner)
}

func TestCategoryStrings(t *testing.T) {
	cases := map[Category]string{
		Validation: "validation",
		NotFound:   "not_found",
		Forbidden:  "forbidden",
		Conflict:   "conflict",
		Transient:  "transient",
		Internal:   "internal",
	}
	for cat, want := range cases {
		assert.Equal(t, want, cat.String())
	}
}
