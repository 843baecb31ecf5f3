package nebulaerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeQuery, "nothing"))
}

func TestWrapPreservesStackAndMark(t *testing.T) {
	inner := New(ErrorTypeQuery, "boom").Unrecoverable()
	outer := Wrap(inner, ErrorTypeInternal, "flushing query buffer failed")

	require.NotNil(t, outer)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, IsUnrecoverable(outer))
	assert.True(t, IsType(outer, ErrorTypeInternal))
	assert.True(t, HasType(outer, ErrorTypeQuery))
	assert.ErrorIs(t, outer, inner)
}

func TestIsUnrecoverableThroughFmtWrap(t *testing.T) {
	base := New(ErrorTypeConnection, "could not create connection").Unrecoverable()
	wrapped := fmt.Errorf("node failed: %w", base)

	assert.True(t, IsUnrecoverable(wrapped))
	assert.False(t, IsUnrecoverable(errors.New("plain")))
	assert.False(t, IsUnrecoverable(nil))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection", New(ErrorTypeConnection, "x"), true},
		{"timeout", New(ErrorTypeTimeout, "x"), true},
		{"query", New(ErrorTypeQuery, "x"), false},
		{"prohibited", New(ErrorTypeProhibited, "x"), false},
		{"unrecoverable connection", New(ErrorTypeConnection, "x").Unrecoverable(), false},
		{"plain", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWithDetail(t *testing.T) {
	err := Newf(ErrorTypeValidation, "row has %d fields, expected %d", 3, 2).
		WithDetail("fields", []string{"a", "b", "c"})

	assert.Equal(t, "validation: row has 3 fields, expected 2", err.Error())
	assert.Equal(t, []string{"a", "b", "c"}, err.Details["fields"])
	assert.NotEmpty(t, err.Stack)
}
