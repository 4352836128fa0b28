package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorf(t *testing.T) {
	err := NewErrorf(ErrCodeNotFound, "template %q not found", "default")
	assert.Equal(t, ErrCodeNotFound, err.Code)
	assert.Contains(t, err.Error(), `template "default" not found`)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestWithCauseUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewError(ErrCodeStore, "append outcome failed").WithCause(cause)

	assert.ErrorIs(t, err, cause)

	var ee *EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, ErrCodeStore, ee.Code)
}

func TestWithDetails(t *testing.T) {
	err := NewError(ErrCodeValidation, "bad payload").
		WithDetails(map[string]any{"violations": []string{"/seats: got string, want integer"}})

	require.NotNil(t, err.Details)
	assert.Len(t, err.Details["violations"], 1)
}
