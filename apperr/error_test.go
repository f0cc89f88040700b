package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := SaveError("alpha", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, KindSave, err.Kind)
	assert.Contains(t, err.Error(), "alpha")
	assert.Contains(t, err.Error(), "disk full")
}

func TestErrorIsMatchesKind(t *testing.T) {
	a := LoadError("alpha", errors.New("boom"))
	b := LoadError("beta", errors.New("other"))
	c := SaveError("alpha", errors.New("boom"))

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("missing")
	assert.Equal(t, KindNotFound, err.Kind)
	assert.Contains(t, err.Error(), "missing")
}

func TestServiceErrorPreservesCause(t *testing.T) {
	inner := SaveError("alpha", errors.New("io error"))
	wrapped := ServiceError("add_events", inner)

	require.ErrorIs(t, wrapped, inner)
	var asErr *Error
	require.ErrorAs(t, wrapped, &asErr)
	assert.Equal(t, KindService, asErr.Kind)
	assert.Equal(t, KindSave, asErr.Cause.(*Error).Kind)
}
