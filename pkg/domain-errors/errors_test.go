package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCause = errors.New("cause")

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeNotFound, "missing")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches nested code through fmt wrapping", func(t *testing.T) {
		inner := Wrap(errCause, CodeConflict, "taken")
		outer := fmt.Errorf("register: %w", Wrap(inner, CodeInternal, "failed"))
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeConflict))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errCause, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errCause))
	})
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(errCause, CodeForbidden, "denied")
	require.ErrorIs(t, err, errCause)
	assert.Equal(t, "denied: cause", err.Error())
	assert.Equal(t, CodeForbidden, CodeOf(err))
}

func TestErrorIsComparesCodeAndMessage(t *testing.T) {
	err := New(CodeUnauthorized, "invalid token")
	require.ErrorIs(t, err, New(CodeUnauthorized, "invalid token"))
	assert.NotErrorIs(t, err, New(CodeUnauthorized, "token has expired"))
}
