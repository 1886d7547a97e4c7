package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("finds code on the outer error", func(t *testing.T) {
		err := New(CodeNotFound, "rule not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("finds code buried in the chain", func(t *testing.T) {
		inner := New(CodeQuotaExceeded, "limit of 3 active rules reached")
		outer := Wrap(inner, CodeInternal, "create rule")
		assert.True(t, HasCode(outer, CodeQuotaExceeded))
		assert.True(t, HasCode(outer, CodeInternal))
	})

	t.Run("finds code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeValidation, "threshold out of range"))
		assert.True(t, HasCode(err, CodeValidation))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil cause yields nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, CodeInternal, "should vanish"))
	})

	t.Run("cause stays reachable via errors.Is", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeUnavailable, "webhook send failed")
		require.Error(t, err)
		assert.True(t, errors.Is(err, cause))
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeForbidden, CodeOf(New(CodeForbidden, "not your rule")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("opaque")))
}
