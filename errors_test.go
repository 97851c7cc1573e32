package rowan_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowandb/rowan"
)

func TestNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := rowan.NewNotFoundError("User")
		assert.Equal(t, "rowan: User not found", err.Error())
	})

	t.Run("ErrorWithID", func(t *testing.T) {
		err := rowan.NewNotFoundErrorWithID("User", 42)
		assert.Equal(t, "rowan: User not found (id=42)", err.Error())
		assert.Equal(t, 42, err.ID())
	})

	t.Run("Is", func(t *testing.T) {
		err := rowan.NewNotFoundError("Product")
		assert.True(t, errors.Is(err, rowan.ErrNotFound))
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := rowan.NewNotFoundError("Category")
		assert.True(t, rowan.IsNotFound(err))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, rowan.IsNotFound(wrapped))

		// Sentinel error
		assert.True(t, rowan.IsNotFound(rowan.ErrNotFound))

		// Non-matching error
		assert.False(t, rowan.IsNotFound(errors.New("other error")))
		assert.False(t, rowan.IsNotFound(nil))
	})
}

func TestConfigurationError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := rowan.NewConfigurationError("entity User", "unknown relation %q", "orders")
		assert.Equal(t, `rowan: invalid configuration: entity User: unknown relation "orders"`, err.Error())
	})

	t.Run("ErrorWithoutComponent", func(t *testing.T) {
		err := rowan.NewConfigurationError("", "unsupported dialect %q", "oracle")
		assert.Equal(t, `rowan: invalid configuration: unsupported dialect "oracle"`, err.Error())
	})

	t.Run("IsConfiguration", func(t *testing.T) {
		err := rowan.NewConfigurationError("aggregate", "function %q not allowed", "EXPLODE")
		assert.True(t, rowan.IsConfiguration(err))

		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, rowan.IsConfiguration(wrapped))

		assert.False(t, rowan.IsConfiguration(errors.New("other error")))
		assert.False(t, rowan.IsConfiguration(nil))
	})
}

func TestBindError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := rowan.NewBindError("age > ? AND age < ?", 2, 1)
		assert.Equal(t, `rowan: bind "age > ? AND age < ?": statement wants 2 parameters, got 1`, err.Error())
	})

	t.Run("IsBind", func(t *testing.T) {
		err := rowan.NewBindError("id = ?", 1, 0)
		assert.True(t, rowan.IsBind(err))

		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, rowan.IsBind(wrapped))

		assert.False(t, rowan.IsBind(errors.New("other error")))
		assert.False(t, rowan.IsBind(nil))
	})
}

func TestComputedError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := rowan.NewComputedError("fullName", errors.New("nil field"))
		assert.Equal(t, `rowan: computing "fullName": nil field`, err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("division by zero")
		err := rowan.NewComputedError("ratio", underlying)
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("IsComputed", func(t *testing.T) {
		err := rowan.NewComputedError("total", errors.New("boom"))
		assert.True(t, rowan.IsComputed(err))

		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, rowan.IsComputed(wrapped))

		assert.False(t, rowan.IsComputed(errors.New("other error")))
		assert.False(t, rowan.IsComputed(nil))
	})
}

func TestConstraintError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := rowan.NewConstraintError("UNIQUE constraint failed", nil)
		assert.Equal(t, "rowan: constraint failed: UNIQUE constraint failed", err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("db error")
		err := rowan.NewConstraintError("constraint violated", underlying)
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("IsConstraintError", func(t *testing.T) {
		err := rowan.NewConstraintError("check failed", nil)
		assert.True(t, rowan.IsConstraintError(err))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, rowan.IsConstraintError(wrapped))

		// Non-matching error
		assert.False(t, rowan.IsConstraintError(errors.New("other error")))
		assert.False(t, rowan.IsConstraintError(nil))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := rowan.NewValidationError("email", errors.New("invalid format"))
		assert.Equal(t, `rowan: validator failed for field "email": invalid format`, err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("too short")
		err := rowan.NewValidationError("name", underlying)
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("IsValidationError", func(t *testing.T) {
		err := rowan.NewValidationError("age", errors.New("must be positive"))
		assert.True(t, rowan.IsValidationError(err))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, rowan.IsValidationError(wrapped))

		// Non-matching error
		assert.False(t, rowan.IsValidationError(errors.New("other error")))
		assert.False(t, rowan.IsValidationError(nil))
	})
}

func TestAggregateError(t *testing.T) {
	t.Run("NoErrors", func(t *testing.T) {
		err := rowan.NewAggregateError()
		assert.Nil(t, err)
	})

	t.Run("NilErrors", func(t *testing.T) {
		err := rowan.NewAggregateError(nil, nil, nil)
		assert.Nil(t, err)
	})

	t.Run("SingleError", func(t *testing.T) {
		single := errors.New("single error")
		err := rowan.NewAggregateError(single)
		assert.Equal(t, single, err)
	})

	t.Run("MultipleErrors", func(t *testing.T) {
		err1 := errors.New("error 1")
		err2 := errors.New("error 2")
		err := rowan.NewAggregateError(err1, err2)

		require.NotNil(t, err)
		assert.Contains(t, err.Error(), "multiple errors")
		assert.Contains(t, err.Error(), "error 1")
		assert.Contains(t, err.Error(), "error 2")
	})

	t.Run("MixedNilAndErrors", func(t *testing.T) {
		err1 := errors.New("error 1")
		err := rowan.NewAggregateError(nil, err1, nil)

		require.NotNil(t, err)
		assert.Equal(t, err1, err) // Single non-nil error returned directly
	})
}

func TestSentinelErrors(t *testing.T) {
	t.Run("ErrNotFound", func(t *testing.T) {
		assert.Error(t, rowan.ErrNotFound)
		assert.Contains(t, rowan.ErrNotFound.Error(), "not found")
	})

	t.Run("ErrNotConnected", func(t *testing.T) {
		assert.Error(t, rowan.ErrNotConnected)
		assert.Contains(t, rowan.ErrNotConnected.Error(), "not connected")
	})

	t.Run("ErrNoTransaction", func(t *testing.T) {
		assert.Error(t, rowan.ErrNoTransaction)
		assert.Contains(t, rowan.ErrNoTransaction.Error(), "transaction")
	})
}

// BenchmarkErrors benchmarks error creation and checking.
func BenchmarkErrors(b *testing.B) {
	b.Run("NewNotFoundError", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = rowan.NewNotFoundError("User")
		}
	})

	b.Run("IsNotFound", func(b *testing.B) {
		err := rowan.NewNotFoundError("User")
		for i := 0; i < b.N; i++ {
			_ = rowan.IsNotFound(err)
		}
	})

	b.Run("NewConstraintError", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = rowan.NewConstraintError("unique", nil)
		}
	})

	b.Run("IsConstraintError", func(b *testing.B) {
		err := rowan.NewConstraintError("unique", nil)
		for i := 0; i < b.N; i++ {
			_ = rowan.IsConstraintError(err)
		}
	})

	b.Run("NewConfigurationError", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = rowan.NewConfigurationError("entity", "bad column")
		}
	})

	b.Run("NewAggregateError_multiple", func(b *testing.B) {
		err1 := errors.New("err1")
		err2 := errors.New("err2")
		err3 := errors.New("err3")
		for i := 0; i < b.N; i++ {
			_ = rowan.NewAggregateError(err1, err2, err3)
		}
	})
}
