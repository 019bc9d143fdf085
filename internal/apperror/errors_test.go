package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("placing order: %w", Validation("Insufficient stock for %q", "Dune"))

	assert.Equal(t, KindValidation, KindOf(err))
	assert.True(t, Is(err, KindValidation))
	assert.Equal(t, `Insufficient stock for "Dune"`, Message(err))
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("connection reset")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.False(t, Is(err, KindNotFound))
	assert.False(t, Is(nil, KindInternal))
	assert.Equal(t, "Internal server error", Message(err))
}

func TestNotFoundMessage(t *testing.T) {
	assert.Equal(t, "Order not found", NotFound("Order").Error())
}

func TestWrapKeepsKind(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Conflict("Coupon code already exists").Wrap(cause)

	assert.Equal(t, KindConflict, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Coupon code already exists", Message(err))
}
