package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelHierarchy(t *testing.T) {
	assert.True(t, IsNotFound(ErrJobNotFound))
	assert.True(t, IsConflict(ErrJobTerminal))
	assert.True(t, IsConflict(ErrInvalidTransition))
	assert.True(t, IsBadRequest(ErrUnknownKind))
	assert.False(t, IsNotFound(ErrJobTerminal))
}

func TestValidationErrorIs(t *testing.T) {
	err := fmt.Errorf("decode: %w", ValidationError{Field: "batch_size", Message: "must be >= 1"})
	assert.True(t, IsValidation(err))
	assert.Equal(t, "decode: batch_size: must be >= 1", err.Error())

	var ve ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "batch_size", ve.Field)
}

func TestWrapHelpers(t *testing.T) {
	cause := errors.New("boom")

	nf := WrapNotFound("artifact", cause)
	assert.True(t, IsNotFound(nf))
	assert.ErrorIs(t, nf, cause)

	in := WrapInternal("publish artifact", cause)
	assert.ErrorIs(t, in, ErrInternal)
	assert.ErrorIs(t, in, cause)
}
