package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Run("WithoutCause", func(t *testing.T) {
		err := NotFound("session abc not found")
		assert.Equal(t, "[NOT_FOUND] session abc not found", err.Error())
	})

	t.Run("WithCause", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := ServiceUnavailable("conversation sink down", cause)
		assert.Equal(t, "[SERVICE_UNAVAILABLE] conversation sink down: connection refused", err.Error())
	})
}

func TestIsCode(t *testing.T) {
	err := InvalidArgument("scope id is empty")
	assert.True(t, IsCode(err, CodeInvalidArgument))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(stderrors.New("plain"), CodeInvalidArgument))
	assert.False(t, IsCode(nil, CodeInvalidArgument))
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := NotFoundf("order %s not found", "ord_123")
	wrapped := fmt.Errorf("loading order: %w", inner)

	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped, CodeServiceUnavailable))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(cause, CodeInvariantViolation, "duplicate session id")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeInvariantViolation, CodeOf(err, CodeNotFound))
}

func TestWithContext(t *testing.T) {
	err := NotFound("conversation missing").
		WithContext("conversation_id", "conv_1").
		WithContext("scope_id", "scp_1")

	assert.Equal(t, "conv_1", err.Context["conversation_id"])
	assert.Equal(t, "scp_1", err.Context["scope_id"])
}

func TestCodeOfDefault(t *testing.T) {
	assert.Equal(t, CodeTimeout, CodeOf(stderrors.New("plain"), CodeTimeout))
}
