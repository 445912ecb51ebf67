package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	cases := map[error]string{
		nil:                                 "ok",
		ErrInvalidRule:                      "invalid_rule",
		fmt.Errorf("wrap: %w", ErrConflict): "conflict",
		ErrAlreadyCancelled:                 "already_cancelled",
		ErrNotFound:                         "not_found",
		ErrInvalidInput:                     "invalid_input",
		errors.New("boom"):                  "internal",
	}
	for err, want := range cases {
		assert.Equal(t, want, Kind(err))
	}
}

func TestTransientWrapping(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	err := Transient(cause)

	assert.True(t, errors.Is(err, ErrTransient))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, Retryable(fmt.Errorf("failed to create booking: %w", err)))
	assert.Nil(t, Transient(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(fmt.Errorf("query: %w", context.DeadlineExceeded)))
	assert.True(t, IsTransient(errors.New("read: connection reset by peer")))
	assert.False(t, IsTransient(errors.New("syntax error at or near")))
	assert.False(t, IsTransient(nil))
}
