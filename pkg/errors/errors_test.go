package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFound(t *testing.T) {
	err := NotFound("user", "u-1")

	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "u-1")
}

func TestAlreadyExists(t *testing.T) {
	err := AlreadyExists("user", "email", "ada@x.io")

	assert.Equal(t, "ALREADY_EXISTS", err.Code)
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.True(t, errors.Is(err, ErrAlreadyExists))
}

func TestUnauthorized(t *testing.T) {
	err := Unauthorized("refresh token is expired or used")

	assert.Equal(t, http.StatusUnauthorized, err.Status)
	assert.Equal(t, "refresh token is expired or used", err.Message)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestUpstream_KeepsCause(t *testing.T) {
	cause := errors.New("s3: connection refused")
	err := Upstream("avatar upload failed", cause)

	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.True(t, errors.Is(err, cause))
	// The client-facing message never includes the cause.
	assert.Equal(t, "avatar upload failed", err.Message)
}

func TestInternal_DefaultMessage(t *testing.T) {
	err := Internal("", errors.New("boom"))

	assert.Equal(t, "an internal error occurred", err.Message)
	assert.True(t, errors.Is(err, ErrInternal))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"app error", InvalidInput("bad"), http.StatusBadRequest},
		{"wrapped app error", fmt.Errorf("ctx: %w", Unauthorized("no")), http.StatusUnauthorized},
		{"sentinel", fmt.Errorf("ctx: %w", ErrConflictLike()), http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

// ErrConflictLike returns a plain error wrapping the already-exists sentinel.
func ErrConflictLike() error {
	return fmt.Errorf("duplicate: %w", ErrAlreadyExists)
}
