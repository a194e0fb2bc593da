package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want int
	}{
		{"not found", NotFound("Appointment with ID 1", nil), http.StatusNotFound},
		{"bad request", BadRequest("bad", nil), http.StatusBadRequest},
		{"conflict", Conflict("dup", nil), http.StatusConflict},
		{"forbidden", Forbidden("nope"), http.StatusForbidden},
		{"unauthorized", Unauthorized(nil), http.StatusUnauthorized},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("Appointment with ID 7", nil)
	assert.Equal(t, "Appointment with ID 7 not found", err.Error())
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internal(cause)

	assert.Equal(t, "internal server error", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestAsFindsWrappedError(t *testing.T) {
	sentinel := errors.New("end time must be after start time")
	wrapped := fmt.Errorf("create: %w", BadRequest("End time must be after start time", sentinel))

	appErr, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ErrBadRequest, appErr.Code)
	assert.True(t, IsBadRequest(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.ErrorIs(t, wrapped, sentinel)
}
