package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByCode(t *testing.T) {
	err := UnknownCode("abc")

	assert.True(t, errors.Is(err, ErrCodeNotFound))
	assert.False(t, errors.Is(err, ErrCodeInactive))

	wrapped := fmt.Errorf("record scan: %w", err)
	assert.True(t, errors.Is(wrapped, ErrCodeNotFound))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{UnknownCode("x"), http.StatusNotFound},
		{InactiveCode("x"), http.StatusNotFound},
		{StorageUnavailable("save image", errors.New("disk full")), http.StatusServiceUnavailable},
		{ErrMalformedDestination, http.StatusBadRequest},
		{Validation("bad"), http.StatusBadRequest},
		{Conflict("dup"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestMessage_HidesInternalErrors(t *testing.T) {
	assert.Equal(t, "internal server error", Message(errors.New("pq: connection refused")))
	assert.Equal(t, "duplicate", Message(Conflict("duplicate")))
}

func TestWrap_Unwraps(t *testing.T) {
	cause := errors.New("badger closed")
	err := StorageUnavailable("save image", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "badger closed")
}

func TestIsInvalidCode(t *testing.T) {
	assert.True(t, IsInvalidCode(UnknownCode("x")))
	assert.True(t, IsInvalidCode(InactiveCode("x")))
	assert.False(t, IsInvalidCode(ErrStorageUnavailable))
	assert.False(t, IsInvalidCode(nil))
}
