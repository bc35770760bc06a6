package main

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueError_Error(t *testing.T) {
	assert.Equal(t, "E_NOT_FOUND", ErrReservationNotFound.Error())
	assert.Equal(t, "E_NOT_FOUND: reservation r1", ErrReservationNotFound.WithMessage("reservation r1").Error())
}

func TestQueueError_WithMessageKeepsClass(t *testing.T) {
	err := ErrDurationInvalid.WithMessagef("duration %d", 7)

	assert.Equal(t, "E_DURATION_INVALID", err.Code)
	assert.Equal(t, "duration 7", err.Message)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Empty(t, ErrDurationInvalid.Message, "base error must stay untouched")
}

func TestQueueError_IsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("add: %w", ErrNameInvalid.WithMessage("blank"))

	assert.True(t, errors.Is(wrapped, ErrNameInvalid))
	assert.False(t, errors.Is(wrapped, ErrDurationInvalid))
	assert.False(t, errors.Is(wrapped, errors.New("E_NAME_INVALID")))

	var qe *QueueError
	require.True(t, errors.As(wrapped, &qe))
	assert.Equal(t, http.StatusBadRequest, qe.Status)
}

func TestQueueError_Statuses(t *testing.T) {
	tests := []struct {
		err    *QueueError
		status int
	}{
		{ErrRequestInvalid, http.StatusBadRequest},
		{ErrNameInvalid, http.StatusBadRequest},
		{ErrDurationInvalid, http.StatusBadRequest},
		{ErrInvalidPosition, http.StatusBadRequest},
		{ErrReservationNotFound, http.StatusNotFound},
		{ErrInvalidTransition, http.StatusConflict},
		{ErrTokenInvalid, http.StatusForbidden},
		{ErrOutsideHours, http.StatusForbidden},
		{ErrForbidden, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
		})
	}
}
