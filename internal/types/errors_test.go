package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationDeprecatedField, http.StatusBadRequest},
		{ErrCodeNormalizationMissingSentBy, http.StatusBadRequest},
		{ErrCodeNotFoundWebhook, http.StatusNotFound},
		{ErrCodeConflictWebhookName, http.StatusConflict},
		{ErrCodeTransientStore, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAppError(ErrCodeTransientBroker, "failed to publish message", cause)

	assert.Equal(t, "transient_broker_unavailable: failed to publish message", err.Error())
	assert.True(t, errors.Is(err, cause))

	var appErr *AppError
	require.True(t, errors.As(error(err), &appErr))
	assert.Equal(t, ErrCodeTransientBroker, appErr.Code)
}

func TestAppErrorIsTransient(t *testing.T) {
	assert.True(t, NewAppError(ErrCodeTransientProvider, "provider down", nil).IsTransient())
	assert.False(t, NewAppError(ErrCodeValidationInvalidField, "bad field", nil).IsTransient())
	assert.False(t, NewAppError(ErrCodeInternalUnexpected, "boom", nil).IsTransient())
}
