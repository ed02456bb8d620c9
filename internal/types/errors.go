package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Pipeline stages and handlers MUST use these
// constants instead of hardcoded strings so that dead-letter routing and
// HTTP mapping stay consistent.
const (
	// Validation: malformed or deprecated envelope. Terminal, dead-lettered,
	// never retried.
	ErrCodeValidationMissingField    ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidField    ErrorCode = "validation_invalid_field"
	ErrCodeValidationDeprecatedField ErrorCode = "validation_deprecated_field"
	ErrCodeValidationEventType       ErrorCode = "validation_invalid_event_type"
	ErrCodeValidationEmptyChannels   ErrorCode = "validation_empty_channels"
	ErrCodeValidationInvalidURL      ErrorCode = "validation_invalid_url"
	ErrCodeValidationInvalidEvents   ErrorCode = "validation_invalid_event_set"

	// Normalization: a resolvable field degenerated after validation.
	// Terminal, dead-lettered. Distinct from validation by design.
	ErrCodeNormalizationMissingSentBy ErrorCode = "normalization_missing_sent_by"
	ErrCodeNormalizationInvalidField  ErrorCode = "normalization_invalid_field"

	// Transient: broker/store/provider call failed. Retried up to the
	// policy budget, then dead-lettered.
	ErrCodeTransientBroker   ErrorCode = "transient_broker_unavailable"
	ErrCodeTransientStore    ErrorCode = "transient_store_unavailable"
	ErrCodeTransientProvider ErrorCode = "transient_provider_unavailable"
	ErrCodeTransientWebhook  ErrorCode = "transient_webhook_unavailable"

	// Configuration: non-fatal, logged, message acked without dead-letter.
	ErrCodeConfigNoHandler ErrorCode = "config_no_handler_registered"
	ErrCodeConfigInvalid   ErrorCode = "config_invalid"

	// Not Found (404)
	ErrCodeNotFoundWebhook   ErrorCode = "not_found_webhook"
	ErrCodeNotFoundQueueItem ErrorCode = "not_found_queue_item"

	// Conflict (409)
	ErrCodeConflictWebhookName ErrorCode = "conflict_webhook_name_exists"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code for the
// admin surface. Returns 500 for unrecognized codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"), strings.HasPrefix(s, "normalization_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "transient_"):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the
// gateway. All pipeline and handler errors are expressed as AppError so the
// consumer can classify them for dead-letter routing and the admin surface
// can map them to HTTP statuses.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// IsTransient reports whether the error represents a transient fault that
// the retry executor may retry.
func (e *AppError) IsTransient() bool {
	return strings.HasPrefix(string(e.Code), "transient_")
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
