package domain

import (
	"errors"
	"fmt"
	"time"
)

// PDQError is the JSON error body of the HTTP API. Code is one of the
// constants below; RequestID echoes the correlation id of the failing request.
type PDQError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

func (e *PDQError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Codes carried in PDQError.Code. Every failure to produce a run from the
// record source is SOURCE_ERROR; an unknown dashboard section is NOT_FOUND.
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrSourceError    = "SOURCE_ERROR"
	ErrDatabaseError  = "DATABASE_ERROR"
	ErrAnalysis       = "ANALYSIS_ERROR"
	ErrNotFoundCode   = "NOT_FOUND"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
	ErrValidation     = "VALIDATION_ERROR"
)

// Sentinels for errors.Is. The API maps ErrNotFound, ErrSourceLoad and
// ErrUnavailable to 404, 502 and 503.
var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyDataset = errors.New("no usable records after join and filtering")
	ErrMissingTable = errors.New("record table missing")
	ErrSourceLoad   = errors.New("record source load failed")
	ErrUnavailable  = errors.New("record source unavailable")
)

// ValidationError reports a configuration key that failed validation
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s %s", e.Field, e.Message)
}

// NewPDQError stamps an error body with the current UTC time
func NewPDQError(code, message, details, requestID string) *PDQError {
	return &PDQError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError reports field with the offending value
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
