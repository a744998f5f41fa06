// Package errors provides the structured error taxonomy shared by the search
// gateway, the index sync handler and their transports.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidSearchTarget ErrorCode = "INVALID_SEARCH_TARGET"

	ErrCodeIndexNotFound ErrorCode = "INDEX_NOT_FOUND"
	ErrCodeUserNotFound  ErrorCode = "USER_NOT_FOUND"

	ErrCodeElasticsearchUnavailable ErrorCode = "ELASTICSEARCH_UNAVAILABLE"
	ErrCodeSearchTimeout            ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeSearchQueryFailed        ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeIndexWriteFailed         ErrorCode = "INDEX_WRITE_FAILED"

	ErrCodeDatabaseUnavailable ErrorCode = "DATABASE_UNAVAILABLE"
	ErrCodeQueryTimeout        ErrorCode = "QUERY_TIMEOUT"

	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a metadata entry and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewValidationError creates a non-retryable validation error. Violations, when
// present, are exposed under Metadata["violations"].
func NewValidationError(details string, violations interface{}) *StandardError {
	e := newError(ErrCodeValidation, "Request validation failed", details, false, nil)
	if violations != nil {
		e.WithMetadata("violations", violations)
	}
	return e
}

// NewInvalidSearchTargetError signals a search type the compiler cannot handle.
func NewInvalidSearchTargetError(searchType string) *StandardError {
	return newError(ErrCodeInvalidSearchTarget, "Invalid searchType",
		fmt.Sprintf("searchType=%s", searchType), false, nil)
}

func NewIndexNotFoundError(indexName string) *StandardError {
	return newError(ErrCodeIndexNotFound, "Index not found",
		fmt.Sprintf("index=%s", indexName), false, nil)
}

func NewUserNotFoundError(userID string) *StandardError {
	return newError(ErrCodeUserNotFound, "User not found",
		fmt.Sprintf("userId=%s", userID), false, nil)
}

// NewElasticsearchUnavailableError creates a retryable transport error.
func NewElasticsearchUnavailableError(err error) *StandardError {
	return newError(ErrCodeElasticsearchUnavailable, "Elasticsearch is unavailable", detailsOf(err), true, err)
}

func NewSearchTimeoutError(operation string) *StandardError {
	return newError(ErrCodeSearchTimeout, "Search timed out",
		fmt.Sprintf("operation=%s", operation), true, nil)
}

// NewSearchQueryFailedError wraps an error response returned by Elasticsearch.
func NewSearchQueryFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Search query failed",
		fmt.Sprintf("operation=%s: %s", operation, detailsOf(err)), true, err)
}

func NewIndexWriteFailedError(listingID string, err error) *StandardError {
	return newError(ErrCodeIndexWriteFailed, "Index write failed",
		fmt.Sprintf("listingId=%s: %s", listingID, detailsOf(err)), true, err)
}

func NewDatabaseUnavailableError(err error) *StandardError {
	return newError(ErrCodeDatabaseUnavailable, "Database is unavailable", detailsOf(err), true, err)
}

func NewQueryTimeoutError(queryName string) *StandardError {
	return newError(ErrCodeQueryTimeout, "Database query timed out",
		fmt.Sprintf("query=%s", queryName), true, nil)
}

func NewUnauthorizedError(details string) *StandardError {
	return newError(ErrCodeUnauthorized, "Authentication failed", details, false, nil)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", detailsOf(err), false, err)
}

// ==========================
// 4. Classification
// ==========================

// AsStandard extracts a StandardError from an error chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}

// HTTPStatus maps an error code to the status used by the HTTP transport.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation, ErrCodeInvalidSearchTarget:
		return http.StatusUnprocessableEntity
	case ErrCodeIndexNotFound, ErrCodeUserNotFound:
		return http.StatusNotFound
	case ErrCodeElasticsearchUnavailable, ErrCodeDatabaseUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeSearchTimeout, ErrCodeQueryTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeSearchQueryFailed, ErrCodeIndexWriteFailed:
		return http.StatusBadGateway
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// GetRetryCount returns the recommended retry count for job workers.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeElasticsearchUnavailable,
		ErrCodeSearchQueryFailed,
		ErrCodeIndexWriteFailed,
		ErrCodeDatabaseUnavailable:
		return 3

	case ErrCodeSearchTimeout,
		ErrCodeQueryTimeout:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "SEARCH") ||
		strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "UNAUTHORIZED"):
		return "AUTH"
	default:
		return "OTHER"
	}
}
