// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeRechargeDisabled ErrorCode = "RECHARGE_DISABLED"

	ErrCodeQuerySubmissionFailed ErrorCode = "BILLING_QUERY_SUBMISSION_FAILED"
	ErrCodeQueryTimeout          ErrorCode = "BILLING_QUERY_TIMEOUT"
	ErrCodeQueryDecodeFailed     ErrorCode = "BILLING_QUERY_DECODE_FAILED"
	ErrCodeQueryFailed           ErrorCode = "BILLING_QUERY_FAILED"
	ErrCodeQueryCancelled        ErrorCode = "BILLING_QUERY_CANCELLED"

	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a metadata entry and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
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

// NewInvalidInputError creates a non-retryable job input error.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid job input", details, false, nil)
}

// NewRechargeDisabledError is returned when billing queries are switched off.
func NewRechargeDisabledError() *StandardError {
	return newError(ErrCodeRechargeDisabled, "Recharge is not enabled", "", false, nil)
}

// NewQuerySubmissionFailedError wraps a control-plane create failure.
func NewQuerySubmissionFailedError(queryName string, err error) *StandardError {
	return newError(ErrCodeQuerySubmissionFailed, "Billing query could not be submitted",
		fmt.Sprintf("query: %s, error: %v", queryName, err), false, err)
}

// NewQueryTimeoutError creates a retryable error for a query that never completed.
func NewQueryTimeoutError(queryName string, attempts int, err error) *StandardError {
	return newError(ErrCodeQueryTimeout, "Billing query did not complete in time",
		fmt.Sprintf("query: %s, attempts: %d", queryName, attempts), true, err).
		WithMetadata("attempts", attempts)
}

// NewQueryDecodeFailedError is raised when the control plane returned an unusable payload.
func NewQueryDecodeFailedError(queryName string, err error) *StandardError {
	return newError(ErrCodeQueryDecodeFailed, "Billing query returned a malformed result",
		fmt.Sprintf("query: %s, error: %v", queryName, err), false, err)
}

// NewQueryFailedError is raised when the control plane reported a terminal failure.
func NewQueryFailedError(queryName string, err error) *StandardError {
	return newError(ErrCodeQueryFailed, "Billing query failed in the control plane",
		fmt.Sprintf("query: %s, error: %v", queryName, err), false, err)
}

// NewQueryCancelledError is raised when polling was aborted by the caller.
func NewQueryCancelledError(queryName string, err error) *StandardError {
	return newError(ErrCodeQueryCancelled, "Billing query was cancelled",
		fmt.Sprintf("query: %s", queryName), true, err)
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err.Error(), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the codes modelled as
// boundary events in the billing process definitions.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidInput:          "INVALID_INPUT",
	ErrCodeRechargeDisabled:      "RECHARGE_DISABLED",
	ErrCodeQuerySubmissionFailed: "BILLING_QUERY_SUBMISSION_FAILED",
	ErrCodeQueryTimeout:          "BILLING_QUERY_TIMEOUT",
	ErrCodeQueryDecodeFailed:     "BILLING_QUERY_DECODE_FAILED",
	ErrCodeQueryFailed:           "BILLING_QUERY_FAILED",
	ErrCodeQueryCancelled:        "BILLING_QUERY_CANCELLED",
}

// GetRetryCount returns the recommended job retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeExternalService:
		return 3

	case ErrCodeQueryTimeout, ErrCodeTimeout:
		return 2

	case ErrCodeQueryCancelled:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "BILLING_QUERY"):
		return "CONTROL_PLANE"
	case strings.Contains(codeStr, "DISABLED"):
		return "FEATURE"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "TIMEOUT") || strings.Contains(codeStr, "EXTERNAL"):
		return "INFRASTRUCTURE"
	default:
		return "OTHER"
	}
}
