package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name          string
		err           *StandardError
		wantCode      string
		wantRetryable bool
		wantRetries   int
	}{
		{
			name:          "timeout is retried",
			err:           NewQueryTimeoutError("1700000000000-ab12cd34-bonusquery", 4, nil),
			wantCode:      "BILLING_QUERY_TIMEOUT",
			wantRetryable: true,
			wantRetries:   2,
		},
		{
			name:        "decode failure is terminal",
			err:         NewQueryDecodeFailedError("q", fmt.Errorf("bad json")),
			wantCode:    "BILLING_QUERY_DECODE_FAILED",
			wantRetries: 0,
		},
		{
			name:        "submission failure is terminal",
			err:         NewQuerySubmissionFailedError("q", fmt.Errorf("forbidden")),
			wantCode:    "BILLING_QUERY_SUBMISSION_FAILED",
			wantRetries: 0,
		},
		{
			name:          "cancellation is retried once",
			err:           NewQueryCancelledError("q", nil),
			wantCode:      "BILLING_QUERY_CANCELLED",
			wantRetryable: true,
			wantRetries:   1,
		},
		{
			name:        "disabled",
			err:         NewRechargeDisabledError(),
			wantCode:    "RECHARGE_DISABLED",
			wantRetries: 0,
		},
		{
			name:        "unmapped code falls back to itself",
			err:         NewInternalError(fmt.Errorf("boom")),
			wantCode:    "INTERNAL_ERROR",
			wantRetries: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Equal(t, tt.wantRetryable, bpmn.Retryable)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)
			assert.Equal(t, string(tt.err.Code), bpmn.ErrorVariables["originalErrorCode"])
		})
	}
}

func TestBPMNError_ToErrorVariables(t *testing.T) {
	bpmn := ConvertToBPMNError(NewQueryTimeoutError("q", 4, nil))
	vars := bpmn.ToErrorVariables()

	assert.Equal(t, "BILLING_QUERY_TIMEOUT", vars["errorCode"])
	assert.Equal(t, true, vars["retryable"])
	assert.Equal(t, 4, vars["attempts"])
}

func TestNormalize(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	wrapped := fmt.Errorf("resolve: %w", NewQuerySubmissionFailedError("q", cause))

	stdErr := Normalize(wrapped)
	assert.Equal(t, ErrCodeQuerySubmissionFailed, stdErr.Code)
	assert.True(t, stderrors.Is(stdErr, cause))

	plain := Normalize(fmt.Errorf("unexpected"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.False(t, plain.Retryable)

	expired := Normalize(fmt.Errorf("complete job: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrCodeTimeout, expired.Code)
	assert.True(t, expired.Retryable)
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "CONTROL_PLANE", GetErrorCategory(ErrCodeQueryTimeout))
	assert.Equal(t, "FEATURE", GetErrorCategory(ErrCodeRechargeDisabled))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidInput))
	assert.Equal(t, "INFRASTRUCTURE", GetErrorCategory(ErrCodeExternalService))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestIsRetryableErrorCode(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeQueryTimeout))
	assert.False(t, IsRetryableErrorCode(ErrCodeQueryDecodeFailed))
	require.Equal(t, 3, GetRetryCount(ErrCodeExternalService))
}
