package dto

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		expected int
	}{
		{"not found maps to 404", ErrCodeNotFound, http.StatusNotFound},
		{"validation maps to 400", ErrCodeValidation, http.StatusBadRequest},
		{"unauthorized maps to 401", ErrCodeUnauthorized, http.StatusUnauthorized},
		{"forbidden maps to 403", ErrCodeForbidden, http.StatusForbidden},
		{"concurrency conflict maps to 409", ErrCodeConcurrencyConflict, http.StatusConflict},
		{"ambiguous match maps to 409", ErrCodeAmbiguousMatch, http.StatusConflict},
		{"invalid state maps to 422", ErrCodeInvalidState, http.StatusUnprocessableEntity},
		{"invoice locked maps to 422", ErrCodeInvoiceLocked, http.StatusUnprocessableEntity},
		{"not reconcilable maps to 422", ErrCodeNotReconcilable, http.StatusUnprocessableEntity},
		{"internal maps to 500", ErrCodeInternal, http.StatusInternalServerError},
		{"unknown code falls back to 500", "ERR_SOMETHING_NEW", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	t.Run("should map domain codes to wire codes", func(t *testing.T) {
		assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode("NOT_FOUND"))
		assert.Equal(t, ErrCodeInvoiceLocked, NormalizeErrorCode("INVOICE_LOCKED"))
		assert.Equal(t, ErrCodeAmbiguousMatch, NormalizeErrorCode("AMBIGUOUS_MATCH"))
		assert.Equal(t, ErrCodeNotReconcilable, NormalizeErrorCode("NOT_RECONCILABLE"))
		assert.Equal(t, ErrCodeConcurrencyConflict, NormalizeErrorCode("CONCURRENCY_CONFLICT"))
	})

	t.Run("should pass through already-normalized codes", func(t *testing.T) {
		assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode(ErrCodeNotFound))
	})

	t.Run("should pass through unknown codes", func(t *testing.T) {
		assert.Equal(t, "SOMETHING_ELSE", NormalizeErrorCode("SOMETHING_ELSE"))
	})
}

func TestNewErrorResponseWithRequestID(t *testing.T) {
	resp := NewErrorResponseWithRequestID(ErrCodeNotFound, "Invoice not found", "req-123")

	assert.False(t, resp.Success)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "Invoice not found", resp.Error.Message)
	assert.Equal(t, "req-123", resp.Error.RequestID)
}

func TestNewValidationErrorResponse(t *testing.T) {
	details := []ValidationDetail{
		{Field: "patient_id", Message: "required"},
		{Field: "items", Message: "must contain at least one item"},
	}

	resp := NewValidationErrorResponse("Request validation failed", "req-456", details)

	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-456", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details, 2)
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	t.Run("should round up total pages", func(t *testing.T) {
		resp := NewSuccessResponseWithMeta([]string{"a"}, 21, 1, 10)

		assert.True(t, resp.Success)
		assert.Equal(t, int64(21), resp.Meta.Total)
		assert.Equal(t, 3, resp.Meta.TotalPages)
	})

	t.Run("should handle exact page division", func(t *testing.T) {
		resp := NewSuccessResponseWithMeta([]string{"a"}, 20, 2, 10)
		assert.Equal(t, 2, resp.Meta.TotalPages)
	})
}
