package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeSchema, http.StatusUnprocessableEntity},
		{CodeNotFound, http.StatusNotFound},
		{CodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{CodeRateLimit, http.StatusTooManyRequests},
		{CodeNoData, http.StatusServiceUnavailable},
		{CodeUpstream, http.StatusBadGateway},
		{CodeInternal, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.code))
		})
	}
}

func TestWriteError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cause := fmt.Errorf("row 3: quantity must be >= 0")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
		wantDetail string
	}{
		{"schema", SchemaWrap(cause, "upload rejected"), http.StatusUnprocessableEntity, CodeSchema, cause.Error()},
		{"validation", ValidationWrap(cause, "upload rejected"), http.StatusBadRequest, CodeValidation, cause.Error()},
		{"wrapped app error", fmt.Errorf("handler: %w", NoData("no data yet")), http.StatusServiceUnavailable, CodeNoData, ""},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteError(context.Background(), w, logger, tt.err, "req-1")

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp struct {
				Success bool `json:"success"`
				Error   struct {
					Code      ErrorCode `json:"code"`
					Message   string    `json:"message"`
					Details   string    `json:"details"`
					RequestID string    `json:"request_id"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantDetail, resp.Error.Details)
			assert.Equal(t, "req-1", resp.Error.RequestID)
			assert.NotContains(t, resp.Error.Message, "boom")
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	WriteSuccessStatus(w, http.StatusAccepted, map[string]int{"records": 3})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"records":3}}`, w.Body.String())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := InternalWrap(cause, "refresh failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}
