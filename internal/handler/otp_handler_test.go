package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/otp-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestGinContext создает *gin.Context для тестов с JSON body
func newTestGinContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()

	var req *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, path, bytes.NewReader(bodyBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

// parseJSONResponse парсит JSON ответ из *httptest.ResponseRecorder
func parseJSONResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "Response body should be valid JSON: %s", w.Body.String())
	return resp
}

// ============================================================================
// Request validation tests — не требуют реального OTPService
// Handler возвращает 400 до вызова сервиса
// ============================================================================

func TestRequestOTP_ValidationErrors(t *testing.T) {
	handler := &OTPHandler{} // nil service — OK для validation tests

	tests := []struct {
		name string
		body interface{}
	}{
		{
			name: "empty body",
			body: nil,
		},
		{
			name: "missing identifier",
			body: map[string]string{"purpose": "login"},
		},
		{
			name: "missing purpose",
			body: map[string]string{"identifier": "user@example.com"},
		},
		{
			name: "unknown channel",
			body: map[string]string{"identifier": "user@example.com", "purpose": "login", "channel": "pigeon"},
		},
		{
			name: "identifier too long",
			body: map[string]string{"identifier": string(make([]byte, 150)), "purpose": "login"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext(http.MethodPost, "/api/otp/request", tt.body)
			handler.RequestOTP(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, "validation", resp["error_type"])
		})
	}
}

func TestVerifyOTP_ValidationErrors(t *testing.T) {
	handler := &OTPHandler{}

	tests := []struct {
		name string
		body interface{}
	}{
		{
			name: "empty body",
			body: nil,
		},
		{
			name: "missing code",
			body: map[string]string{"identifier": "user@example.com", "purpose": "login"},
		},
		{
			name: "code too short",
			body: map[string]string{"identifier": "user@example.com", "purpose": "login", "code": "123"},
		},
		{
			name: "code too long",
			body: map[string]string{"identifier": "user@example.com", "purpose": "login", "code": "1234567"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext(http.MethodPost, "/api/otp/verify", tt.body)
			handler.VerifyOTP(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, "validation", resp["error_type"])
		})
	}
}

// ============================================================================
// Error mapping — стабильные коды и error_type для клиентов
// ============================================================================

func TestHandleOTPError_StatusMapping(t *testing.T) {
	handler := &OTPHandler{}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"invalid purpose", service.ErrInvalidPurpose, http.StatusBadRequest, "invalid_purpose"},
		{"invalid identifier", service.ErrInvalidIdentifier, http.StatusBadRequest, "invalid_identifier"},
		{"password required", service.ErrPasswordRequired, http.StatusBadRequest, "password_required"},
		{"invalid credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"user not found", service.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{"not eligible", service.ErrNotEligible, http.StatusForbidden, "not_eligible"},
		{"rate limited", service.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"busy is retryable conflict", service.ErrOTPBusy, http.StatusConflict, "otp_busy_retry"},
		{"delivery failed", service.ErrDeliveryFailed, http.StatusBadGateway, "otp_delivery_failed"},
		{"invalid code", service.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
		{"attempts exceeded", service.ErrAttemptsExceeded, http.StatusForbidden, "attempts_exceeded"},
		{"unexpected error is opaque", assert.AnError, http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext(http.MethodPost, "/api/otp/request", nil)
			handler.handleOTPError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, tt.wantType, resp["error_type"])
		})
	}
}

func TestHandleOTPError_NeverLeaksInternals(t *testing.T) {
	handler := &OTPHandler{}
	c, w := newTestGinContext(http.MethodPost, "/api/otp/request", nil)

	handler.handleOTPError(c, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}
