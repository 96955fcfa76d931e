package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/otp-api/internal/service"
)

// OTPHandler обрабатывает запросы жизненного цикла одноразовых кодов
type OTPHandler struct {
	otpService *service.OTPService
}

// NewOTPHandler создает новый обработчик OTP
func NewOTPHandler(otpService *service.OTPService) *OTPHandler {
	return &OTPHandler{otpService: otpService}
}

// RequestOTPRequest представляет запрос на выдачу кода
type RequestOTPRequest struct {
	Identifier string `json:"identifier" binding:"required,max=100"`
	Purpose    string `json:"purpose" binding:"required,max=32"`
	Channel    string `json:"channel" binding:"omitempty,oneof=email sms whatsapp"`
	Password   string `json:"password" binding:"omitempty,max=100"`
}

// VerifyOTPRequest представляет запрос на проверку кода
type VerifyOTPRequest struct {
	Identifier string `json:"identifier" binding:"required,max=100"`
	Purpose    string `json:"purpose" binding:"required,max=32"`
	Code       string `json:"code" binding:"required,len=6"`
}

// RequestOTP обрабатывает POST /api/otp/request
func (h *OTPHandler) RequestOTP(c *gin.Context) {
	var req RequestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation"})
		return
	}

	result, err := h.otpService.RequestOTP(c.Request.Context(), service.RequestOTPInput{
		Identifier: req.Identifier,
		Purpose:    req.Purpose,
		Channel:    req.Channel,
		Password:   req.Password,
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		h.handleOTPError(c, err)
		return
	}

	if result.Status == "already_active" {
		c.JSON(http.StatusOK, gin.H{
			"status":      result.Status,
			"purpose":     result.Purpose,
			"channel":     result.Channel,
			"ttl":         result.TTLSeconds,
			"retry_after": result.RetryAfter,
			"target":      result.MaskedTarget,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   result.Status,
		"purpose":  result.Purpose,
		"channel":  result.Channel,
		"ttl":      result.TTLSeconds,
		"delivery": result.Delivery,
		"target":   result.MaskedTarget,
	})
}

// VerifyOTP обрабатывает POST /api/otp/verify
func (h *OTPHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation"})
		return
	}

	result, err := h.otpService.VerifyOTP(c.Request.Context(), service.VerifyOTPInput{
		Identifier: req.Identifier,
		Purpose:    req.Purpose,
		Code:       req.Code,
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		h.handleOTPError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      result.UserID,
		"purpose":      result.Purpose,
		"access_token": result.AccessToken,
		"token_type":   "Bearer",
		"expires_at":   result.ExpiresAt,
	})
}

// Status обрабатывает GET /api/otp/status
func (h *OTPHandler) Status(c *gin.Context) {
	rawIdentifier := c.Query("identifier")
	purpose := c.Query("purpose")

	status, err := h.otpService.Status(c.Request.Context(), rawIdentifier, purpose)
	if err != nil {
		h.handleOTPError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// handleOTPError отображает типизированные ошибки сервиса в HTTP-ответы
// со стабильным полем error_type.
func (h *OTPHandler) handleOTPError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrIdentifierRequired),
		errors.Is(err, service.ErrInvalidIdentifier),
		errors.Is(err, service.ErrInvalidPurpose),
		errors.Is(err, service.ErrInvalidChannel):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": err.Error()})

	case errors.Is(err, service.ErrPasswordRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required for this action", "error_type": "password_required"})

	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials", "error_type": "invalid_credentials"})

	case errors.Is(err, service.ErrUserNotFound):
		// Сообщение нарочно общее, чтобы не раскрывать наличие аккаунта
		c.JSON(http.StatusNotFound, gin.H{"error": "Unable to issue a code for this identifier", "error_type": "user_not_found"})

	case errors.Is(err, service.ErrNotEligible):
		c.JSON(http.StatusForbidden, gin.H{"error": "This action is not available for your account", "error_type": "not_eligible"})

	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please try again later.", "error_type": "rate_limited"})

	case errors.Is(err, service.ErrOTPBusy):
		// Ретраябельный конфликт: клиент должен повторить с backoff
		c.JSON(http.StatusConflict, gin.H{"error": "Another request is in progress. Please retry.", "error_type": "otp_busy_retry"})

	case errors.Is(err, service.ErrDeliveryFailed):
		// Код уже инвалидирован на сервере — клиент должен запросить новый
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to deliver the code. Please request a new one.", "error_type": "otp_delivery_failed"})

	case errors.Is(err, service.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired code", "error_type": "invalid_code"})

	case errors.Is(err, service.ErrCodeExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired code", "error_type": "code_expired"})

	case errors.Is(err, service.ErrAttemptsExceeded):
		c.JSON(http.StatusForbidden, gin.H{"error": "Too many attempts. Please request a new code.", "error_type": "attempts_exceeded"})

	default:
		// Никогда не отдаем наружу внутренности провайдеров или секреты
		log.Printf("[OTPHandler] unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal"})
	}
}
