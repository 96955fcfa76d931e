package service

import "errors"

// OTP flow specific errors used by handlers for stable error_type mapping.
var (
	ErrIdentifierRequired = errors.New("identifier_required")
	ErrInvalidIdentifier  = errors.New("invalid_identifier")
	ErrInvalidPurpose     = errors.New("invalid_purpose")
	ErrInvalidChannel     = errors.New("invalid_channel")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrNotEligible        = errors.New("not_eligible")
	ErrPasswordRequired   = errors.New("password_required")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrRateLimited        = errors.New("rate_limited")
	ErrOTPBusy            = errors.New("otp_busy_retry")
	ErrDeliveryFailed     = errors.New("otp_delivery_failed")
	ErrInvalidCode        = errors.New("invalid_code")
	ErrCodeExpired        = errors.New("code_expired")
	ErrAttemptsExceeded   = errors.New("attempts_exceeded")
)
