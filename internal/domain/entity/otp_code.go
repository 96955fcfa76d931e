package entity

import "time"

// Delivery channels for one-time passcodes.
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// OTP purposes. Distinct purposes are independent lifecycles for the same
// user: an active login OTP does not block an elevate OTP.
const (
	PurposeLogin           = "login"
	PurposeElevate         = "elevate"
	PurposeSensitiveAction = "sensitive_action"
	PurposePasswordChange  = "password_change"
)

// ValidPurposes is the allow-list for the purpose request field.
var ValidPurposes = map[string]bool{
	PurposeLogin:           true,
	PurposeElevate:         true,
	PurposeSensitiveAction: true,
	PurposePasswordChange:  true,
}

// ValidChannels is the allow-list for the channel request field.
var ValidChannels = map[string]bool{
	ChannelEmail:    true,
	ChannelSMS:      true,
	ChannelWhatsApp: true,
}

// OtpCode stores a hashed one-time passcode. The plaintext code is never
// persisted; verification recomputes the keyed hash and compares.
//
// Liveness is defined purely by ConsumedAt and ExpiresAt; there is no
// status column. Once ConsumedAt is set the row is permanently dead
// regardless of ExpiresAt.
type OtpCode struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index:idx_otp_codes_user_purpose" json:"user_id"`
	Purpose      string     `gorm:"size:32;not null;index:idx_otp_codes_user_purpose" json:"purpose"`
	Channel      string     `gorm:"size:16;not null" json:"channel"`
	Target       string     `gorm:"size:100;not null" json:"-"`
	CodeHash     string     `gorm:"size:64;not null" json:"-"`
	Fingerprint  string     `gorm:"size:255;not null;default:''" json:"-"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	ConsumedAt   *time.Time `gorm:"index" json:"consumed_at,omitempty"`
	AttemptCount int        `gorm:"not null;default:0" json:"attempt_count"`
	MaxAttempts  int        `gorm:"not null;default:5" json:"max_attempts"`
	CreatedAt    time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (OtpCode) TableName() string {
	return "otp_codes"
}

func (o *OtpCode) IsConsumed() bool {
	return o.ConsumedAt != nil
}

func (o *OtpCode) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// IsActive reports whether the code can still be verified at the given
// instant.
func (o *OtpCode) IsActive(now time.Time) bool {
	return !o.IsConsumed() && !o.IsExpired(now)
}

// TTLRemaining returns the time left until expiry, never negative.
func (o *OtpCode) TTLRemaining(now time.Time) time.Duration {
	if remaining := o.ExpiresAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

func (o *OtpCode) AttemptsLeft() int {
	if left := o.MaxAttempts - o.AttemptCount; left > 0 {
		return left
	}
	return 0
}
