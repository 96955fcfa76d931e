package entity

import "time"

// Audit event types covering the OTP lifecycle.
const (
	AuditRequested     = "requested"
	AuditCreated       = "created"
	AuditAlreadyActive = "already_active"
	AuditBusy          = "busy"
	AuditSent          = "sent"
	AuditSendFailed    = "send_failed"
	AuditSendTimeout   = "send_timeout"
	AuditRateLimited   = "rate_limited"
	AuditRejected      = "rejected"
	AuditVerified      = "verified"
	AuditVerifyFailed  = "verify_failed"
)

// AuditEvent is an append-only lifecycle record. Writes are best-effort:
// a lost audit row never aborts the flow that produced it.
type AuditEvent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EventID      string    `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	Type         string    `gorm:"size:32;not null;index" json:"type"`
	UserID       uint      `gorm:"not null;default:0;index" json:"user_id"`
	OtpID        uint      `gorm:"not null;default:0" json:"otp_id"`
	Purpose      string    `gorm:"size:32;not null;default:''" json:"purpose"`
	Channel      string    `gorm:"size:16;not null;default:''" json:"channel"`
	MaskedTarget string    `gorm:"size:100;not null;default:''" json:"masked_target"`
	ClientIP     string    `gorm:"size:45;not null;default:''" json:"client_ip"`
	Detail       string    `gorm:"size:255;not null;default:''" json:"detail"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "otp_audit_events"
}
