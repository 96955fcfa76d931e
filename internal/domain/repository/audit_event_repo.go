package repository

import (
	"time"

	"github.com/yourusername/otp-api/internal/domain/entity"
)

// AuditEventFilter narrows audit queries for the admin surfaces.
type AuditEventFilter struct {
	UserID  uint
	Purpose string
	Type    string
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

// AuditEventRepository persists append-only OTP lifecycle events.
type AuditEventRepository interface {
	Create(event *entity.AuditEvent) error
	List(filter AuditEventFilter) ([]entity.AuditEvent, int64, error)
	// ListAfter returns events with an ID greater than afterID, oldest
	// first, for the live tail.
	ListAfter(afterID uint, limit int) ([]entity.AuditEvent, error)
}
