package postgres

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yourusername/otp-api/internal/domain/entity"
	"github.com/yourusername/otp-api/internal/domain/repository"
)

// AuditEventRepo реализует repository.AuditEventRepository
type AuditEventRepo struct {
	db *gorm.DB
}

// NewAuditEventRepo создает новый репозиторий событий аудита
func NewAuditEventRepo(db *gorm.DB) *AuditEventRepo {
	return &AuditEventRepo{db: db}
}

func (r *AuditEventRepo) Create(event *entity.AuditEvent) error {
	return r.db.Create(event).Error
}

func (r *AuditEventRepo) List(filter repository.AuditEventFilter) ([]entity.AuditEvent, int64, error) {
	query := r.db.Model(&entity.AuditEvent{})

	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Purpose != "" {
		query = query.Where("purpose = ?", filter.Purpose)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at <= ?", filter.Until)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var events []entity.AuditEvent
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&events).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, total, nil
}

func (r *AuditEventRepo) ListAfter(afterID uint, limit int) ([]entity.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []entity.AuditEvent
	err := r.db.
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to tail audit events: %w", err)
	}
	return events, nil
}
