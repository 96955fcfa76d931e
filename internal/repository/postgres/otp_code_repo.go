package postgres

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/otp-api/internal/domain/entity"
	"github.com/yourusername/otp-api/internal/domain/repository"
	apperrors "github.com/yourusername/otp-api/internal/pkg/errors"
)

// OtpCodeRepo реализует repository.OtpCodeRepository
type OtpCodeRepo struct {
	db *gorm.DB
}

// NewOtpCodeRepo создает новый репозиторий одноразовых кодов
func NewOtpCodeRepo(db *gorm.DB) *OtpCodeRepo {
	return &OtpCodeRepo{db: db}
}

// purposeLockKey maps the string lock scope to the int64 key space of
// Postgres advisory locks.
func purposeLockKey(userID uint, purpose string) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "otp:%d:%s", userID, purpose)
	return int64(h.Sum64())
}

// WithPurposeLock runs fn inside a transaction holding
// pg_try_advisory_xact_lock for (userID, purpose). The lock is scoped to
// the transaction, so it can never outlive a crashed request. A contended
// lock commits the empty transaction and returns acquired=false.
func (r *OtpCodeRepo) WithPurposeLock(ctx context.Context, userID uint, purpose string, fn func(store repository.OtpCodeStore) error) (bool, error) {
	acquired := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var got bool
		if err := tx.Raw("SELECT pg_try_advisory_xact_lock(?)", purposeLockKey(userID, purpose)).Scan(&got).Error; err != nil {
			return fmt.Errorf("failed to acquire advisory lock: %w", err)
		}
		if !got {
			return nil
		}
		acquired = true
		return fn(&otpCodeStore{tx: tx})
	})
	if err != nil {
		return acquired, err
	}
	return acquired, nil
}

// GetActive returns the live code for (userID, purpose) without taking the
// lock. Used by the contention poll, the status endpoint and verification.
func (r *OtpCodeRepo) GetActive(userID uint, purpose string) (*entity.OtpCode, error) {
	return getActive(r.db, userID, purpose)
}

func (r *OtpCodeRepo) IncrementAttempts(id uint) error {
	return r.db.Model(&entity.OtpCode{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

func (r *OtpCodeRepo) MarkConsumed(id uint) error {
	now := time.Now()
	return r.db.Model(&entity.OtpCode{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", now).Error
}

// otpCodeStore is the transaction-scoped view handed to WithPurposeLock
// callbacks.
type otpCodeStore struct {
	tx *gorm.DB
}

func (s *otpCodeStore) GetActive(userID uint, purpose string) (*entity.OtpCode, error) {
	return getActive(s.tx, userID, purpose)
}

// ConsumeActive defensively marks every live row for (userID, purpose) as
// consumed. Run before inserting a fresh code so the single-active
// invariant survives clock skew or prior bugs.
func (s *otpCodeStore) ConsumeActive(userID uint, purpose string) error {
	now := time.Now()
	return s.tx.Model(&entity.OtpCode{}).
		Where("user_id = ? AND purpose = ? AND consumed_at IS NULL AND expires_at > ?", userID, purpose, now).
		Update("consumed_at", now).Error
}

func (s *otpCodeStore) Create(code *entity.OtpCode) error {
	return s.tx.Create(code).Error
}

func getActive(db *gorm.DB, userID uint, purpose string) (*entity.OtpCode, error) {
	var code entity.OtpCode
	err := db.
		Where("user_id = ? AND purpose = ? AND consumed_at IS NULL AND expires_at > ?", userID, purpose, time.Now()).
		Order("created_at DESC").
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active otp code: %w", err)
	}
	return &code, nil
}
