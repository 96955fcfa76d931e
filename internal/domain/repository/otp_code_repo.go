package repository

import (
	"context"

	"github.com/yourusername/otp-api/internal/domain/entity"
)

// OtpCodeStore is the view of the OTP table available inside an acquired
// purpose lock. All mutations that uphold the single-active-OTP invariant
// go through this interface, within one transaction.
type OtpCodeStore interface {
	GetActive(userID uint, purpose string) (*entity.OtpCode, error)
	ConsumeActive(userID uint, purpose string) error
	Create(code *entity.OtpCode) error
}

// OtpCodeRepository persists one-time passcodes.
//
// WithPurposeLock runs fn inside a transaction holding an advisory lock
// scoped to (userID, purpose). It returns acquired=false without calling fn
// when a concurrent request already holds the lock; the lock is released
// with the transaction on commit or rollback.
type OtpCodeRepository interface {
	WithPurposeLock(ctx context.Context, userID uint, purpose string, fn func(store OtpCodeStore) error) (acquired bool, err error)
	GetActive(userID uint, purpose string) (*entity.OtpCode, error)
	IncrementAttempts(id uint) error
	MarkConsumed(id uint) error
}
