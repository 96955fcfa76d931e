package repository

import "github.com/yourusername/otp-api/internal/domain/entity"

// UserRepository reads the user directory. This service never writes it.
type UserRepository interface {
	GetByID(id uint) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
	GetByPhone(phoneDigits string) (*entity.User, error)
}
