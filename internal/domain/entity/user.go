package entity

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User представляет запись в справочнике пользователей. Этот сервис читает
// справочник, но никогда не изменяет его — владелец идентичности внешний.
type User struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Email               string     `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Phone               string     `gorm:"size:20;not null;default:'';index" json:"phone"`
	Password            string     `gorm:"size:100;not null;default:''" json:"-"`
	PasswordAuthEnabled bool       `gorm:"not null;default:false" json:"-"`
	Role                string     `gorm:"size:20;not null;default:'user'" json:"-"` // "user" или "admin"
	IsActive            bool       `gorm:"not null;default:true" json:"-"`
	DeletedAt           *time.Time `gorm:"type:timestamp" json:"deleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (User) TableName() string {
	return "users"
}

// CheckPassword проверяет, соответствует ли переданный пароль bcrypt-хешу
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// IsAdmin возвращает true для администраторов
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

// CanReceiveOTP reports whether this user may be issued an OTP for the
// given purpose. Elevation purposes are restricted to admins.
func (u *User) CanReceiveOTP(purpose string) bool {
	if !u.IsActive || u.DeletedAt != nil {
		return false
	}
	switch purpose {
	case PurposeElevate, PurposeSensitiveAction:
		return u.IsAdmin()
	default:
		return true
	}
}
