package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	apperrors "github.com/yourusername/otp-api/internal/pkg/errors"
)

// StepUpClaims содержит пользовательские поля для step-up токена,
// выдаваемого после успешной проверки OTP.
type StepUpClaims struct {
	UserID  uint   `json:"user_id"`
	Role    string `json:"role"`
	Purpose string `json:"purpose"`
	Channel string `json:"channel,omitempty"`
	jwt.RegisteredClaims
}

// TokenService выдает и проверяет step-up токены (HS256)
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService создает новый сервис токенов
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("token signing secret is required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Generate выдает подписанный step-up токен, подтверждающий, что пользователь
// только что прошел проверку OTP для данной цели.
func (s *TokenService) Generate(userID uint, role, purpose, channel string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := StepUpClaims{
		UserID:  userID,
		Role:    role,
		Purpose: purpose,
		Channel: channel,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   fmt.Sprintf("%d", userID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign step-up token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse проверяет подпись и срок действия токена
func (s *TokenService) Parse(tokenString string) (*StepUpClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StepUpClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrExpiredToken
		}
		return nil, apperrors.ErrUnauthorized
	}

	claims, ok := token.Claims.(*StepUpClaims)
	if !ok || !token.Valid {
		return nil, apperrors.ErrUnauthorized
	}
	return claims, nil
}
