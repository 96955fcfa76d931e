package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/otp-api/internal/pkg/errors"
	"github.com/yourusername/otp-api/pkg/auth"
)

// AuthMiddleware обеспечивает аутентификацию для защищенных маршрутов
// step-up токеном, выданным после успешной проверки OTP.
type AuthMiddleware struct {
	tokens *auth.TokenService
}

// NewAuthMiddleware создает новый middleware аутентификации
func NewAuthMiddleware(tokens *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth проверяет Bearer-токен и кладет claims в контекст запроса
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
			c.Abort()
			return
		}

		claims, err := m.tokens.Parse(parts[1])
		if err != nil {
			if errors.Is(err, apperrors.ErrExpiredToken) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is expired", "error_type": "token_expired"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token", "error_type": "token_invalid"})
			}
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)
		c.Set("stepUpPurpose", claims.Purpose)
		c.Next()
	}
}

// RequireAdmin проверяет, что step-up токен принадлежит администратору,
// прошедшему проверку для цели elevate.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("userRole")
		if role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required", "error_type": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}
