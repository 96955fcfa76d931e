package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOtpCode_Liveness(t *testing.T) {
	now := time.Now()
	consumed := now.Add(-time.Minute)

	tests := []struct {
		name       string
		code       OtpCode
		wantActive bool
	}{
		{
			name:       "fresh code is active",
			code:       OtpCode{ExpiresAt: now.Add(2 * time.Minute)},
			wantActive: true,
		},
		{
			name:       "expired code is dead",
			code:       OtpCode{ExpiresAt: now.Add(-time.Second)},
			wantActive: false,
		},
		{
			name:       "expiry instant counts as expired",
			code:       OtpCode{ExpiresAt: now},
			wantActive: false,
		},
		{
			name:       "consumed code is dead even before expiry",
			code:       OtpCode{ExpiresAt: now.Add(2 * time.Minute), ConsumedAt: &consumed},
			wantActive: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantActive, tt.code.IsActive(now))
		})
	}
}

func TestOtpCode_TTLRemaining(t *testing.T) {
	now := time.Now()

	code := OtpCode{ExpiresAt: now.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, code.TTLRemaining(now))

	expired := OtpCode{ExpiresAt: now.Add(-time.Minute)}
	assert.Equal(t, time.Duration(0), expired.TTLRemaining(now))
}

func TestOtpCode_AttemptsLeft(t *testing.T) {
	code := OtpCode{AttemptCount: 3, MaxAttempts: 5}
	assert.Equal(t, 2, code.AttemptsLeft())

	exhausted := OtpCode{AttemptCount: 7, MaxAttempts: 5}
	assert.Equal(t, 0, exhausted.AttemptsLeft())
}

func TestUser_CanReceiveOTP(t *testing.T) {
	admin := User{Role: "admin", IsActive: true}
	user := User{Role: "user", IsActive: true}
	inactive := User{Role: "admin", IsActive: false}

	assert.True(t, admin.CanReceiveOTP(PurposeElevate))
	assert.True(t, admin.CanReceiveOTP(PurposeLogin))
	assert.True(t, user.CanReceiveOTP(PurposeLogin))
	assert.False(t, user.CanReceiveOTP(PurposeElevate))
	assert.False(t, user.CanReceiveOTP(PurposeSensitiveAction))
	assert.False(t, inactive.CanReceiveOTP(PurposeLogin))
}
