package repository

import (
	"context"
	"time"
)

// RateLimitResult is the outcome of a sliding-window check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimitRepository counts requests per key within a window. When the
// backing store is unreachable, implementations must fail open: OTP
// issuance availability takes priority over strict enforcement.
type RateLimitRepository interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}
