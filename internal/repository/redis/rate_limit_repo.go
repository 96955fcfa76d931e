package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yourusername/otp-api/internal/domain/repository"
)

// RateLimitRepo реализует repository.RateLimitRepository поверх Redis
type RateLimitRepo struct {
	client redis.UniversalClient
}

// NewRateLimitRepo создает новый репозиторий счетчиков rate limiting
func NewRateLimitRepo(client redis.UniversalClient) (*RateLimitRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil for RateLimitRepo")
	}
	return &RateLimitRepo{client: client}, nil
}

// Check increments the window counter for key and reports whether the
// request is allowed. Any Redis failure is fail-open: the request is
// allowed and the error is returned for logging only.
func (r *RateLimitRepo) Check(ctx context.Context, key string, limit int, window time.Duration) (repository.RateLimitResult, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[RateLimitRepo] Redis error for key %s: %v. Allowing request (fail-open).", key, err)
		return repository.RateLimitResult{Allowed: true, Remaining: limit}, err
	}

	// Первый запрос в окне — устанавливаем TTL
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			log.Printf("[RateLimitRepo] Failed to set TTL for key %s: %v", key, err)
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if int(count) > limit {
		ttl, err := r.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = window
		}
		return repository.RateLimitResult{Allowed: false, Remaining: 0, RetryAfter: ttl}, nil
	}

	return repository.RateLimitResult{Allowed: true, Remaining: remaining}, nil
}
