package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/otp-api/internal/domain/entity"
	"github.com/yourusername/otp-api/internal/domain/repository"
	apperrors "github.com/yourusername/otp-api/internal/pkg/errors"
	"github.com/yourusername/otp-api/internal/pkg/identifier"
	"github.com/yourusername/otp-api/pkg/auth"
)

// OTPConfig параметры жизненного цикла, передаваемые из config.
type OTPConfig struct {
	Secret           string
	TTL              time.Duration
	MinTTL           time.Duration
	MaxTTL           time.Duration
	MaxAttempts      int
	LockPollInterval time.Duration
	LockPollAttempts int
	RateLimit        int
	RateWindow       time.Duration
}

// OTPService owns the issuance and verification lifecycle. All coordination
// between concurrent requests is externalized to the store's advisory lock;
// the service itself keeps no mutable state.
type OTPService struct {
	users    repository.UserRepository
	codes    repository.OtpCodeRepository
	limiter  repository.RateLimitRepository // nil when no limiter backend is configured
	delivery *DeliveryService
	audit    *AuditService
	tokens   *auth.TokenService
	cfg      OTPConfig
}

// NewOTPService создает новый сервис одноразовых кодов
func NewOTPService(
	users repository.UserRepository,
	codes repository.OtpCodeRepository,
	limiter repository.RateLimitRepository,
	delivery *DeliveryService,
	audit *AuditService,
	tokens *auth.TokenService,
	cfg OTPConfig,
) (*OTPService, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if codes == nil {
		return nil, fmt.Errorf("otp code repository is required")
	}
	if delivery == nil {
		return nil, fmt.Errorf("delivery service is required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit service is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	// Секрет и TTL security-критичны: отказываем сразу, без умолчаний.
	if cfg.Secret == "" {
		return nil, fmt.Errorf("otp hashing secret is required")
	}
	if cfg.TTL <= 0 || cfg.MinTTL <= 0 || cfg.MaxTTL <= 0 {
		return nil, fmt.Errorf("otp ttl configuration is required")
	}
	if cfg.MinTTL > cfg.MaxTTL {
		return nil, fmt.Errorf("otp ttl bounds are inverted")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.LockPollInterval <= 0 {
		cfg.LockPollInterval = 150 * time.Millisecond
	}
	if cfg.LockPollAttempts <= 0 {
		cfg.LockPollAttempts = 5
	}
	return &OTPService{
		users:    users,
		codes:    codes,
		limiter:  limiter,
		delivery: delivery,
		audit:    audit,
		tokens:   tokens,
		cfg:      cfg,
	}, nil
}

// RequestOTPInput входные данные запроса на выдачу кода
type RequestOTPInput struct {
	Identifier string
	Purpose    string
	Channel    string
	Password   string
	ClientIP   string
}

// RequestOTPResult итог запроса на выдачу кода
type RequestOTPResult struct {
	Status       string        `json:"status"` // "created" | "already_active"
	Purpose      string        `json:"purpose"`
	Channel      string        `json:"channel"`
	TTL          time.Duration `json:"-"`
	TTLSeconds   int           `json:"ttl"`
	Delivery     string        `json:"delivery,omitempty"` // "confirmed" | "pending"
	MaskedTarget string        `json:"target"`
	RetryAfter   int           `json:"retry_after,omitempty"`
}

// effectiveTTL clamps the configured TTL into [MinTTL, MaxTTL].
func (s *OTPService) effectiveTTL() time.Duration {
	ttl := s.cfg.TTL
	if ttl < s.cfg.MinTTL {
		ttl = s.cfg.MinTTL
	}
	if ttl > s.cfg.MaxTTL {
		ttl = s.cfg.MaxTTL
	}
	return ttl
}

// resolveTarget validates purpose/channel against the normalized identifier
// and returns the delivery channel and raw target address.
func resolveTarget(id identifier.Identifier, channel string) (string, string, error) {
	switch id.Kind {
	case identifier.KindEmail:
		// Email identifiers always deliver over email; a text channel
		// request for an email identifier is a caller error.
		if channel != "" && channel != entity.ChannelEmail {
			return "", "", ErrInvalidChannel
		}
		return entity.ChannelEmail, id.Email, nil
	case identifier.KindPhone:
		if channel == "" {
			channel = entity.ChannelSMS
		}
		if channel != entity.ChannelSMS && channel != entity.ChannelWhatsApp {
			return "", "", ErrInvalidChannel
		}
		return channel, id.PhoneDigits, nil
	default:
		return "", "", ErrInvalidIdentifier
	}
}

func (s *OTPService) findUser(id identifier.Identifier) (*entity.User, error) {
	var user *entity.User
	var err error
	if id.Kind == identifier.KindEmail {
		user, err = s.users.GetByEmail(id.Email)
	} else {
		user, err = s.users.GetByPhone(id.PhoneDigits)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// RequestOTP issues a new code for (user, purpose) or reports the one
// already active. At most one non-consumed, non-expired code exists per
// (user, purpose) at any instant; the advisory lock serializes the
// check-then-create sequence that enforces this.
func (s *OTPService) RequestOTP(ctx context.Context, input RequestOTPInput) (*RequestOTPResult, error) {
	if input.Identifier == "" {
		return nil, ErrIdentifierRequired
	}
	if !entity.ValidPurposes[input.Purpose] {
		return nil, ErrInvalidPurpose
	}

	id := identifier.Normalize(input.Identifier)
	channel, target, err := resolveTarget(id, input.Channel)
	if err != nil {
		return nil, err
	}
	masked := identifier.Mask(target)

	user, err := s.findUser(id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.audit.Record(entity.AuditEvent{
				Type: entity.AuditRejected, Purpose: input.Purpose, Channel: channel,
				MaskedTarget: masked, ClientIP: input.ClientIP, Detail: "user not found",
			})
		}
		return nil, err
	}

	if !user.CanReceiveOTP(input.Purpose) {
		s.audit.Record(entity.AuditEvent{
			Type: entity.AuditRejected, UserID: user.ID, Purpose: input.Purpose, Channel: channel,
			MaskedTarget: masked, ClientIP: input.ClientIP, Detail: "not eligible",
		})
		return nil, ErrNotEligible
	}

	// Step-up purposes for password-bearing accounts re-check the password
	// before spending an OTP.
	if requiresPassword(input.Purpose, user) {
		if input.Password == "" {
			return nil, ErrPasswordRequired
		}
		if !user.CheckPassword(input.Password) {
			s.audit.Record(entity.AuditEvent{
				Type: entity.AuditRejected, UserID: user.ID, Purpose: input.Purpose, Channel: channel,
				MaskedTarget: masked, ClientIP: input.ClientIP, Detail: "invalid credentials",
			})
			return nil, ErrInvalidCredentials
		}
	}

	if err := s.checkRateLimit(ctx, input.ClientIP, target, input.Purpose, user.ID, masked); err != nil {
		return nil, err
	}

	s.audit.Record(entity.AuditEvent{
		Type: entity.AuditRequested, UserID: user.ID, Purpose: input.Purpose, Channel: channel,
		MaskedTarget: masked, ClientIP: input.ClientIP,
	})

	ttl := s.effectiveTTL()

	var created *entity.OtpCode
	var activeExisting *entity.OtpCode
	var plaintext string

	acquired, err := s.codes.WithPurposeLock(ctx, user.ID, input.Purpose, func(store repository.OtpCodeStore) error {
		existing, err := store.GetActive(user.ID, input.Purpose)
		if err == nil {
			activeExisting = existing
			return nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		// Belt and suspenders: consume anything the liveness query missed
		// (clock skew, prior bugs) before inserting the fresh row.
		if err := store.ConsumeActive(user.ID, input.Purpose); err != nil {
			return fmt.Errorf("failed to consume stale otp codes: %w", err)
		}

		code, err := generateCode()
		if err != nil {
			return fmt.Errorf("failed to generate code: %w", err)
		}
		hash := computeCodeHash(user.ID, input.Purpose, code, s.cfg.Secret)

		record := &entity.OtpCode{
			UserID:      user.ID,
			Purpose:     input.Purpose,
			Channel:     channel,
			Target:      target,
			CodeHash:    hash,
			Fingerprint: codeFingerprint(hash),
			ExpiresAt:   time.Now().Add(ttl),
			MaxAttempts: s.cfg.MaxAttempts,
		}
		if err := store.Create(record); err != nil {
			return fmt.Errorf("failed to create otp code: %w", err)
		}

		created = record
		plaintext = code
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !acquired {
		// Another request holds the gate. Poll briefly for its row instead
		// of blocking on the lock; a spurious busy beats a lock-wait pileup.
		if existing := s.pollForWinner(ctx, user.ID, input.Purpose); existing != nil {
			activeExisting = existing
		} else {
			s.audit.Record(entity.AuditEvent{
				Type: entity.AuditBusy, UserID: user.ID, Purpose: input.Purpose, Channel: channel,
				MaskedTarget: masked, ClientIP: input.ClientIP,
			})
			return nil, ErrOTPBusy
		}
	}

	if activeExisting != nil {
		remaining := activeExisting.TTLRemaining(time.Now())
		s.audit.Record(entity.AuditEvent{
			Type: entity.AuditAlreadyActive, UserID: user.ID, OtpID: activeExisting.ID,
			Purpose: input.Purpose, Channel: activeExisting.Channel,
			MaskedTarget: masked, ClientIP: input.ClientIP,
		})
		return &RequestOTPResult{
			Status:       "already_active",
			Purpose:      input.Purpose,
			Channel:      activeExisting.Channel,
			TTL:          remaining,
			TTLSeconds:   int(remaining.Seconds()),
			MaskedTarget: masked,
			RetryAfter:   int(remaining.Seconds()),
		}, nil
	}

	s.audit.Record(entity.AuditEvent{
		Type: entity.AuditCreated, UserID: user.ID, OtpID: created.ID,
		Purpose: input.Purpose, Channel: channel, MaskedTarget: masked, ClientIP: input.ClientIP,
	})

	result := s.delivery.Dispatch(ctx, channel, target, plaintext, ttl, input.Purpose)
	switch result.Outcome {
	case OutcomeConfirmed:
		s.audit.Record(entity.AuditEvent{
			Type: entity.AuditSent, UserID: user.ID, OtpID: created.ID,
			Purpose: input.Purpose, Channel: channel, MaskedTarget: masked, ClientIP: input.ClientIP,
			Detail: fmt.Sprintf("attempts=%d", result.AttemptsUsed),
		})
		return &RequestOTPResult{
			Status:       "created",
			Purpose:      input.Purpose,
			Channel:      channel,
			TTL:          ttl,
			TTLSeconds:   int(ttl.Seconds()),
			Delivery:     "confirmed",
			MaskedTarget: masked,
		}, nil

	case OutcomeTimeout:
		// Unknown outcome: the message may still arrive, so the code stays
		// active and expires naturally.
		s.audit.Record(entity.AuditEvent{
			Type: entity.AuditSendTimeout, UserID: user.ID, OtpID: created.ID,
			Purpose: input.Purpose, Channel: channel, MaskedTarget: masked, ClientIP: input.ClientIP,
			Detail: fmt.Sprintf("attempts=%d", result.AttemptsUsed),
		})
		return &RequestOTPResult{
			Status:       "created",
			Purpose:      input.Purpose,
			Channel:      channel,
			TTL:          ttl,
			TTLSeconds:   int(ttl.Seconds()),
			Delivery:     "pending",
			MaskedTarget: masked,
		}, nil

	default:
		// Explicit rejection: never leave a dead code active.
		if err := s.codes.MarkConsumed(created.ID); err != nil {
			log.Printf("[OTPService] failed to invalidate otp id=%d after delivery failure: %v", created.ID, err)
		}
		s.audit.Record(entity.AuditEvent{
			Type: entity.AuditSendFailed, UserID: user.ID, OtpID: created.ID,
			Purpose: input.Purpose, Channel: channel, MaskedTarget: masked, ClientIP: input.ClientIP,
			Detail: fmt.Sprintf("attempts=%d err=%v", result.AttemptsUsed, result.Err),
		})
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, result.Err)
	}
}

func requiresPassword(purpose string, user *entity.User) bool {
	if !user.PasswordAuthEnabled {
		return false
	}
	return purpose == entity.PurposeElevate || purpose == entity.PurposeSensitiveAction
}

func (s *OTPService) checkRateLimit(ctx context.Context, clientIP, target, purpose string, userID uint, masked string) error {
	if s.limiter == nil || s.cfg.RateLimit <= 0 {
		return nil
	}
	key := fmt.Sprintf("rl:otp:%s:%s:%s", clientIP, target, purpose)
	res, err := s.limiter.Check(ctx, key, s.cfg.RateLimit, s.cfg.RateWindow)
	if err != nil {
		// Fail open: the limiter backend being down must not block login.
		return nil
	}
	if !res.Allowed {
		s.audit.Record(entity.AuditEvent{
			Type: entity.AuditRateLimited, UserID: userID, Purpose: purpose,
			MaskedTarget: masked, ClientIP: clientIP,
			Detail: fmt.Sprintf("retry_after=%ds", int(res.RetryAfter.Seconds())),
		})
		return fmt.Errorf("%w: retry after %d seconds", ErrRateLimited, int(res.RetryAfter.Seconds()))
	}
	return nil
}

// pollForWinner waits briefly for the concurrent winner's row to become
// visible. Bounded: LockPollAttempts polls at LockPollInterval.
func (s *OTPService) pollForWinner(ctx context.Context, userID uint, purpose string) *entity.OtpCode {
	for i := 0; i < s.cfg.LockPollAttempts; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.LockPollInterval):
		}
		existing, err := s.codes.GetActive(userID, purpose)
		if err == nil {
			return existing
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[OTPService] poll for active otp failed user=%d purpose=%s: %v", userID, purpose, err)
			return nil
		}
	}
	return nil
}

// VerifyOTPInput входные данные проверки кода
type VerifyOTPInput struct {
	Identifier string
	Purpose    string
	Code       string
	ClientIP   string
}

// VerifyOTPResult итог успешной проверки: step-up токен
type VerifyOTPResult struct {
	UserID      uint      `json:"user_id"`
	Purpose     string    `json:"purpose"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// VerifyOTP checks a submitted code against the active record, enforcing
// the attempt budget. The hash comparison is constant-time.
func (s *OTPService) VerifyOTP(ctx context.Context, input VerifyOTPInput) (*VerifyOTPResult, error) {
	if input.Identifier == "" {
		return nil, ErrIdentifierRequired
	}
	if !entity.ValidPurposes[input.Purpose] {
		return nil, ErrInvalidPurpose
	}
	if len(input.Code) != 6 {
		return nil, ErrInvalidCode
	}

	id := identifier.Normalize(input.Identifier)
	if id.Kind == identifier.KindInvalid {
		return nil, ErrInvalidIdentifier
	}

	user, err := s.findUser(id)
	if err != nil {
		return nil, err
	}

	record, err := s.codes.GetActive(user.ID, input.Purpose)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// No live code: either never requested, already used, or expired.
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	masked := identifier.Mask(record.Target)

	if record.AttemptCount >= record.MaxAttempts {
		return nil, ErrAttemptsExceeded
	}

	expected := computeCodeHash(user.ID, input.Purpose, input.Code, s.cfg.Secret)
	if !codeHashEqual(expected, record.CodeHash) {
		if err := s.codes.IncrementAttempts(record.ID); err != nil {
			log.Printf("[OTPService] failed to increment attempts otp id=%d: %v", record.ID, err)
		}
		s.audit.Record(entity.AuditEvent{
			Type: entity.AuditVerifyFailed, UserID: user.ID, OtpID: record.ID,
			Purpose: input.Purpose, Channel: record.Channel, MaskedTarget: masked, ClientIP: input.ClientIP,
		})
		if record.AttemptCount+1 >= record.MaxAttempts {
			return nil, ErrAttemptsExceeded
		}
		return nil, ErrInvalidCode
	}

	if err := s.codes.MarkConsumed(record.ID); err != nil {
		return nil, fmt.Errorf("failed to consume otp code: %w", err)
	}

	token, expiresAt, err := s.tokens.Generate(user.ID, user.Role, input.Purpose, record.Channel)
	if err != nil {
		return nil, err
	}

	s.audit.Record(entity.AuditEvent{
		Type: entity.AuditVerified, UserID: user.ID, OtpID: record.ID,
		Purpose: input.Purpose, Channel: record.Channel, MaskedTarget: masked, ClientIP: input.ClientIP,
	})

	return &VerifyOTPResult{
		UserID:      user.ID,
		Purpose:     input.Purpose,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}

// OTPStatus снимок состояния активного кода для (identifier, purpose)
type OTPStatus struct {
	Active       bool   `json:"active"`
	Channel      string `json:"channel,omitempty"`
	TTLRemaining int    `json:"ttl_remaining,omitempty"`
	AttemptsLeft int    `json:"attempts_left,omitempty"`
}

// Status reports whether a live code exists and how long it has left.
func (s *OTPService) Status(ctx context.Context, rawIdentifier, purpose string) (*OTPStatus, error) {
	if rawIdentifier == "" {
		return nil, ErrIdentifierRequired
	}
	if !entity.ValidPurposes[purpose] {
		return nil, ErrInvalidPurpose
	}

	id := identifier.Normalize(rawIdentifier)
	if id.Kind == identifier.KindInvalid {
		return nil, ErrInvalidIdentifier
	}

	user, err := s.findUser(id)
	if err != nil {
		return nil, err
	}

	record, err := s.codes.GetActive(user.ID, purpose)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return &OTPStatus{Active: false}, nil
		}
		return nil, err
	}

	return &OTPStatus{
		Active:       true,
		Channel:      record.Channel,
		TTLRemaining: int(record.TTLRemaining(time.Now()).Seconds()),
		AttemptsLeft: record.AttemptsLeft(),
	}, nil
}
