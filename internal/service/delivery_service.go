package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/otp-api/internal/domain/entity"
)

// DeliveryOutcome classifies a dispatch attempt. The three states are
// deliberately distinct: a timeout is unknown, not a failure, because the
// message may still arrive through the provider's own infrastructure.
type DeliveryOutcome string

const (
	// OutcomeConfirmed: the provider acknowledged the send.
	OutcomeConfirmed DeliveryOutcome = "confirmed"
	// OutcomeFailed: the provider explicitly rejected the send. The OTP
	// must be invalidated by the caller.
	OutcomeFailed DeliveryOutcome = "failed"
	// OutcomeTimeout: no resolution within the ack window. The OTP must
	// NOT be invalidated; natural expiry handles it.
	OutcomeTimeout DeliveryOutcome = "timeout"
)

// DeliveryResult reports how a dispatch resolved.
type DeliveryResult struct {
	Outcome      DeliveryOutcome
	AttemptsUsed int
	Err          error
}

// DeliveryService fans a code out to the configured channel provider under
// a bounded acknowledgement timeout.
type DeliveryService struct {
	providers  map[string]Provider
	ackTimeout time.Duration
	retries    int // extra immediate attempts for sms/whatsapp on explicit failure
}

// NewDeliveryService создает новый диспетчер доставки
func NewDeliveryService(providers map[string]Provider, ackTimeout time.Duration, retries int) (*DeliveryService, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one delivery provider is required")
	}
	if ackTimeout <= 0 {
		ackTimeout = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &DeliveryService{
		providers:  providers,
		ackTimeout: ackTimeout,
		retries:    retries,
	}, nil
}

// Dispatch sends the code and classifies the result. The provider call runs
// in its own goroutine raced against the ack timer; on timeout the wait is
// abandoned but the call itself is not cancelled, which is exactly why
// timeout must never be treated as failure.
//
// Email gets exactly one attempt at this layer (the provider retries
// internally); sms/whatsapp get a small number of immediate retries on
// explicit, non-timeout failures.
func (d *DeliveryService) Dispatch(ctx context.Context, channel, target, code string, ttl time.Duration, purpose string) DeliveryResult {
	provider, ok := d.providers[channel]
	if !ok {
		return DeliveryResult{
			Outcome: OutcomeFailed,
			Err:     fmt.Errorf("unsupported channel: %s", channel),
		}
	}

	maxAttempts := 1
	if channel == entity.ChannelSMS || channel == entity.ChannelWhatsApp {
		maxAttempts = 1 + d.retries
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resCh := make(chan error, 1)
		go func() {
			// Detached context: the ack timer cancels the wait, not the
			// provider call, which may still complete on its own.
			sendCtx, cancel := context.WithTimeout(context.Background(), 2*d.ackTimeout)
			defer cancel()
			resCh <- provider.Send(sendCtx, target, code, ttl, purpose)
		}()

		timer := time.NewTimer(d.ackTimeout)
		select {
		case err := <-resCh:
			timer.Stop()
			if err == nil {
				return DeliveryResult{Outcome: OutcomeConfirmed, AttemptsUsed: attempt}
			}
			lastErr = err
			log.Printf("[DeliveryService] send failed channel=%s attempt=%d/%d: %v", channel, attempt, maxAttempts, err)
		case <-timer.C:
			return DeliveryResult{
				Outcome:      OutcomeTimeout,
				AttemptsUsed: attempt,
				Err:          fmt.Errorf("provider did not acknowledge within %s", d.ackTimeout),
			}
		}
	}

	return DeliveryResult{Outcome: OutcomeFailed, AttemptsUsed: maxAttempts, Err: lastErr}
}
