package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider позволяет управлять исходом Send в тестах диспетчера
type fakeProvider struct {
	err   error
	delay time.Duration
	calls int32
}

func (p *fakeProvider) Send(ctx context.Context, target, code string, ttl time.Duration, purpose string) error {
	atomic.AddInt32(&p.calls, 1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}

func (p *fakeProvider) callCount() int {
	return int(atomic.LoadInt32(&p.calls))
}

func TestDispatch_Confirmed(t *testing.T) {
	provider := &fakeProvider{}
	d, err := NewDeliveryService(map[string]Provider{"email": provider}, time.Second, 2)
	require.NoError(t, err)

	result := d.Dispatch(context.Background(), "email", "user@example.com", "123456", 5*time.Minute, "login")

	assert.Equal(t, OutcomeConfirmed, result.Outcome)
	assert.Equal(t, 1, result.AttemptsUsed)
	assert.NoError(t, result.Err)
}

func TestDispatch_EmailGetsSingleAttempt(t *testing.T) {
	// Провайдер email ретраит внутри себя, диспетчер не добавляет попыток
	provider := &fakeProvider{err: errors.New("provider rejected")}
	d, err := NewDeliveryService(map[string]Provider{"email": provider}, time.Second, 3)
	require.NoError(t, err)

	result := d.Dispatch(context.Background(), "email", "user@example.com", "123456", 5*time.Minute, "login")

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, 1, result.AttemptsUsed)
	assert.Equal(t, 1, provider.callCount())
}

func TestDispatch_SMSRetriesOnExplicitFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("portal error 1002")}
	d, err := NewDeliveryService(map[string]Provider{"sms": provider}, time.Second, 2)
	require.NoError(t, err)

	result := d.Dispatch(context.Background(), "sms", "8801712345678", "123456", 5*time.Minute, "login")

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, 3, result.AttemptsUsed, "1 initial + 2 retries")
	assert.Equal(t, 3, provider.callCount())
	assert.ErrorContains(t, result.Err, "portal error 1002")
}

func TestDispatch_TimeoutIsNotFailure(t *testing.T) {
	// Провайдер не успевает ответить в окно подтверждения. Исход timeout,
	// без ретраев: сообщение все еще может дойти.
	provider := &fakeProvider{delay: 500 * time.Millisecond}
	d, err := NewDeliveryService(map[string]Provider{"sms": provider}, 30*time.Millisecond, 2)
	require.NoError(t, err)

	result := d.Dispatch(context.Background(), "sms", "8801712345678", "123456", 5*time.Minute, "login")

	assert.Equal(t, OutcomeTimeout, result.Outcome)
	assert.Equal(t, 1, result.AttemptsUsed)
	assert.Error(t, result.Err)
	assert.Equal(t, 1, provider.callCount(), "timeout must not trigger a retry")
}

func TestDispatch_UnsupportedChannel(t *testing.T) {
	d, err := NewDeliveryService(map[string]Provider{"email": &fakeProvider{}}, time.Second, 0)
	require.NoError(t, err)

	result := d.Dispatch(context.Background(), "pigeon", "somewhere", "123456", 5*time.Minute, "login")

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.ErrorContains(t, result.Err, "unsupported channel")
}

func TestNewDeliveryService_RequiresProviders(t *testing.T) {
	_, err := NewDeliveryService(nil, time.Second, 0)
	assert.Error(t, err)
}
