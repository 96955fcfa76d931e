package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// Provider delivers a one-time passcode over a single channel. The set of
// implementations is known at compile time and selected by configuration;
// there is no dynamic dispatch.
type Provider interface {
	Send(ctx context.Context, target, code string, ttl time.Duration, purpose string) error
}

// otpMessage is the shared message body for the text channels.
func otpMessage(brand, code string, ttl time.Duration, purpose string) string {
	minutes := int(ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%s: your %s code is %s. It expires in %d minute(s). Never share this code.",
		brand, strings.ReplaceAll(purpose, "_", " "), code, minutes)
}

// NoopProvider is used when a channel is not configured.
type NoopProvider struct {
	Channel string
}

func (p *NoopProvider) Send(ctx context.Context, target, code string, ttl time.Duration, purpose string) error {
	log.Printf("[NoopProvider] channel=%s not configured, dropping send to=%s", p.Channel, target)
	return nil
}

// ResendEmailProvider sends OTP email via the Resend REST API. Provider-side
// failover and rate-limit retries are handled here, so the dispatcher makes
// exactly one attempt at its layer for email.
type ResendEmailProvider struct {
	from   string
	brand  string
	client *resend.Client
}

func NewResendEmailProvider(apiKey, from, brand string) (*ResendEmailProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendEmailProvider{
		from:   from,
		brand:  brand,
		client: resend.NewClient(apiKey),
	}, nil
}

func (p *ResendEmailProvider) Send(ctx context.Context, target, code string, ttl time.Duration, purpose string) error {
	if target == "" || code == "" {
		return fmt.Errorf("target and code are required")
	}

	minutes := int(ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	params := &resend.SendEmailRequest{
		From:    p.from,
		To:      []string{target},
		Subject: fmt.Sprintf("%s verification code", p.brand),
		Text:    otpMessage(p.brand, code, ttl, purpose),
		Html: fmt.Sprintf("<p>Your %s code is <strong>%s</strong>.</p><p>It expires in %d minute(s). Never share this code.</p>",
			strings.ReplaceAll(purpose, "_", " "), code, minutes),
	}

	// Idempotency key keeps gateway-side retries from double-sending.
	options := &resend.SendEmailOptions{
		IdempotencyKey: fmt.Sprintf("otp:%s:%s", purpose, code),
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := p.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}

// GatewaySMSProvider sends OTP SMS via an HTTP SMS portal
// (form-encoded request, JSON response).
type GatewaySMSProvider struct {
	baseURL  string
	apiKey   string
	senderID string
	userID   string
	password string
	brand    string
	client   *http.Client
}

func NewGatewaySMSProvider(baseURL, apiKey, senderID, userID, password, brand string) (*GatewaySMSProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("sms gateway url is required")
	}
	return &GatewaySMSProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		senderID: senderID,
		userID:   userID,
		password: password,
		brand:    brand,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (p *GatewaySMSProvider) Send(ctx context.Context, target, code string, ttl time.Duration, purpose string) error {
	form := url.Values{}
	form.Set("userid", p.userID)
	form.Set("password", p.password)
	form.Set("senderid", p.senderID)
	form.Set("sendMethod", "quick")
	form.Set("msgType", "text")
	form.Set("msg", otpMessage(p.brand, code, ttl, purpose))
	form.Set("mobile", target)
	form.Set("duplicatecheck", "true")
	form.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/send", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms http error: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms api error (status %d): %s", resp.StatusCode, string(body))
	}

	// The portal reports rejections inside a 200 response.
	var portalResp struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &portalResp); err == nil &&
		portalResp.Status != "" && !strings.EqualFold(portalResp.Status, "success") {
		return fmt.Errorf("sms rejected by gateway: %s %s", portalResp.Status, portalResp.Reason)
	}

	return nil
}

// GatewayWhatsAppProvider sends OTP messages via a WhatsApp gateway
// (JSON request).
type GatewayWhatsAppProvider struct {
	baseURL string
	token   string
	sender  string
	brand   string
	client  *http.Client
}

func NewGatewayWhatsAppProvider(baseURL, token, sender, brand string) (*GatewayWhatsAppProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("whatsapp gateway url is required")
	}
	return &GatewayWhatsAppProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		sender:  sender,
		brand:   brand,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (p *GatewayWhatsAppProvider) Send(ctx context.Context, target, code string, ttl time.Duration, purpose string) error {
	payload := map[string]interface{}{
		"messageType": "text",
		"token":       p.token,
		"from":        p.sender,
		"to":          target,
		"text":        otpMessage(p.brand, code, ttl, purpose),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/send_message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp http error: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whatsapp api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}
