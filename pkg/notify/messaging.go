package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ErrNoRecipient is returned when the client has no address for a channel
var ErrNoRecipient = errors.New("no recipient for channel")

// Message is a text notification for the messaging API
type Message struct {
	To            string `json:"to"`
	Text          string `json:"text"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Status        string `json:"status,omitempty"`
}

// MessagingConfig configures the HTTP messaging sender
type MessagingConfig struct {
	URL     string
	Token   string
	Secret  string
	Timeout time.Duration
	Retry   RetryConfig
}

// MessagingSender posts messages to an HTTP messaging API. Bodies are
// signed with HMAC-SHA256 when a secret is configured.
type MessagingSender struct {
	cfg    MessagingConfig
	client *http.Client
	retry  *RetryPolicy
	sleep  func(context.Context, time.Duration) error
}

// NewMessagingSender creates a messaging sender
func NewMessagingSender(cfg MessagingConfig) (*MessagingSender, error) {
	if cfg.URL == "" {
		return nil, errors.New("messaging url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MessagingSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  NewRetryPolicy(cfg.Retry),
		sleep:  sleepContext,
	}, nil
}

// Send posts msg, retrying transport errors, 429 and 5xx responses with
// exponential backoff. Other 4xx responses are not retried.
func (s *MessagingSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return permanent(ErrNoRecipient)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return s.retry.Do(ctx, s.sleep, func(attempt int) error {
		return s.post(ctx, payload, attempt)
	})
}

func (s *MessagingSender) post(ctx context.Context, payload []byte, attempt int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Billing-Attempt", strconv.Itoa(attempt))
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	if s.cfg.Secret != "" {
		req.Header.Set("X-Billing-Signature", generateSignature(payload, s.cfg.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("messaging api returned status %d", resp.StatusCode)
	default:
		return permanent(fmt.Errorf("messaging api rejected message with status %d", resp.StatusCode))
	}
}

// VerifySignature verifies a message signature
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// generateSignature generates HMAC-SHA256 signature
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
