// Package webhook delivers archive change events as signed HTTP POSTs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/strata/adapter"
	"github.com/pithecene-io/strata/iox"
)

// DefaultTimeout bounds one HTTP request.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Request headers set on every delivery.
const (
	HeaderEvent     = "X-Strata-Event"
	HeaderDelivery  = "X-Strata-Delivery"
	HeaderSignature = "X-Strata-Signature"
)

// Config configures the webhook adapter.
type Config struct {
	// URL is the endpoint to POST to (required).
	URL string
	// Headers are added to each request.
	Headers map[string]string
	// Secret, when set, signs each body with HMAC-SHA256.
	Secret string
	// Timeout bounds one request (default 10s).
	Timeout time.Duration
	// Retries is the number of extra attempts after a failure.
	Retries int
}

// Adapter publishes archive events via HTTP POST.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New validates cfg and builds the HTTP client.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retryable reports whether the receiver may accept a later attempt.
// Client errors other than 408 and 429 are final.
func (e *StatusError) Retryable() bool {
	switch {
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	case e.Code >= 400 && e.Code < 500:
		return false
	default:
		return true
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret, as sent in
// X-Strata-Signature with a "sha256=" prefix.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Publish POSTs the event. Every attempt carries the same delivery ID so
// receivers can drop duplicates.
func (a *Adapter) Publish(ctx context.Context, event *adapter.ArchiveEvent) error {
	body, err := event.Encode()
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	delivery := uuid.NewString()
	err = adapter.Retry(ctx, a.cfg.Retries, nil, func(ctx context.Context) error {
		err := a.post(ctx, body, event.EventType, delivery)
		var status *StatusError
		if errors.As(err, &status) && !status.Retryable() {
			return adapter.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, body []byte, eventType, delivery string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return adapter.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderDelivery, delivery)
	if a.cfg.Secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(a.cfg.Secret, body))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
