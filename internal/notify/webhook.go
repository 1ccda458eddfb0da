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
	"sync"
	"time"

	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-PropChain-Signature"

// DefaultRetryDelays are the pauses before the second and third delivery
// attempts.
var DefaultRetryDelays = []time.Duration{time.Second, 5 * time.Second}

// WebhookEvent is the body POSTed to a webhook endpoint.
type WebhookEvent struct {
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// WebhookPublisher POSTs notifications to one HTTP endpoint. Delivery runs in
// the background with retries; Publish only reports encoding errors.
type WebhookPublisher struct {
	url        string
	secret     string
	delays     []time.Duration
	httpClient *http.Client
	onMetrics  func(success bool)
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewWebhookPublisher creates a publisher for url. A non-empty secret signs
// each body in SignatureHeader.
func NewWebhookPublisher(url, secret string, logger *zap.Logger) *WebhookPublisher {
	return &WebhookPublisher{
		url:        url,
		secret:     secret,
		delays:     DefaultRetryDelays,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// SetRetryDelays replaces the pauses between attempts; len(delays)+1
// attempts are made.
func (p *WebhookPublisher) SetRetryDelays(delays []time.Duration) {
	p.delays = delays
}

// SetMetricsRecorder configures a callback run after every attempt.
func (p *WebhookPublisher) SetMetricsRecorder(fn func(success bool)) {
	p.onMetrics = fn
}

// Publish implements Publisher.
func (p *WebhookPublisher) Publish(ctx context.Context, subject string, payload any) error {
	body, err := json.Marshal(WebhookEvent{
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	// the caller's context usually ends before the retries do
	deliverCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.deliver(deliverCtx, subject, body)
	}()
	return nil
}

// Close waits for in-flight deliveries.
func (p *WebhookPublisher) Close() {
	p.wg.Wait()
}

func (p *WebhookPublisher) deliver(ctx context.Context, subject string, body []byte) {
	signature := ""
	if p.secret != "" {
		signature = Sign(body, p.secret)
	}

	attempts := len(p.delays) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(p.delays[attempt-2])
		}

		err := p.post(ctx, body, signature)
		if p.onMetrics != nil {
			p.onMetrics(err == nil)
		}
		if err == nil {
			return
		}
		p.logger.Warn("webhook delivery failed",
			zap.String("url", p.url),
			zap.String("subject", subject),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	p.logger.Error("webhook delivery abandoned (non-fatal)",
		zap.String("url", p.url),
		zap.String("subject", subject),
	)
}

func (p *WebhookPublisher) post(ctx context.Context, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the SignatureHeader value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Multi publishes to every publisher in order and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, subject string, payload any) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, subject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
