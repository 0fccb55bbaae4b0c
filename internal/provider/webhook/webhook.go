// Package webhook implements a Provider that posts forwards to a
// Discord-compatible webhook as a single embed.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/shineum/mailhook/internal/email"
)

// EmbedColor is the accent color of every embed (0xFF007F).
const EmbedColor = 0xFF007F

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// payload is the webhook request body.
type payload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Footer      *footer `json:"footer,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

type footer struct {
	Text string `json:"text"`
}

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Provider posts embeds with a shared HTTP client.
type Provider struct {
	httpClient *http.Client
	footerText string
	limiter    *rate.Limiter
	now        func() time.Time
}

// New creates a webhook Provider. A zero timeout means no timeout.
func New(timeout time.Duration, footerText string) *Provider {
	return &Provider{
		httpClient: &http.Client{Timeout: timeout},
		footerText: footerText,
		now:        time.Now,
	}
}

// SetRateLimit allows at most requests posts per period across all
// destinations, with bursts of up to requests. Send blocks until a slot is
// free. A non-positive requests removes the limit.
func (p *Provider) SetRateLimit(requests int, per time.Duration) {
	if requests <= 0 || per <= 0 {
		p.limiter = nil
		return
	}
	p.limiter = rate.NewLimiter(rate.Every(per/time.Duration(requests)), requests)
}

// Send posts fwd as one embed to the webhook URL dest. It does not retry.
func (p *Provider) Send(ctx context.Context, dest string, fwd *email.Forward) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for webhook rate limit: %w", err)
		}
	}

	ts := fwd.Timestamp
	if ts.IsZero() {
		ts = p.now()
	}

	body, err := json.Marshal(buildPayload(fwd, p.footerText, ts))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		slog.Debug("webhook accepted forward",
			"status", resp.StatusCode,
			"title", fwd.Title(),
		)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       string(bytes.TrimSpace(respBody)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "webhook"
}

// buildPayload converts a Forward into the webhook request body.
func buildPayload(fwd *email.Forward, footerText string, ts time.Time) *payload {
	e := embed{
		Title:       fwd.Title(),
		Description: fwd.Body,
		Color:       EmbedColor,
		Timestamp:   ts.UTC().Format(time.RFC3339),
	}
	if footerText != "" {
		e.Footer = &footer{Text: footerText}
	}
	return &payload{Embeds: []embed{e}}
}
