// Package provider defines the interface for forward delivery backends and
// the scheme-based dispatcher that picks one per destination.
package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shineum/mailhook/internal/email"
)

// Provider is the interface that delivery backends must implement.
// Each provider hands a Forward to one destination of its kind
// (a webhook URL, a recipient address).
type Provider interface {
	// Send delivers fwd to dest. It returns an error if the delivery fails.
	// Providers do not retry.
	Send(ctx context.Context, dest string, fwd *email.Forward) error

	// Name returns the human-readable name of this provider.
	Name() string
}

// Mux routes each destination to a provider by URL scheme: http and https
// go to Webhook, mailto goes to Mail with the scheme stripped.
type Mux struct {
	Webhook Provider
	// Mail is nil when no mail forwarder is configured.
	Mail Provider
}

// Send dispatches fwd to the provider serving dest's scheme.
func (m *Mux) Send(ctx context.Context, dest string, fwd *email.Forward) error {
	p, target, err := m.resolve(dest)
	if err != nil {
		return err
	}
	return p.Send(ctx, target, fwd)
}

// Name returns the names of the configured providers.
func (m *Mux) Name() string {
	if m.Mail == nil {
		return m.Webhook.Name()
	}
	return m.Webhook.Name() + "+" + m.Mail.Name()
}

func (m *Mux) resolve(dest string) (Provider, string, error) {
	u, err := url.Parse(dest)
	if err != nil {
		return nil, "", fmt.Errorf("invalid destination %q: %w", dest, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return m.Webhook, dest, nil
	case "mailto":
		if m.Mail == nil {
			return nil, "", fmt.Errorf("no mail forwarder configured for %q", dest)
		}
		return m.Mail, u.Opaque, nil
	default:
		return nil, "", fmt.Errorf("destination %q: unsupported scheme %q", dest, u.Scheme)
	}
}
