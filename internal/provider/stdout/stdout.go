// Package stdout implements a Provider that prints forwards to standard
// output instead of delivering them. It backs dry runs.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shineum/mailhook/internal/email"
)

// Provider prints forwards in a human-readable format.
type Provider struct {
	mu sync.Mutex
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send prints the forward and the destination it would have gone to.
// It always returns nil (success).
func (p *Provider) Send(_ context.Context, dest string, fwd *email.Forward) error {
	var b strings.Builder

	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "Destination: %s\n", dest)
	if fwd.From != "" {
		fmt.Fprintf(&b, "From: %s\n", fwd.From)
	}
	fmt.Fprintf(&b, "Title: %s\n", strings.ReplaceAll(fwd.Title(), "\n", " / "))
	b.WriteString("Body:\n")
	b.WriteString(fwd.Body + "\n")

	if len(fwd.Attachments) > 0 {
		attachments := make([]string, 0, len(fwd.Attachments))
		for _, att := range fwd.Attachments {
			attachments = append(attachments, fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(att.Content))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	b.WriteString("========================================\n")

	p.mu.Lock()
	defer p.mu.Unlock()
	// A failed write to stdout is not a delivery failure.
	_, _ = fmt.Fprint(p.writer, b.String())

	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
