// Package relay runs the pipeline: find unread mail, route it, forward it
// and mark it seen.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/mailhook/internal/email"
	"github.com/shineum/mailhook/internal/extract"
	"github.com/shineum/mailhook/internal/parser"
	"github.com/shineum/mailhook/internal/provider"
	"github.com/shineum/mailhook/internal/router"
)

// Mailbox is an open mailbox session.
type Mailbox interface {
	SearchUnseen(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) ([]byte, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}

// DialFunc opens a new mailbox session.
type DialFunc func(ctx context.Context) (Mailbox, error)

// Options configures a Relay.
type Options struct {
	Dial     DialFunc
	Router   *router.Table
	Provider provider.Provider
	Saver    *extract.Saver
	Logger   *slog.Logger
	// DryRun leaves every message unseen.
	DryRun bool
}

// Relay forwards unread mail. A Relay holds no state between runs.
type Relay struct {
	dial     DialFunc
	router   *router.Table
	provider provider.Provider
	saver    *extract.Saver
	logger   *slog.Logger
	dryRun   bool
	now      func() time.Time
}

// Summary reports what one run did.
type Summary struct {
	RunID     string
	Processed int // messages routed and forwarded
	Skipped   int // messages that could not be parsed, left unseen
	Delivered int // successful sends
	Failed    int // failed sends
}

// New creates a Relay.
func New(opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		dial:     opts.Dial,
		router:   opts.Router,
		provider: opts.Provider,
		saver:    opts.Saver,
		logger:   logger,
		dryRun:   opts.DryRun,
		now:      time.Now,
	}
}

// Run performs one pass over the unread messages. Every message is marked
// seen after all of its destinations were attempted, whether or not the
// sends succeeded. A mailbox error (connect, search, fetch, flag update)
// ends the run and is returned; delivery errors are only logged and counted.
func (r *Relay) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	logger := r.logger.With("run_id", sum.RunID)
	start := time.Now()

	mb, err := r.dial(ctx)
	if err != nil {
		return sum, fmt.Errorf("opening mailbox: %w", err)
	}
	defer func() {
		if err := mb.Close(); err != nil {
			logger.Warn("failed to close mailbox session", "error", err)
		}
	}()

	uids, err := mb.SearchUnseen(ctx)
	if err != nil {
		return sum, err
	}
	logger.Info("unseen messages found", "count", len(uids))

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		raw, err := mb.Fetch(ctx, uid)
		if err != nil {
			return sum, err
		}

		msg, err := parser.Parse(raw)
		if err != nil {
			logger.Error("failed to parse message, leaving it unseen",
				"uid", uid,
				"size", len(raw),
				"error", err,
			)
			sum.Skipped++
			continue
		}
		msg.UID = uid

		r.process(ctx, logger, msg, &sum)
		sum.Processed++

		if r.dryRun {
			logger.Debug("dry run, message left unseen", "uid", uid)
			continue
		}
		if err := mb.MarkSeen(ctx, uid); err != nil {
			return sum, err
		}
	}

	logger.Info("relay run finished",
		"processed", sum.Processed,
		"skipped", sum.Skipped,
		"delivered", sum.Delivered,
		"failed", sum.Failed,
		"duration", time.Since(start).String(),
	)
	return sum, nil
}

// process sends msg to every destination the router picks.
func (r *Relay) process(ctx context.Context, logger *slog.Logger, msg *email.Message, sum *Summary) {
	logger = logger.With("uid", msg.UID, "message_id", msg.MessageID)

	body := extract.Body(msg, logger)
	routes := r.router.Route(msg)

	logger.Info("message routed",
		"from", msg.From,
		"subject", msg.Subject,
		"routes", len(routes),
		"matched", routes[0].Matched,
		"attachments", len(msg.Attachments),
	)

	for _, route := range routes {
		fwd := r.forward(msg, body, route)

		if err := r.provider.Send(ctx, route.Destination, fwd); err != nil {
			logger.Error("delivery failed",
				"label", route.Label,
				"destination", redact(route.Destination),
				"provider", r.provider.Name(),
				"error", err,
			)
			sum.Failed++
			continue
		}

		logger.Info("forward delivered",
			"label", route.Label,
			"destination", redact(route.Destination),
		)
		sum.Delivered++
	}
}

// forward builds what is sent for one route. A matched route carries the
// configured label as its title and the attachment manifest; the fallback
// route carries the message subject under the unknown-sender label and
// nothing else.
func (r *Relay) forward(msg *email.Message, body string, route router.Route) *email.Forward {
	if !route.Matched {
		return &email.Forward{
			Label:     route.Label,
			Subject:   msg.Subject,
			Body:      body,
			From:      msg.FromDisplay,
			Timestamp: r.now(),
		}
	}

	manifest := r.saver.Save(msg, route.Label)
	return &email.Forward{
		Subject:     route.Label,
		Body:        extract.Compose(body, manifest),
		From:        msg.FromDisplay,
		Attachments: msg.Attachments,
		Timestamp:   r.now(),
	}
}

// redact keeps webhook tokens out of the logs: only the scheme and host of
// a URL are kept.
func redact(dest string) string {
	u, err := url.Parse(dest)
	if err != nil {
		return "<invalid>"
	}
	if u.Scheme == "mailto" {
		return dest
	}
	if u.Host == "" {
		return "<invalid>"
	}
	out := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		out += "/..."
	}
	return out
}
