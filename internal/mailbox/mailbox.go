// Package mailbox is the IMAP side of the relay: it finds unread messages,
// downloads them without touching their flags and marks them seen once
// they have been forwarded.
package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/shineum/mailhook/internal/config"
)

const defaultDialTimeout = 30 * time.Second

// Options describes one mailbox session.
type Options struct {
	Addr     string
	Security string // config.SecurityTLS or config.SecurityStartTLS
	TLS      *tls.Config
	Username string
	Password string
	Mailbox  string
	// ReadOnly selects the mailbox with EXAMINE; MarkSeen then fails.
	ReadOnly    bool
	DialTimeout time.Duration
}

// Client is an authenticated session with one mailbox selected.
type Client struct {
	c        *imapclient.Client
	readOnly bool
	// stop detaches the context watcher started by Dial.
	stop func() bool
}

// ErrReadOnly is returned by MarkSeen on a read-only session.
var ErrReadOnly = errors.New("mailbox is selected read-only")

// Dial connects, authenticates and selects the mailbox. Cancelling ctx
// closes the connection and aborts whatever command is in flight.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	conn, err := dialConn(ctx, opts)
	if err != nil {
		return nil, err
	}

	var c *imapclient.Client
	imapOpts := &imapclient.Options{TLSConfig: tlsConfigFor(opts)}
	switch opts.Security {
	case config.SecurityStartTLS:
		c, err = imapclient.NewStartTLS(conn, imapOpts)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("STARTTLS with %s: %w", opts.Addr, err)
		}
	default:
		c = imapclient.New(conn, imapOpts)
	}

	client := &Client{
		c:        c,
		readOnly: opts.ReadOnly,
		stop:     context.AfterFunc(ctx, func() { c.Close() }),
	}

	if err := c.Login(opts.Username, opts.Password).Wait(); err != nil {
		client.abort()
		return nil, fmt.Errorf("authentication failed for %s: %w", opts.Username, err)
	}

	data, err := c.Select(opts.Mailbox, &imap.SelectOptions{ReadOnly: opts.ReadOnly}).Wait()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("selecting %s: %w", opts.Mailbox, err)
	}

	slog.Debug("mailbox selected",
		"mailbox", opts.Mailbox,
		"messages", data.NumMessages,
		"read_only", opts.ReadOnly,
	)

	return client, nil
}

// dialConn opens the TCP connection, completing the TLS handshake first
// for implicit TLS.
func dialConn(ctx context.Context, opts Options) (net.Conn, error) {
	switch opts.Security {
	case config.SecurityTLS, config.SecurityStartTLS:
	default:
		return nil, fmt.Errorf("unknown IMAP security mode %q", opts.Security)
	}

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", opts.Addr, err)
	}

	if opts.Security == config.SecurityStartTLS {
		return conn, nil
	}

	tlsConn := tls.Client(conn, tlsConfigFor(opts))
	if err := tlsConn.HandshakeContext(dialCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("TLS handshake with %s: %w", opts.Addr, err)
	}
	return tlsConn, nil
}

// tlsConfigFor fills in the server name from the address when the caller
// did not set one. Both implicit TLS and STARTTLS verify against it.
func tlsConfigFor(opts Options) *tls.Config {
	var cfg *tls.Config
	if opts.TLS != nil {
		cfg = opts.TLS.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		if host, _, err := net.SplitHostPort(opts.Addr); err == nil {
			cfg.ServerName = host
		}
	}
	return cfg
}

// SearchUnseen returns the UIDs of every message without the \Seen flag,
// in ascending order.
func (c *Client) SearchUnseen(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := c.c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}

	return fromUIDs(data.AllUIDs()), nil
}

// Fetch downloads the full raw message. BODY.PEEK is used so the server
// does not set \Seen.
func (c *Client) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := c.c.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return nil, fmt.Errorf("fetching message UID %d: %w", uid, err)
		}
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message UID %d: %w", uid, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message UID %d: %w", uid, err)
	}
	return raw, nil
}

// MarkSeen adds the \Seen flag to the message.
func (c *Client) MarkSeen(ctx context.Context, uid uint32) error {
	if c.readOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	storeCmd := c.c.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking message UID %d seen: %w", uid, err)
	}
	return nil
}

// Close logs out and closes the connection.
func (c *Client) Close() error {
	c.stop()
	if err := c.c.Logout().Wait(); err != nil {
		c.c.Close()
		return fmt.Errorf("logout: %w", err)
	}
	return c.c.Close()
}

// abort closes the connection without logging out.
func (c *Client) abort() {
	c.stop()
	c.c.Close()
}

func fromUIDs(uids []imap.UID) []uint32 {
	out := make([]uint32, len(uids))
	for i, uid := range uids {
		out[i] = uint32(uid)
	}
	return out
}
