package mailbox

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/shineum/mailhook/internal/config"
)

func TestDial_UnknownSecurity(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), Options{Addr: "127.0.0.1:993", Security: "plain"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), `unknown IMAP security mode "plain"`) {
		t.Errorf("error: got %q", err.Error())
	}
}

func TestDial_ConnectionRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), Options{Addr: addr, Security: config.SecurityTLS, DialTimeout: time.Second})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "connecting to IMAP") {
		t.Errorf("error: got %q", err.Error())
	}
}

func TestDial_CancelledContext(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Dial(ctx, Options{Addr: ln.Addr().String(), Security: config.SecurityTLS}); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

func TestDial_TLSHandshakeTimeout(t *testing.T) {
	t.Parallel()

	// Accepts connections but never speaks TLS.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	start := time.Now()
	_, err = Dial(context.Background(), Options{
		Addr:        ln.Addr().String(),
		Security:    config.SecurityTLS,
		DialTimeout: 100 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected handshake error, got nil")
	}
	if !strings.Contains(err.Error(), "TLS handshake") {
		t.Errorf("error: got %q", err.Error())
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("dial took %v, want it bounded by the dial timeout", elapsed)
	}
}

func TestTLSConfigFor(t *testing.T) {
	t.Parallel()

	t.Run("server name from address", func(t *testing.T) {
		t.Parallel()
		cfg := tlsConfigFor(Options{Addr: "imap.example.com:993"})
		if cfg.ServerName != "imap.example.com" {
			t.Errorf("ServerName: got %q, want %q", cfg.ServerName, "imap.example.com")
		}
		if cfg.MinVersion != tls.VersionTLS12 {
			t.Errorf("MinVersion: got %d, want %d", cfg.MinVersion, tls.VersionTLS12)
		}
	})

	t.Run("configured server name kept", func(t *testing.T) {
		t.Parallel()
		base := &tls.Config{ServerName: "mail.internal"}
		cfg := tlsConfigFor(Options{Addr: "10.0.0.1:993", TLS: base})
		if cfg.ServerName != "mail.internal" {
			t.Errorf("ServerName: got %q, want %q", cfg.ServerName, "mail.internal")
		}
	})

	t.Run("caller config not modified", func(t *testing.T) {
		t.Parallel()
		base := &tls.Config{}
		cfg := tlsConfigFor(Options{Addr: "imap.example.com:993", TLS: base})
		if base.ServerName != "" {
			t.Errorf("caller config modified: ServerName = %q", base.ServerName)
		}
		if cfg == base {
			t.Error("expected a clone, got the caller's config")
		}
	})
}

func TestMarkSeen_ReadOnly(t *testing.T) {
	t.Parallel()

	c := &Client{readOnly: true}
	if err := c.MarkSeen(context.Background(), 1); err != ErrReadOnly {
		t.Errorf("MarkSeen(): got %v, want %v", err, ErrReadOnly)
	}
}

func TestFromUIDs(t *testing.T) {
	t.Parallel()

	got := fromUIDs([]imap.UID{3, 7, 42})
	want := []uint32{3, 7, 42}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("uid[%d]: got %d, want %d", i, got[i], want[i])
		}
	}
	if got := fromUIDs(nil); len(got) != 0 {
		t.Errorf("fromUIDs(nil): got %v, want empty", got)
	}
}
