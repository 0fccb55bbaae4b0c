// Package main is the entry point for the mailhook relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shineum/mailhook/internal/config"
	"github.com/shineum/mailhook/internal/credential"
	"github.com/shineum/mailhook/internal/extract"
	"github.com/shineum/mailhook/internal/logging"
	"github.com/shineum/mailhook/internal/mailbox"
	"github.com/shineum/mailhook/internal/provider"
	"github.com/shineum/mailhook/internal/provider/graph"
	"github.com/shineum/mailhook/internal/provider/ses"
	"github.com/shineum/mailhook/internal/provider/stdout"
	"github.com/shineum/mailhook/internal/provider/webhook"
	"github.com/shineum/mailhook/internal/relay"
	"github.com/shineum/mailhook/internal/router"
	mailtls "github.com/shineum/mailhook/internal/tls"
)

func main() {
	configPath := flag.String("config", "app.settings.json", "path to the JSON or YAML settings file")
	flag.Parse()

	os.Exit(run(*configPath))
}

func run(configPath string) int {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mailhook: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mailhook: %v\n", err)
		return 1
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	password, err := credential.Resolve(cfg.EmailPW, cfg.KeyringService, cfg.EmailUserName)
	if err != nil {
		slog.Error("failed to resolve IMAP password", "error", err)
		return 1
	}

	tlsConfig, err := mailtls.ClientConfig(cfg.IMAPServer, cfg.IMAPCAFile, cfg.IMAPInsecureSkipVerify)
	if err != nil {
		slog.Error("failed to setup TLS", "error", err)
		return 1
	}
	if cfg.IMAPInsecureSkipVerify {
		slog.Warn("IMAP certificate verification is disabled")
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov, err := selectProvider(ctx, cfg)
	if err != nil {
		slog.Error("failed to create provider", "error", err)
		return 1
	}

	table := router.New(cfg.EmailAccepts, cfg.DefaultWebhookURL)

	r := relay.New(relay.Options{
		Dial: func(ctx context.Context) (relay.Mailbox, error) {
			c, err := mailbox.Dial(ctx, mailbox.Options{
				Addr:     cfg.Addr(),
				Security: cfg.IMAPSecurity,
				TLS:      tlsConfig,
				Username: cfg.EmailUserName,
				Password: password,
				Mailbox:  cfg.IMAPMailbox,
				ReadOnly: cfg.DryRun,
			})
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Router:   table,
		Provider: prov,
		Saver: &extract.Saver{
			BaseDir: cfg.AttachmentDir,
			DryRun:  cfg.DryRun,
			Logger:  slog.Default(),
		},
		Logger: slog.Default(),
		DryRun: cfg.DryRun,
	})

	slog.Info("starting mailhook",
		"imap", cfg.Addr(),
		"security", cfg.IMAPSecurity,
		"mailbox", cfg.IMAPMailbox,
		"routes", table.Len(),
		"provider", prov.Name(),
		"poll_interval", cfg.PollInterval.String(),
		"dry_run", cfg.DryRun,
	)

	runOnce(ctx, r)
	if cfg.PollInterval <= 0 {
		return 0
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("received signal, stopping")
			return 0
		case <-ticker.C:
			runOnce(ctx, r)
		}
	}
}

// runOnce performs one relay run. Session errors end the run and are logged
// here; the process keeps going.
func runOnce(ctx context.Context, r *relay.Relay) {
	sum, err := r.Run(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Error("relay run aborted",
			"run_id", sum.RunID,
			"processed", sum.Processed,
			"error", err,
		)
	}
}

// selectProvider builds the delivery provider. Webhooks are always served;
// mailto: destinations need a configured mail forwarder. In dry-run mode
// every forward is printed instead.
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	if cfg.DryRun {
		slog.Info("dry run, forwards are printed to stdout")
		return stdout.New(), nil
	}

	hook := webhook.New(cfg.HTTPTimeout, cfg.FooterText)
	if rl := cfg.WebhookRateLimit; rl.Requests > 0 {
		hook.SetRateLimit(rl.Requests, rl.Per)
		slog.Info("webhook rate limit enabled", "requests", rl.Requests, "per", rl.Per.String())
	}
	mux := &provider.Mux{Webhook: hook}

	switch cfg.Forward.Provider {
	case config.ForwardSES:
		slog.Info("using AWS SES for mailto destinations",
			"region", cfg.Forward.SES.Region,
			"sender", cfg.Forward.SES.Sender,
		)
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:          cfg.Forward.SES.Region,
			AccessKeyID:     cfg.Forward.SES.AccessKeyID,
			SecretAccessKey: cfg.Forward.SES.SecretAccessKey,
			Sender:          cfg.Forward.SES.Sender,
		})
		if err != nil {
			return nil, err
		}
		mux.Mail = p

	case config.ForwardGraph:
		slog.Info("using Microsoft Graph for mailto destinations",
			"sender", cfg.Forward.Graph.Sender,
		)
		mux.Mail = graph.New(graph.GraphProviderConfig{
			TenantID:     cfg.Forward.Graph.TenantID,
			ClientID:     cfg.Forward.Graph.ClientID,
			ClientSecret: cfg.Forward.Graph.ClientSecret,
			Sender:       cfg.Forward.Graph.Sender,
			Timeout:      cfg.HTTPTimeout,
		})
	}

	return mux, nil
}
