// Package config loads the routing table and mailbox settings from a JSON or
// YAML file, with environment variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied before the file is decoded.
const (
	defaultIMAPPort    = 993
	defaultMailbox     = "INBOX"
	defaultHTTPTimeout = 30 * time.Second
	defaultLogFile     = "mailhook.log"
	defaultFooterText  = "this is an automated message\ndetails available on https://github.com/FaolanBig/etdWebhook/wiki"
)

// IMAP connection security modes.
const (
	SecurityTLS      = "tls"
	SecurityStartTLS = "starttls"
)

// Mail forwarder providers for mailto: destinations.
const (
	ForwardSES   = "ses"
	ForwardGraph = "graph"
)

// Config holds the complete application configuration. Field names of the
// routing table follow the app.settings.json format.
type Config struct {
	IMAPServer             string `json:"imapServer" yaml:"imapServer"`
	IMAPPort               int    `json:"imapPort" yaml:"imapPort"`
	IMAPSecurity           string `json:"imapSecurity" yaml:"imapSecurity"`
	IMAPMailbox            string `json:"imapMailbox" yaml:"imapMailbox"`
	IMAPCAFile             string `json:"imapCAFile" yaml:"imapCAFile"`
	IMAPInsecureSkipVerify bool   `json:"imapInsecureSkipVerify" yaml:"imapInsecureSkipVerify"`
	EmailUserName          string `json:"emailUserName" yaml:"emailUserName"`
	EmailPW                string `json:"emailPW" yaml:"emailPW"`
	KeyringService         string `json:"keyringService" yaml:"keyringService"`

	DefaultWebhookURL string           `json:"defaultWebhookURL" yaml:"defaultWebhookURL"`
	EmailAccepts      []AcceptedSender `json:"emailAccepts" yaml:"emailAccepts"`

	AttachmentDir string        `json:"attachmentDir" yaml:"attachmentDir"`
	PollInterval  time.Duration `json:"pollInterval" yaml:"pollInterval"`
	HTTPTimeout   time.Duration `json:"httpTimeout" yaml:"httpTimeout"`
	FooterText    string        `json:"footerText" yaml:"footerText"`
	DryRun        bool          `json:"dryRun" yaml:"dryRun"`

	WebhookRateLimit RateLimitConfig `json:"webhookRateLimit" yaml:"webhookRateLimit"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Forward ForwardConfig `json:"forward" yaml:"forward"`
}

// AcceptedSender maps one sender address to its subject routes. The same
// address may appear more than once.
type AcceptedSender struct {
	EmailAddress string       `json:"emailAddress" yaml:"emailAddress"`
	Data         []RouteEntry `json:"data" yaml:"data"`
}

// RouteEntry maps a subject to a destination.
type RouteEntry struct {
	SubjectShort string `json:"subjectShort" yaml:"subjectShort"`
	WebhookURL   string `json:"webhookURL" yaml:"webhookURL"`
}

// RateLimitConfig caps outbound webhook posts to Requests per Per.
// Zero Requests means no limit.
type RateLimitConfig struct {
	Requests int           `json:"requests" yaml:"requests"`
	Per      time.Duration `json:"per" yaml:"per"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file" yaml:"file"`
}

// ForwardConfig configures the mail provider used for mailto: destinations.
type ForwardConfig struct {
	Provider string      `json:"provider" yaml:"provider"`
	SES      SESConfig   `json:"ses" yaml:"ses"`
	Graph    GraphConfig `json:"graph" yaml:"graph"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"accessKeyId" yaml:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey" yaml:"secretAccessKey"`
	Sender          string `json:"sender" yaml:"sender"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `json:"tenantId" yaml:"tenantId"`
	ClientID     string `json:"clientId" yaml:"clientId"`
	ClientSecret string `json:"clientSecret" yaml:"clientSecret"`
	Sender       string `json:"sender" yaml:"sender"`
}

// LoadFromFile loads configuration from a JSON or YAML file, then overrides
// it with environment variables and validates the result. A missing or
// malformed file is an error; no default routing is ever synthesized.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override file values
	cfg.applyEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// decode reads .json files as JSON and everything else as YAML.
func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// UnmarshalJSON decodes the settings file, accepting durations as strings
// such as "5m".
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		*plain
		PollInterval *duration `json:"pollInterval"`
		HTTPTimeout  *duration `json:"httpTimeout"`
	}{
		plain:        (*plain)(c),
		PollInterval: (*duration)(&c.PollInterval),
		HTTPTimeout:  (*duration)(&c.HTTPTimeout),
	}
	return json.Unmarshal(data, &aux)
}

// UnmarshalJSON decodes a rate limit with its period as a duration string.
func (r *RateLimitConfig) UnmarshalJSON(data []byte) error {
	type plain RateLimitConfig
	aux := struct {
		*plain
		Per *duration `json:"per"`
	}{
		plain: (*plain)(r),
		Per:   (*duration)(&r.Per),
	}
	return json.Unmarshal(data, &aux)
}

// duration is a time.Duration written in JSON as a string ("30s") or as a
// number of nanoseconds, the same forms yaml.v3 accepts.
type duration time.Duration

func (d *duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = duration(v)
		return nil
	}

	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = duration(n)
	return nil
}

// Validate checks that the configuration is complete enough to run.
func (c *Config) Validate() error {
	var errs []error

	if c.IMAPServer == "" {
		errs = append(errs, errors.New("imapServer is required"))
	}
	if c.IMAPPort < 1 || c.IMAPPort > 65535 {
		errs = append(errs, fmt.Errorf("imapPort %d out of range", c.IMAPPort))
	}
	if c.EmailUserName == "" {
		errs = append(errs, errors.New("emailUserName is required"))
	}
	switch c.IMAPSecurity {
	case SecurityTLS, SecurityStartTLS:
	default:
		errs = append(errs, fmt.Errorf("unknown imapSecurity %q", c.IMAPSecurity))
	}
	if c.DefaultWebhookURL == "" {
		errs = append(errs, errors.New("defaultWebhookURL is required"))
	} else if err := checkDestination(c.DefaultWebhookURL); err != nil {
		errs = append(errs, fmt.Errorf("defaultWebhookURL: %w", err))
	}

	for i, sender := range c.EmailAccepts {
		if strings.TrimSpace(sender.EmailAddress) == "" {
			errs = append(errs, fmt.Errorf("emailAccepts[%d]: emailAddress is required", i))
		}
		for j, entry := range sender.Data {
			if entry.SubjectShort == "" {
				errs = append(errs, fmt.Errorf("emailAccepts[%d].data[%d]: subjectShort is required", i, j))
			}
			if err := checkDestination(entry.WebhookURL); err != nil {
				errs = append(errs, fmt.Errorf("emailAccepts[%d].data[%d]: %w", i, j, err))
			}
		}
	}

	if c.WebhookRateLimit.Requests < 0 {
		errs = append(errs, fmt.Errorf("webhookRateLimit.requests %d is negative", c.WebhookRateLimit.Requests))
	}
	if c.WebhookRateLimit.Requests > 0 && c.WebhookRateLimit.Per <= 0 {
		errs = append(errs, errors.New("webhookRateLimit.per must be positive"))
	}

	switch c.Forward.Provider {
	case "":
		if c.usesMailto() {
			errs = append(errs, errors.New("mailto: destinations need forward.provider"))
		}
	case ForwardSES:
		if !c.SESConfigured() {
			errs = append(errs, errors.New("forward.ses.region and forward.ses.sender are required"))
		}
	case ForwardGraph:
		if !c.GraphConfigured() {
			errs = append(errs, errors.New("forward.graph tenantId, clientId, clientSecret and sender are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown forward.provider %q", c.Forward.Provider))
	}

	return errors.Join(errs...)
}

// Addr returns the IMAP server address in host:port form.
func (c *Config) Addr() string {
	return c.IMAPServer + ":" + strconv.Itoa(c.IMAPPort)
}

// SESConfigured returns true if the SES region and sender are set.
func (c *Config) SESConfigured() bool {
	return c.Forward.SES.Region != "" && c.Forward.SES.Sender != ""
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Forward.Graph.TenantID != "" &&
		c.Forward.Graph.ClientID != "" &&
		c.Forward.Graph.ClientSecret != "" &&
		c.Forward.Graph.Sender != ""
}

func (c *Config) usesMailto() bool {
	if strings.HasPrefix(c.DefaultWebhookURL, "mailto:") {
		return true
	}
	for _, sender := range c.EmailAccepts {
		for _, entry := range sender.Data {
			if strings.HasPrefix(entry.WebhookURL, "mailto:") {
				return true
			}
		}
	}
	return false
}

// checkDestination accepts http(s) URLs and mailto: addresses.
func checkDestination(raw string) error {
	if raw == "" {
		return errors.New("webhookURL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid destination %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("destination %q has no host", raw)
		}
	case "mailto":
		if u.Opaque == "" {
			return fmt.Errorf("destination %q has no address", raw)
		}
	default:
		return fmt.Errorf("destination %q: unsupported scheme %q", raw, u.Scheme)
	}
	return nil
}

// applyDefaults sets default values for the optional fields.
func (c *Config) applyDefaults() {
	c.IMAPPort = defaultIMAPPort
	c.IMAPSecurity = SecurityTLS
	c.IMAPMailbox = defaultMailbox
	c.AttachmentDir = "."
	c.HTTPTimeout = defaultHTTPTimeout
	c.FooterText = defaultFooterText
	c.Logging.Level = "info"
	c.Logging.File = defaultLogFile
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("IMAP_SERVER"); v != "" {
		c.IMAPServer = v
	}
	if v := os.Getenv("IMAP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.IMAPPort = port
		}
	}
	if v := os.Getenv("IMAP_USERNAME"); v != "" {
		c.EmailUserName = v
	}
	if v := os.Getenv("IMAP_PASSWORD"); v != "" {
		c.EmailPW = v
	}
	if v := os.Getenv("IMAP_SECURITY"); v != "" {
		c.IMAPSecurity = strings.ToLower(v)
	}
	if v := os.Getenv("DEFAULT_WEBHOOK_URL"); v != "" {
		c.DefaultWebhookURL = v
	}
	if v := os.Getenv("ATTACHMENT_DIR"); v != "" {
		c.AttachmentDir = v
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PollInterval = d
		}
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DryRun = b
		}
	}

	if v := os.Getenv("FORWARD_PROVIDER"); v != "" {
		c.Forward.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("SES_REGION"); v != "" {
		c.Forward.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.Forward.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.Forward.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.Forward.SES.Sender = v
	}
	if v := os.Getenv("GRAPH_TENANT_ID"); v != "" {
		c.Forward.Graph.TenantID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
		c.Forward.Graph.ClientID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_SECRET"); v != "" {
		c.Forward.Graph.ClientSecret = v
	}
	if v := os.Getenv("GRAPH_SENDER"); v != "" {
		c.Forward.Graph.Sender = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}
