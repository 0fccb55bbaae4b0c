package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shineum/mailhook/internal/email"
)

// GraphProviderConfig holds the configuration for creating a GraphProvider.
type GraphProviderConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
	Timeout      time.Duration
}

// GraphProvider sends forwards as mail from the Sender mailbox, using OAuth2
// client credentials.
type GraphProvider struct {
	sendURL    string
	httpClient *http.Client
	token      *tokenSource
}

// New creates a new GraphProvider with the given configuration.
func New(cfg GraphProviderConfig) *GraphProvider {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	sendURL := fmt.Sprintf(
		"https://graph.microsoft.com/v1.0/users/%s/sendMail",
		url.PathEscape(cfg.Sender),
	)
	return newWithEndpoints(cfg, sendURL, tokenURL, &http.Client{Timeout: cfg.Timeout})
}

// newWithEndpoints creates a GraphProvider against custom URLs, used for testing.
func newWithEndpoints(cfg GraphProviderConfig, sendURL, tokenURL string, client *http.Client) *GraphProvider {
	return &GraphProvider{
		sendURL:    sendURL,
		httpClient: client,
		token:      newTokenSource(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
	}
}

// Send mails fwd to the recipient address to. It does not retry. A 401
// drops the cached token so the next forward authenticates again.
func (g *GraphProvider) Send(ctx context.Context, to string, fwd *email.Forward) error {
	body, err := json.Marshal(buildSendMailRequest(to, fwd))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	token, err := g.token.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	// sendMail answers 202 Accepted on success.
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		slog.Debug("Graph API accepted forward", "to", to)
		return nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		g.token.Invalidate()
	}

	respBody, _ := io.ReadAll(resp.Body)
	sendErr := &sendError{statusCode: resp.StatusCode, message: string(respBody)}

	var errResp errorResponse
	if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
		sendErr.code = errResp.Error.Code
		sendErr.message = errResp.Error.Message
	}
	return sendErr
}

// Name returns the provider name.
func (g *GraphProvider) Name() string {
	return "msgraph"
}

// sendError is a non-success answer from the sendMail endpoint.
type sendError struct {
	statusCode int
	code       string
	message    string
}

func (e *sendError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.statusCode, e.code, e.message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}
