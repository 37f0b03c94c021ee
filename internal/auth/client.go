package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// Client exchanges app credentials against the gateway's OAuth endpoints.
// Two independent secrets come out of it: a bearer token for REST calls and
// the ephemeral approval key required to open the realtime WebSocket.
type Client struct {
	baseURL    string
	appKey     string
	appSecret  string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a credential-exchange client.
func NewClient(baseURL, appKey, appSecret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   baseURL,
		appKey:    appKey,
		appSecret: appSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// APIError represents an error response from the credential endpoints.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type approvalResponse struct {
	ApprovalKey string `json:"approval_key"`
}

// FetchAccessToken exchanges the app key/secret for a REST bearer token.
func (c *Client) FetchAccessToken(ctx context.Context) (string, error) {
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.appKey,
		"appsecret":  c.appSecret,
	}

	var resp tokenResponse
	if err := c.post(ctx, "/oauth2/tokenP", body, &resp); err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("token exchange: response missing access_token")
	}

	c.logger.Info("access token obtained")
	return resp.AccessToken, nil
}

// FetchApprovalKey exchanges the app key/secret for a WebSocket approval
// key. The approval endpoint names the secret field differently from the
// token endpoint.
func (c *Client) FetchApprovalKey(ctx context.Context) (string, error) {
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.appKey,
		"secretkey":  c.appSecret,
	}

	var resp approvalResponse
	if err := c.post(ctx, "/oauth2/Approval", body, &resp); err != nil {
		return "", fmt.Errorf("approval exchange: %w", err)
	}
	if resp.ApprovalKey == "" {
		return "", fmt.Errorf("approval exchange: response missing approval_key")
	}

	c.logger.Info("approval key obtained")
	return resp.ApprovalKey, nil
}

// RevokeToken invalidates a bearer token upstream. Failures are tolerable:
// the token may already be invalid.
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	body := map[string]string{
		"appkey":    c.appKey,
		"appsecret": c.appSecret,
		"token":     token,
	}

	var resp map[string]any
	if err := c.post(ctx, "/oauth2/revokeP", body, &resp); err != nil {
		return fmt.Errorf("token revoke: %w", err)
	}
	return nil
}

// post performs a JSON POST with bounded retry and jittered backoff.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			c.logger.Debug("retrying credential request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		err := c.doPost(ctx, path, payload, result)
		if err == nil {
			return nil
		}

		lastErr = err

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.IsRetryable() {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doPost(ctx context.Context, path string, payload []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
