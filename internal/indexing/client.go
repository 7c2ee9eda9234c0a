package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultEndpoint is the URL notification endpoint of the indexing API
	DefaultEndpoint = "https://indexing.googleapis.com/v3/urlNotifications:publish"

	// NotificationTypeUpdated announces that a URL was added or changed
	NotificationTypeUpdated = "URL_UPDATED"

	oauthScope     = "https://www.googleapis.com/auth/indexing"
	oauthGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	tokenLifetime   = time.Hour
	tokenExpirySlop = time.Minute

	maxErrorBodySize = 2048
)

// StatusError reports a non-success HTTP status from the indexing API
// or its token endpoint
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("indexing API returned status %d: %s", e.Code, e.Message)
}

// IsQuotaExceeded reports whether err carries an HTTP 429 status
func IsQuotaExceeded(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusTooManyRequests
}

// Client announces URLs to the external indexing API using a
// service account credential
type Client struct {
	account    *ServiceAccount
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates an indexing API client
func NewClient(account *ServiceAccount, endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		account:    account,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Publish sends a URL_UPDATED notification for the given URL.
// A nil return means the API acknowledged the notification (HTTP 200).
// Non-success statuses are returned as *StatusError so callers can
// distinguish quota exhaustion from terminal failures.
func (c *Client) Publish(ctx context.Context, targetURL string) error {
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"url":  targetURL,
		"type": NotificationTypeUpdated,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("URL notification accepted",
			slog.String("url", targetURL),
			slog.Int("status", resp.StatusCode),
		)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &StatusError{
		Code:    resp.StatusCode,
		Message: strings.TrimSpace(string(body)),
	}
}

// token returns a cached access token, exchanging a fresh signed
// assertion at the credential's token URI when the cache is stale
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySlop)) {
		return c.accessToken, nil
	}

	assertion, err := c.signAssertion()
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", oauthGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return "", &StatusError{
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(string(body)),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	c.logger.Debug("Access token refreshed",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// signAssertion builds the RS256 service account assertion
func (c *Client) signAssertion() (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss":   c.account.ClientEmail,
		"scope": oauthScope,
		"aud":   c.account.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if c.account.PrivateKeyID != "" {
		token.Header["kid"] = c.account.PrivateKeyID
	}

	return token.SignedString(c.account.key)
}
