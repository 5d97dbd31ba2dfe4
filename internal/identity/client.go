package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ClientConfig holds the admin API connection settings.
type ClientConfig struct {
	// BaseURL is the server root, e.g. "https://id.example.org/auth".
	BaseURL string

	// Realm scopes all user lookups.
	Realm string

	ClientID string
	Username string
	Password string

	// RefreshInterval is how often the session token is refreshed in the
	// background. The admin token is short-lived, so the default refresh
	// runs just under every minute.
	RefreshInterval time.Duration

	HTTPClient *http.Client
}

// Client implements Provider against a Keycloak-style admin REST API.
// Authentication uses the password grant against the master realm; the
// token is refreshed on a fixed interval by StartRefresh.
type Client struct {
	cfg  ClientConfig
	http *http.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

var _ Provider = (*Client)(nil)

// NewClient returns an unauthenticated client; call Login before use.
func NewClient(cfg ClientConfig) *Client {
	if cfg.ClientID == "" {
		cfg.ClientID = "admin-cli"
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 58 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, http: hc}
}

// Login obtains an admin session via the password grant.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {c.cfg.ClientID},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	}
	return c.token(ctx, form)
}

// Refresh renews the session using the refresh token.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	rt := c.refreshToken
	c.mu.RUnlock()
	if rt == "" {
		return c.Login(ctx)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"refresh_token": {rt},
	}
	return c.token(ctx, form)
}

// StartRefresh renews the session on the configured interval until ctx
// is canceled. Refresh failures are reported to onError and the next
// tick tries again.
func (c *Client) StartRefresh(ctx context.Context, onError func(error)) {
	go func() {
		ticker := time.NewTicker(c.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil && onError != nil {
					onError(err)
				}
			}
		}
	}()
}

func (c *Client) token(ctx context.Context, form url.Values) error {
	endpoint := fmt.Sprintf("%s/realms/master/protocol/openid-connect/token", strings.TrimSuffix(c.cfg.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting admin token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("admin token request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("admin token response contained no access token")
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.refreshToken = tok.RefreshToken
	c.mu.Unlock()
	return nil
}

// Count implements Provider.
func (c *Client) Count(ctx context.Context) (int, error) {
	var count int
	if err := c.get(ctx, "users/count", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListPage implements Provider.
func (c *Client) ListPage(ctx context.Context, first, max int) ([]User, error) {
	q := url.Values{
		"first":               {strconv.Itoa(first)},
		"max":                 {strconv.Itoa(max)},
		"briefRepresentation": {"true"},
	}
	var users []User
	if err := c.get(ctx, "users", q, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FindByUsername implements Provider.
func (c *Client) FindByUsername(ctx context.Context, username string) ([]User, error) {
	q := url.Values{
		"username": {username},
		"exact":    {"true"},
	}
	var users []User
	if err := c.get(ctx, "users", q, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/admin/realms/%s/%s",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.Realm), path)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	c.mu.RLock()
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("identity provider request %s failed: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
