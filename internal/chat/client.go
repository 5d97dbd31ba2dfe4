package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientConfig holds chat API connection settings.
type ClientConfig struct {
	// BaseURL is the chat server root, e.g. "https://chat.example.org".
	BaseURL string

	// Username and Password authenticate the technical account.
	Username string
	Password string

	// RequestsPerSecond throttles API calls so bulk repair runs do not
	// overload the chat server. Zero disables throttling.
	RequestsPerSecond float64

	HTTPClient *http.Client
}

// Client implements Service against a Rocket.Chat-style REST API.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter

	mu        sync.RWMutex
	authToken string
	userID    string
}

var _ Service = (*Client)(nil)

// csrfToken is the fixed token the chat service expects as a matching
// header/cookie pair on every REST request.
const csrfToken = "test"

// NewClient returns an unauthenticated client; call Login before use.
func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{cfg: cfg, http: hc, limiter: limiter}
}

// UserID implements Service.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Login implements Service.
func (c *Client) Login(ctx context.Context) error {
	var out struct {
		Data struct {
			AuthToken string `json:"authToken"`
			UserID    string `json:"userId"`
		} `json:"data"`
	}
	body := map[string]string{"user": c.cfg.Username, "password": c.cfg.Password}
	if err := c.do(ctx, http.MethodPost, "login", body, nil, &out); err != nil {
		return fmt.Errorf("logging in technical account %q: %w", c.cfg.Username, err)
	}
	if out.Data.AuthToken == "" || out.Data.UserID == "" {
		return fmt.Errorf("login response for %q carried no session", c.cfg.Username)
	}
	c.mu.Lock()
	c.authToken = out.Data.AuthToken
	c.userID = out.Data.UserID
	c.mu.Unlock()
	return nil
}

// Logout implements Service.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.RLock()
	loggedIn := c.authToken != ""
	c.mu.RUnlock()
	if !loggedIn {
		return nil
	}
	if err := c.do(ctx, http.MethodGet, "logout", nil, nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.authToken = ""
	c.userID = ""
	c.mu.Unlock()
	return nil
}

// InviteToRoom implements Service.
func (c *Client) InviteToRoom(ctx context.Context, roomID, userID string) error {
	body := map[string]string{"roomId": roomID, "userId": userID}
	return c.do(ctx, http.MethodPost, "groups.invite", body, nil, nil)
}

// LeaveRoom implements Service.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	body := map[string]string{"roomId": roomID}
	return c.do(ctx, http.MethodPost, "groups.leave", body, nil, nil)
}

// RoomMembers implements Service.
func (c *Client) RoomMembers(ctx context.Context, roomID string) ([]Member, error) {
	q := url.Values{
		"roomId": {roomID},
		"offset": {"0"},
		"count":  {"0"},
	}
	var out struct {
		Members []Member `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, "groups.members", nil, q, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// EraseRoom implements Service.
func (c *Client) EraseRoom(ctx context.Context, roomID string) error {
	body := map[string]string{"roomId": roomID}
	return c.do(ctx, http.MethodPost, "groups.delete", body, nil, nil)
}

// DeleteUser implements Service.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	body := map[string]string{"userId": userID}
	return c.do(ctx, http.MethodPost, "users.delete", body, nil, nil)
}

// envelope is the common part of every chat API response. Some
// endpoints report "success": true, the login endpoint reports
// "status": "success".
type envelope struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
}

func (e envelope) ok() bool {
	return e.Success || e.Status == "success"
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, q url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/api/v1/" + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-TOKEN", csrfToken)
	req.AddCookie(&http.Cookie{Name: "CSRF-TOKEN", Value: csrfToken})
	c.mu.RLock()
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
		req.Header.Set("X-User-Id", c.userID)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat api request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", endpoint, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("%s: unparseable response", endpoint)}
	}
	if resp.StatusCode != http.StatusOK || !env.ok() {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("%s failed", endpoint)
		}
		return &APIError{StatusCode: resp.StatusCode, ErrorType: env.ErrorType, Message: msg}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", endpoint, err)
		}
	}
	return nil
}
