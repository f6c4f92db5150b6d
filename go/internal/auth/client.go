package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/mcdev12/eduhub/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrUnauthorized is returned when the auth service rejects credentials or a token
var ErrUnauthorized = errors.New("unauthorized")

// ErrInvalidCredentials is returned before any request when a login is missing fields
var ErrInvalidCredentials = errors.New("invalid credentials")

// Client talks to the EduHub authentication service
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewClient creates an auth client for baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// Login exchanges credentials for a session
func (c *Client) Login(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	if creds.Email == "" || creds.Password == "" {
		return nil, fmt.Errorf("email and password are required: %w", ErrInvalidCredentials)
	}

	var session models.Session
	if err := c.do(ctx, http.MethodPost, loginEndpoint, "", creds, &session); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return &session, nil
}

// Logout ends the session identified by token on the server
func (c *Client) Logout(ctx context.Context, token string) error {
	if err := c.do(ctx, http.MethodPost, logoutEndpoint, token, nil, nil); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// StartDemoSession requests a time-limited demo session for role
func (c *Client) StartDemoSession(ctx context.Context, role string) (*models.Session, error) {
	if role == "" {
		role = DefaultDemoRole
	}

	var session models.Session
	if err := c.do(ctx, http.MethodPost, demoEndpoint, "", demoRequest{Role: role}, &session); err != nil {
		return nil, fmt.Errorf("start demo session failed: %w", err)
	}
	// the service may omit the flag on demo endpoints
	session.IsDemo = true
	if session.Role == "" {
		session.Role = role
	}

	log.Info().
		Str("session_id", session.ID).
		Str("role", session.Role).
		Msg("demo session granted")
	return &session, nil
}

// SessionTerminator returns the logout collaborator a demo countdown calls on expiry
func (c *Client) SessionTerminator(session *models.Session) demo.Terminator {
	token := session.Token
	return demo.TerminatorFunc(func(ctx context.Context) error {
		return c.Logout(ctx, token)
	})
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	if out == nil || len(responseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
