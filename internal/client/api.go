// Package client is a Go client for the MindEase authentication API.
// It keeps the session cookie in a cookie jar, so a Client behaves like
// one browser.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/atinyakov/mindease/internal/models"
)

const (
	apiSignup = "/api/auth/signup"
	apiLogin  = "/api/auth/login"
	apiLogout = "/api/auth/logout"
	apiMe     = "/api/auth/me"
)

// FieldError is one invalid field reported by the server.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string       `json:"error"`
	Details []FieldError `json:"details"`
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return fmt.Sprintf("%d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

// Client talks to one MindEase server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for baseURL. When caFile is set, the server
// certificate must chain to that CA.
func New(baseURL, caFile string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA cert")
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: caPool, MinVersion: tls.VersionTLS12}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar, Transport: transport, Timeout: 10 * time.Second},
	}, nil
}

// Signup registers username and leaves the client logged in as that user.
func (c *Client) Signup(ctx context.Context, username, password string) (*models.PublicUser, error) {
	var user models.PublicUser
	if err := c.do(ctx, http.MethodPost, apiSignup, models.Credentials{Username: username, Password: password}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login authenticates the client.
func (c *Client) Login(ctx context.Context, username, password string) (*models.PublicUser, error) {
	var user models.PublicUser
	if err := c.do(ctx, http.MethodPost, apiLogin, models.Credentials{Username: username, Password: password}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout ends the client's session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, apiLogout, nil, nil)
}

// Me returns the user the client is logged in as.
func (c *Client) Me(ctx context.Context) (*models.PublicUser, error) {
	var user models.PublicUser
	if err := c.do(ctx, http.MethodGet, apiMe, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
