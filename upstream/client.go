// Package upstream is the HTTP client for the external identity provider.
// The provider owns credentials, token minting, and signature validation;
// this engine treats it as an opaque service speaking a three-endpoint JSON
// protocol: POST /auth/login, POST /auth/refresh, POST /auth/logout.
//
// Provider-reported failures are the one error class the engine propagates
// verbatim to callers, carried as [Error] with the original status and
// detail.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Grant is a successful authentication result from the provider. Expiries
// are absolute epoch seconds.
type Grant struct {
	Success      bool   `json:"success"`
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	AccessExp    int64  `json:"access_exp"`
	RefreshExp   int64  `json:"refresh_exp"`
}

// Error carries a provider-reported failure verbatim.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream: status %d: %s", e.Status, e.Detail)
}

// ErrUnreachable indicates the provider could not be reached at all, as
// opposed to the provider answering with a failure status.
var ErrUnreachable = errors.New("upstream: identity provider unreachable")

// Client talks to one identity provider instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a provider client. timeout bounds each request on top of
// whatever deadline the caller context carries.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Login exchanges credentials for a token grant.
func (c *Client) Login(ctx context.Context, username, password string) (*Grant, error) {
	return c.grantRequest(ctx, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
}

// Refresh exchanges a refresh token for a fresh grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	return c.grantRequest(ctx, "/auth/refresh", nil, map[string]string{
		"Authorization": "Bearer " + refreshToken,
	})
}

// Logout tells the provider to end the session behind accessToken. A 200
// means the provider accepted the logout; anything else is returned as a
// provider [Error].
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	resp, err := c.post(ctx, "/auth/logout", nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

func (c *Client) grantRequest(ctx context.Context, path string, body map[string]string, headers map[string]string) (*Grant, error) {
	resp, err := c.post(ctx, path, body, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var grant Grant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnreachable, err)
	}
	if !grant.Success {
		return nil, &Error{Status: http.StatusUnauthorized, Detail: "authentication rejected"}
	}
	return &grant, nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]string, headers map[string]string) (*http.Response, error) {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Detail string `json:"detail"`
		Err    string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	detail := body.Detail
	if detail == "" {
		detail = body.Err
	}
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	return &Error{Status: resp.StatusCode, Detail: detail}
}
