// Package gateway is the editing surface's HTTP client for the payment
// backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/clipswift/internal/domain/apperr"
	"github.com/example/clipswift/internal/domain/checkout"
)

// Client talks to the /create-checkout-session, /verify-payment, /entitlement
// and /health endpoints. Every failure is reported as an apperr.ErrNetwork.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type verifyRequest struct {
	SessionID string `json:"sessionId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Health fails unless the backend answers 200 with status OK.
func (c *Client) Health(ctx context.Context) error {
	var out healthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return err
	}
	if !strings.EqualFold(out.Status, "OK") {
		return fmt.Errorf("%w: backend status %q", apperr.ErrNetwork, out.Status)
	}
	return nil
}

func (c *Client) CreateSession(ctx context.Context, req checkout.SessionRequest) (checkout.Session, error) {
	var out checkout.Session
	if err := c.do(ctx, http.MethodPost, "/create-checkout-session", req, &out); err != nil {
		return checkout.Session{}, err
	}
	if out.ID == "" || out.URL == "" {
		return checkout.Session{}, fmt.Errorf("%w: backend returned an incomplete session", apperr.ErrNetwork)
	}
	return out, nil
}

func (c *Client) Verify(ctx context.Context, sessionID string) (checkout.Verification, error) {
	var out checkout.Verification
	if err := c.do(ctx, http.MethodPost, "/verify-payment", verifyRequest{SessionID: sessionID}, &out); err != nil {
		return checkout.Verification{}, err
	}
	return out, nil
}

// Entitlement asks the backend to read back a stored entitlement token.
func (c *Client) Entitlement(ctx context.Context, token string) (checkout.Grant, error) {
	if token == "" {
		return checkout.Grant{}, fmt.Errorf("%w: no entitlement token", apperr.ErrValidation)
	}
	var out checkout.Grant
	if err := c.doAuth(ctx, http.MethodGet, "/entitlement", token, nil, &out); err != nil {
		return checkout.Grant{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.doAuth(ctx, method, path, "", in, out)
}

func (c *Client) doAuth(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", apperr.ErrNetwork, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", apperr.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%w: %s returned %d: %s", apperr.ErrNetwork, path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("%w: %s returned %d", apperr.ErrNetwork, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", apperr.ErrNetwork, path, err)
	}
	return nil
}
