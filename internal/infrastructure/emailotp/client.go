// Package emailotp is a client for the remote email one-time-code service.
package emailotp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/medconnect-auth/internal/domain"
)

const (
	actionSend   = "send_otp"
	actionVerify = "verify_otp"
)

type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewClient(url, apiKey string) *Client {
	return &Client{url: url, apiKey: apiKey, httpClient: &http.Client{Timeout: 15 * time.Second}}
}

type request struct {
	Action string `json:"action"`
	Email  string `json:"email"`
	OTP    string `json:"otp,omitempty"`
}

type response struct {
	Success bool   `json:"success"`
	Session string `json:"session,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (c *Client) Send(ctx context.Context, email string) error {
	resp, err := c.call(ctx, request{Action: actionSend, Email: email})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("email otp send rejected: %s", resp.Error)
	}
	return nil
}

// Verify returns the session the service hands back for a correct code.
func (c *Client) Verify(ctx context.Context, email, code string) (string, error) {
	resp, err := c.call(ctx, request{Action: actionVerify, Email: email, OTP: code})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrChannelDelivery, err)
	}
	if !resp.Success {
		if strings.Contains(strings.ToLower(resp.Error), "expired") {
			return "", domain.ErrCodeExpired
		}
		return "", domain.ErrInvalidCode
	}
	return resp.Session, nil
}

func (c *Client) call(ctx context.Context, body request) (*response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 500 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<12))
		return nil, fmt.Errorf("email otp: status=%d body=%s", res.StatusCode, string(b))
	}
	var out response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("email otp: decode response: %w", err)
	}
	return &out, nil
}
