// Package whatsapp is a client for the WhatsApp verification service, which
// issues and checks codes itself.
package whatsapp

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

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type sendRequest struct {
	Phone string `json:"phone"`
}

type verifyRequest struct {
	Phone    string      `json:"phone"`
	Code     string      `json:"code"`
	UserData interface{} `json:"userData,omitempty"`
}

type response struct {
	Success bool   `json:"success"`
	Session string `json:"session,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Send asks the service to deliver a code to phone over WhatsApp.
func (c *Client) Send(ctx context.Context, phone string) error {
	resp, err := c.post(ctx, "/send", sendRequest{Phone: phone})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("whatsapp send rejected: %s", resp.Error)
	}
	return nil
}

// Verify checks code for phone. A rejected code is ErrInvalidCode and a
// phone with nothing outstanding is ErrNoPendingVerification.
// Anything attached with domain.WithUserData is sent as userData.
func (c *Client) Verify(ctx context.Context, phone, code string) (string, error) {
	resp, err := c.post(ctx, "/verify", verifyRequest{Phone: phone, Code: code, UserData: domain.UserData(ctx)})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrChannelDelivery, err)
	}
	if resp.Success {
		return resp.Session, nil
	}
	msg := strings.ToLower(resp.Error)
	switch {
	case strings.Contains(msg, "no pending"), strings.Contains(msg, "not found"):
		return "", fmt.Errorf("whatsapp: %s: %w", resp.Error, domain.ErrNoPendingVerification)
	case strings.Contains(msg, "expired"):
		return "", domain.ErrCodeExpired
	}
	return "", domain.ErrInvalidCode
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	if err != nil {
		return nil, err
	}
	var out response
	if err := json.Unmarshal(b, &out); err != nil {
		if res.StatusCode >= 300 {
			return nil, fmt.Errorf("whatsapp: status=%d body=%s", res.StatusCode, string(b))
		}
		return nil, fmt.Errorf("whatsapp: decode response: %w", err)
	}
	if res.StatusCode >= 500 {
		return nil, fmt.Errorf("whatsapp: status=%d error=%s", res.StatusCode, out.Error)
	}
	return &out, nil
}
