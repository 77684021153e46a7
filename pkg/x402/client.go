package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client submits signed intents to a Payguard deployment.
type Client struct {
	httpClient *http.Client
	baseURL    string
	signer     *Signer

	// UserID, when set, is forwarded for abuse accounting.
	UserID string
}

// NewClient creates a client for the service at baseURL. The signer may be
// nil if callers submit pre-signed intents.
func NewClient(baseURL string, signer *Signer) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: baseURL,
		signer:  signer,
	}
}

// Execute signs the intent (unless already signed) and submits it. Returns
// the receipt on success; service rejections come back as *Error.
func (c *Client) Execute(ctx context.Context, it *Intent) (*Receipt, error) {
	if it.Signature == "" {
		if c.signer == nil {
			return nil, fmt.Errorf("intent is unsigned and no signer is configured")
		}
		if err := c.signer.Sign(it); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("marshal intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments/intent", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.UserID != "" {
		req.Header.Set("X-User-Id", c.UserID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr Error
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var receipt Receipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}
	return &receipt, nil
}
