package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds the configuration for connecting to the payguard API.
type Config struct {
	APIURL   string // Base URL, e.g. "http://localhost:8080"
	UserID   string // Optional user id forwarded for abuse accounting
	WalletID string // Default source wallet for send_payment
}

// PayguardClient is a pure HTTP client for the payguard API.
type PayguardClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewPayguardClient creates a new client for the payguard API.
func NewPayguardClient(cfg Config) *PayguardClient {
	return &PayguardClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *PayguardClient) doRequest(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.UserID != "" {
		req.Header.Set("X-User-Id", c.cfg.UserID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ExecuteIntent submits a signed x402 intent.
func (c *PayguardClient) ExecuteIntent(ctx context.Context, intent map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/payments/intent", intent)
}

// SendPayment runs the guarded direct-payment flow.
func (c *PayguardClient) SendPayment(ctx context.Context, fromWalletID, toAddress, amount, currency, destinationChain string) (json.RawMessage, error) {
	body := map[string]string{
		"from_wallet_id": fromWalletID,
		"to_address":     toAddress,
		"amount":         amount,
	}
	if currency != "" {
		body["currency"] = currency
	}
	if destinationChain != "" {
		body["destination_chain"] = destinationChain
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/payments", body)
}

// GetPaymentStatus looks up a transfer's current state.
func (c *PayguardClient) GetPaymentStatus(ctx context.Context, transferID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(transferID), nil)
}
