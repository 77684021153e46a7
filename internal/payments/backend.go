package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mbd888/payguard/internal/metrics"
)

// BackendConfig holds the configuration for the execution backend.
type BackendConfig struct {
	BaseURL string // e.g. "http://localhost:9090"
	APIKey  string
}

// Backend is an HTTP client for the payment-execution backend.
type Backend struct {
	cfg        BackendConfig
	httpClient *http.Client
}

// NewBackend creates a client for the execution backend.
func NewBackend(cfg BackendConfig) *Backend {
	return &Backend{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var _ Client = (*Backend)(nil)

// backendError is an error response from the backend.
type backendError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the backend and returns the response body.
func (b *Backend) doRequest(ctx context.Context, method, path string, body any) (json.RawMessage, int, error) {
	u, err := url.Parse(b.cfg.BaseURL + path)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid URL: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr backendError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, resp.StatusCode, fmt.Errorf("backend error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, resp.StatusCode, fmt.Errorf("backend error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), resp.StatusCode, nil
}

// Simulate asks the backend for a transfer verdict.
func (b *Backend) Simulate(ctx context.Context, req Request) (*Simulation, error) {
	start := time.Now()
	defer func() {
		metrics.BackendCallDuration.WithLabelValues("simulate").Observe(time.Since(start).Seconds())
	}()

	raw, _, err := b.doRequest(ctx, http.MethodPost, "/v1/transfers/simulate", req)
	if err != nil {
		return nil, err
	}

	var sim Simulation
	if err := json.Unmarshal(raw, &sim); err != nil {
		return nil, fmt.Errorf("decode simulation: %w", err)
	}
	return &sim, nil
}

type executeRequest struct {
	Request
	IdempotencyKey string `json:"idempotency_key"`
}

// Execute performs the transfer.
func (b *Backend) Execute(ctx context.Context, req Request, idempotencyKey string) (*Transfer, error) {
	start := time.Now()
	defer func() {
		metrics.BackendCallDuration.WithLabelValues("execute").Observe(time.Since(start).Seconds())
	}()

	raw, _, err := b.doRequest(ctx, http.MethodPost, "/v1/transfers", executeRequest{
		Request:        req,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	var tr Transfer
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("decode transfer: %w", err)
	}
	return &tr, nil
}

// GetTransferStatus looks up a transfer's current state.
func (b *Backend) GetTransferStatus(ctx context.Context, transferID string) (*TransferStatus, error) {
	start := time.Now()
	defer func() {
		metrics.BackendCallDuration.WithLabelValues("status").Observe(time.Since(start).Seconds())
	}()

	raw, status, err := b.doRequest(ctx, http.MethodGet, "/v1/transfers/"+url.PathEscape(transferID), nil)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, transferID)
		}
		return nil, err
	}

	var ts TransferStatus
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil, fmt.Errorf("decode transfer status: %w", err)
	}
	return &ts, nil
}

// Ping checks backend reachability for health reporting.
func (b *Backend) Ping(ctx context.Context) error {
	_, _, err := b.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}
