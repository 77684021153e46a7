package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *PayguardClient
	cfg    Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *PayguardClient, cfg Config) *Handlers {
	return &Handlers{client: client, cfg: cfg}
}

// HandleExecuteX402Payment submits a signed intent.
func (h *Handlers) HandleExecuteX402Payment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	intent := map[string]any{
		"intentId":  req.GetString("intentId", ""),
		"fromAgent": req.GetString("fromAgent", ""),
		"to":        req.GetString("to", ""),
		"amount":    req.GetString("amount", ""),
		"currency":  req.GetString("currency", "USD"),
		"expiresAt": req.GetInt("expiresAt", 0),
		"nonce":     req.GetString("nonce", ""),
		"signature": req.GetString("signature", ""),
	}

	for _, field := range []string{"intentId", "fromAgent", "to", "amount", "nonce", "signature"} {
		if intent[field] == "" {
			return mcp.NewToolResultError(field + " is required"), nil
		}
	}

	raw, err := h.client.ExecuteIntent(ctx, intent)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Intent execution failed: %v", err)), nil
	}

	text, err := formatIntentReceipt(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse receipt: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleSendPayment runs the guarded direct-payment flow.
func (h *Handlers) HandleSendPayment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	toAddress := req.GetString("to_address", "")
	if toAddress == "" {
		return mcp.NewToolResultError("to_address is required"), nil
	}
	amount := req.GetString("amount", "")
	if amount == "" {
		return mcp.NewToolResultError("amount is required"), nil
	}

	fromWalletID := req.GetString("from_wallet_id", h.cfg.WalletID)
	if fromWalletID == "" {
		return mcp.NewToolResultError("from_wallet_id is required (no default wallet configured)"), nil
	}
	currency := req.GetString("currency", "")
	destinationChain := req.GetString("destination_chain", "")

	raw, err := h.client.SendPayment(ctx, fromWalletID, toAddress, amount, currency, destinationChain)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Payment failed: %v", err)), nil
	}

	text, err := formatPaymentReceipt(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse receipt: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleCheckPaymentStatus looks up a transfer's state.
func (h *Handlers) HandleCheckPaymentStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	transferID := req.GetString("transfer_id", "")
	if transferID == "" {
		return mcp.NewToolResultError("transfer_id is required"), nil
	}

	raw, err := h.client.GetPaymentStatus(ctx, transferID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Status lookup failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// --- Formatting helpers ---

func formatIntentReceipt(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("X402 payment executed\n")
	fmt.Fprintf(&sb, "  Intent:   %s\n", getString(m, "intentId"))
	fmt.Fprintf(&sb, "  Amount:   %s %s\n", getString(m, "amount"), getString(m, "currency"))
	fmt.Fprintf(&sb, "  From:     %s\n", getString(m, "from"))
	fmt.Fprintf(&sb, "  To:       %s\n", getString(m, "to"))
	fmt.Fprintf(&sb, "  Tx:       %s\n", getString(m, "txHash"))
	if v := getString(m, "explorerUrl"); v != "" {
		fmt.Fprintf(&sb, "  Explorer: %s\n", v)
	}
	return sb.String(), nil
}

func formatPaymentReceipt(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Payment executed\n")
	fmt.Fprintf(&sb, "  Transfer: %s\n", getString(m, "transfer_id", "payment_id"))
	fmt.Fprintf(&sb, "  Amount:   %s %s\n", getString(m, "amount"), getString(m, "currency"))
	if v := getString(m, "blockchain_tx"); v != "" {
		fmt.Fprintf(&sb, "  Tx:       %s\n", v)
	}
	fmt.Fprintf(&sb, "  Idempotency key: %s\n", getString(m, "idempotency_key"))
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}
