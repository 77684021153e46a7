// Package x402 implements the client side of the x402 payment intent
// protocol. This is the foundation for the Payguard SDK: agents build an
// Intent, sign it under the service's EIP-712 domain, and submit it.
package x402

import (
	"fmt"
	"time"
)

// Intent is a payment intent in its wire form. Signature is filled by a
// Signer before submission.
type Intent struct {
	IntentID  string `json:"intentId"`
	FromAgent string `json:"fromAgent"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	ExpiresAt int64  `json:"expiresAt"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature,omitempty"`
}

// Receipt is returned by the service after a gasless payment executes.
type Receipt struct {
	Status      string `json:"status"`
	IntentID    string `json:"intentId"`
	IntentHash  string `json:"intentHash"`
	TxHash      string `json:"txHash"`
	ExplorerURL string `json:"explorerUrl"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	From        string `json:"from"`
	To          string `json:"to"`
	Mode        string `json:"mode"`
	Message     string `json:"message"`
}

// Error represents an error response from the service.
type Error struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewIntent builds an unsigned intent expiring after validFor.
func NewIntent(intentID, fromAgent, to, amount, currency string, validFor time.Duration, nonce string) *Intent {
	if currency == "" {
		currency = "USD"
	}
	return &Intent{
		IntentID:  intentID,
		FromAgent: fromAgent,
		To:        to,
		Amount:    amount,
		Currency:  currency,
		ExpiresAt: time.Now().Add(validFor).Unix(),
		Nonce:     nonce,
	}
}
