// Package intent implements the x402 signed-intent security pipeline.
//
// An intent moves through a fixed sequence, terminal on first failure:
//
//	received -> signature verified -> expiry ok -> nonce registered -> executing -> succeeded|failed
//
// The ordering is load-bearing: a failed signature or expiry check must not
// consume the intent's nonce, so nonce registration happens only after both
// pass. Once registered, a nonce is burned even if execution fails.
package intent

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrSignatureInvalid is returned when the signature is malformed or the
	// recovered signer does not match the configured one.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrIntentExpired is returned when the current time is strictly past
	// expiresAt.
	ErrIntentExpired = errors.New("intent expired")
)

// SignedIntent is an off-chain signed payment authorization. Immutable once
// received; field names follow the x402 wire format.
type SignedIntent struct {
	IntentID  string `json:"intentId"`
	FromAgent string `json:"fromAgent"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	ExpiresAt int64  `json:"expiresAt"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// Fingerprint computes the deterministic intent digest used for tracking and
// correlation. It is not a security control; the signature is.
func (it *SignedIntent) Fingerprint() string {
	s := fmt.Sprintf("%s:%s:%s:%s:%s", it.IntentID, it.FromAgent, it.To, it.Amount, it.Nonce)
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Receipt is the caller-facing result of a successfully executed intent.
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
