// Package payments implements the guarded direct-payment flow.
//
// Flow:
//  1. Structural validation of the request (amount must be a positive decimal)
//  2. Wallet policy: raw-address source wallets are rejected; unattended
//     execution only accepts custodial wallet ids
//  3. A fresh idempotency key is minted for the attempt
//  4. Mandatory simulation; execution proceeds only on an explicit pass
//  5. Execution, then a receipt with aliased transfer-id fields
//
// Nothing retries. A failed attempt surfaces its error kind to the caller and
// the caller decides what to do next.
package payments

import (
	"errors"
	"fmt"
)

var (
	// ErrWalletPolicy is returned when the source wallet id is a raw
	// blockchain address rather than a custodial wallet id.
	ErrWalletPolicy = errors.New("wallet policy violation")

	// ErrGuardViolation is returned when simulation rejects the payment.
	ErrGuardViolation = errors.New("payment simulation rejected")

	// ErrExecutionFailed is returned when the backend transfer fails.
	ErrExecutionFailed = errors.New("payment execution failed")

	// ErrNotFound is returned when a transfer id is unknown to the backend.
	ErrNotFound = errors.New("payment not found")
)

// Request is a direct payment request.
type Request struct {
	FromWalletID     string `json:"from_wallet_id"`
	ToAddress        string `json:"to_address"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	DestinationChain string `json:"destination_chain,omitempty"`
}

// Simulation is the backend's verdict on whether a transfer would succeed.
type Simulation struct {
	Status           string `json:"status"`
	ValidationPassed bool   `json:"validation_passed"`
	EstimatedFee     string `json:"estimated_fee"`
	Reason           string `json:"reason,omitempty"`
}

// Passed reports whether execution may proceed. Both fields are checked; a
// backend that omits either does not get the benefit of the doubt.
func (s *Simulation) Passed() bool {
	return s.Status == "success" && s.ValidationPassed
}

// Transfer is the backend's record of an executed transfer.
type Transfer struct {
	TransferID   string `json:"transfer_id"`
	Status       string `json:"status"`
	BlockchainTx string `json:"tx_hash"`
	Amount       string `json:"amount"`
}

// TransferStatus is the backend's view of a transfer's lifecycle state.
type TransferStatus struct {
	TransactionID string `json:"transaction_id"`
	State         string `json:"state"`
	BlockchainTx  string `json:"blockchain_tx,omitempty"`
}

// Receipt is the caller-facing result of a successful direct payment. The
// transfer id is repeated under several keys because downstream readers
// disagree on which one to look for.
type Receipt struct {
	Status         string `json:"status"`
	PaymentID      string `json:"payment_id"`
	TransferID     string `json:"transfer_id"`
	TransactionID  string `json:"transaction_id"`
	BlockchainTx   string `json:"blockchain_tx,omitempty"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotency_key"`
}

// BackendError carries the backend's stated reason for a failure alongside
// the local error kind it maps to.
type BackendError struct {
	Kind   error  // ErrGuardViolation or ErrExecutionFailed
	Reason string
}

func (e *BackendError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Reason)
}

func (e *BackendError) Unwrap() error { return e.Kind }
