package payments

import "context"

// Client is the external payment-execution backend. Implementations must be
// safe for concurrent use; the service holds no locks across these calls.
type Client interface {
	// Simulate asks the backend whether the transfer would succeed. It
	// returns the backend's verdict; a transport or backend fault is an
	// error, a negative verdict is not.
	Simulate(ctx context.Context, req Request) (*Simulation, error)

	// Execute performs the transfer. The idempotency key scopes this single
	// attempt; the backend deduplicates on it.
	Execute(ctx context.Context, req Request, idempotencyKey string) (*Transfer, error)

	// GetTransferStatus looks up a transfer's current state.
	GetTransferStatus(ctx context.Context, transferID string) (*TransferStatus, error)
}
