package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mbd888/payguard/internal/idgen"
	"github.com/mbd888/payguard/internal/logging"
	"github.com/mbd888/payguard/internal/metrics"
	"github.com/mbd888/payguard/internal/traces"
	"github.com/mbd888/payguard/internal/validation"
)

// Service orchestrates guarded direct payments against the execution backend.
type Service struct {
	client Client
	logger *slog.Logger
}

// NewService creates the payment service.
func NewService(client Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, logger: logger}
}

// validate checks the request shape. The amount must be a positive decimal
// string; currency defaults to USD.
func validate(req *Request) validation.ValidationErrors {
	if req.Currency == "" {
		req.Currency = "USD"
	}
	return validation.Validate(
		validation.Required("from_wallet_id", req.FromWalletID),
		validation.Required("to_address", req.ToAddress),
		validation.Required("amount", req.Amount),
		validation.ValidAmount("amount", req.Amount),
		validation.MaxLength("currency", req.Currency, 10),
	)
}

// Pay runs the guarded flow: validate, wallet policy, simulate, execute.
// No backend call happens before validation and policy pass, and no retry
// happens after any failure.
func (s *Service) Pay(ctx context.Context, req Request) (*Receipt, error) {
	ctx, span := traces.StartSpan(ctx, "payments.Pay",
		traces.Flow("direct"),
		traces.Recipient(req.ToAddress),
		traces.Amount(req.Amount),
	)
	defer span.End()

	if errs := validate(&req); len(errs) > 0 {
		metrics.PaymentsTotal.WithLabelValues("direct", "validation_error").Inc()
		return nil, errs
	}

	if validation.IsRawAddress(req.FromWalletID) {
		metrics.PaymentsTotal.WithLabelValues("direct", "wallet_policy").Inc()
		return nil, fmt.Errorf("%w: source wallet %q is a raw address; unattended execution requires a custodial wallet id",
			ErrWalletPolicy, req.FromWalletID)
	}

	// A fresh key per attempt: callers own retry policy, and a retried call
	// is a new attempt with its own key.
	idempotencyKey := idgen.New()

	log := logging.L(ctx)
	log.Info("orchestrating payment",
		"wallet_id", req.FromWalletID,
		"to", req.ToAddress,
		"amount", req.Amount,
		"currency", req.Currency,
		"idempotency_key", idempotencyKey,
	)

	sim, err := s.client.Simulate(ctx, req)
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues("direct", "execution_failed").Inc()
		return nil, &BackendError{Kind: ErrExecutionFailed, Reason: fmt.Sprintf("simulation call: %v", err)}
	}
	if !sim.Passed() {
		metrics.PaymentsTotal.WithLabelValues("direct", "guard_violation").Inc()
		log.Warn("payment simulation rejected", "reason", sim.Reason)
		return nil, &BackendError{Kind: ErrGuardViolation, Reason: sim.Reason}
	}

	tr, err := s.client.Execute(ctx, req, idempotencyKey)
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues("direct", "execution_failed").Inc()
		log.Error("payment execution failed", "error", err)
		return nil, &BackendError{Kind: ErrExecutionFailed, Reason: err.Error()}
	}

	metrics.PaymentsTotal.WithLabelValues("direct", "success").Inc()
	log.Info("payment executed",
		"transfer_id", tr.TransferID,
		"blockchain_tx", tr.BlockchainTx,
	)

	return &Receipt{
		Status:         "success",
		PaymentID:      tr.TransferID,
		TransferID:     tr.TransferID,
		TransactionID:  tr.TransferID,
		BlockchainTx:   tr.BlockchainTx,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Message:        "Payment processed successfully",
		IdempotencyKey: idempotencyKey,
	}, nil
}

// Status looks up a transfer's current state on the backend.
func (s *Service) Status(ctx context.Context, transferID string) (*TransferStatus, error) {
	ctx, span := traces.StartSpan(ctx, "payments.Status", traces.PaymentID(transferID))
	defer span.End()

	return s.client.GetTransferStatus(ctx, transferID)
}
