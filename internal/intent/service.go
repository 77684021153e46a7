package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/payguard/internal/idgen"
	"github.com/mbd888/payguard/internal/logging"
	"github.com/mbd888/payguard/internal/metrics"
	"github.com/mbd888/payguard/internal/nonce"
	"github.com/mbd888/payguard/internal/payments"
	"github.com/mbd888/payguard/internal/traces"
	"github.com/mbd888/payguard/internal/validation"
)

// Service runs the intent pipeline: verify, expiry, nonce, execute.
type Service struct {
	verifier    *Verifier
	nonces      *nonce.Cache
	client      payments.Client
	explorerURL string // base, e.g. "https://testnet.arcscan.app"
	logger      *slog.Logger

	// now is swappable for boundary tests.
	now func() time.Time
}

// NewService creates the intent service.
func NewService(verifier *Verifier, nonces *nonce.Cache, client payments.Client, explorerURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		verifier:    verifier,
		nonces:      nonces,
		client:      client,
		explorerURL: explorerURL,
		logger:      logger,
		now:         time.Now,
	}
}

// validate checks required fields. Currency is optional and defaults to USD.
func validate(it *SignedIntent) validation.ValidationErrors {
	if it.Currency == "" {
		it.Currency = "USD"
	}
	errs := validation.Validate(
		validation.Required("intentId", it.IntentID),
		validation.Required("fromAgent", it.FromAgent),
		validation.Required("to", it.To),
		validation.Required("amount", it.Amount),
		validation.ValidAmount("amount", it.Amount),
		validation.Required("nonce", it.Nonce),
		validation.Required("signature", it.Signature),
	)
	if it.ExpiresAt <= 0 {
		errs = append(errs, validation.ValidationError{Field: "expiresAt", Message: "is required"})
	}
	return errs
}

// Execute runs the full pipeline for one signed intent. The checks run in a
// fixed order and the first failure is terminal; in particular the nonce is
// registered only after signature and expiry pass, and execution failure does
// not release it.
func (s *Service) Execute(ctx context.Context, it SignedIntent) (*Receipt, error) {
	ctx, span := traces.StartSpan(ctx, "intent.Execute",
		traces.Flow("x402"),
		traces.IntentID(it.IntentID),
		traces.Amount(it.Amount),
	)
	defer span.End()

	log := logging.L(ctx).With("intent_id", it.IntentID)

	if errs := validate(&it); len(errs) > 0 {
		metrics.PaymentsTotal.WithLabelValues("x402", "validation_error").Inc()
		return nil, errs
	}

	signer, err := s.verifier.Verify(&it)
	if err != nil {
		metrics.IntentChecksTotal.WithLabelValues("signature", "fail").Inc()
		metrics.PaymentsTotal.WithLabelValues("x402", "signature_invalid").Inc()
		log.Warn("intent signature rejected", "error", err)
		return nil, err
	}
	metrics.IntentChecksTotal.WithLabelValues("signature", "ok").Inc()

	// Boundary: now == expiresAt is still valid.
	if now := s.now().Unix(); now > it.ExpiresAt {
		metrics.IntentChecksTotal.WithLabelValues("expiry", "fail").Inc()
		metrics.PaymentsTotal.WithLabelValues("x402", "expired").Inc()
		return nil, fmt.Errorf("%w: expired at %d, current time %d", ErrIntentExpired, it.ExpiresAt, now)
	}
	metrics.IntentChecksTotal.WithLabelValues("expiry", "ok").Inc()

	if err := s.nonces.Register(ctx, it.Nonce); err != nil {
		if errors.Is(err, nonce.ErrNonceUsed) {
			metrics.IntentChecksTotal.WithLabelValues("nonce", "fail").Inc()
			metrics.PaymentsTotal.WithLabelValues("x402", "nonce_replayed").Inc()
			log.Warn("intent nonce replayed", "nonce", it.Nonce)
			return nil, fmt.Errorf("%w: nonce %s", err, it.Nonce)
		}
		metrics.PaymentsTotal.WithLabelValues("x402", "internal_error").Inc()
		return nil, fmt.Errorf("register nonce: %w", err)
	}
	metrics.IntentChecksTotal.WithLabelValues("nonce", "ok").Inc()

	log.Info("intent checks passed",
		"signer", signer,
		"from", it.FromAgent,
		"to", it.To,
		"amount", it.Amount,
	)

	tr, err := s.client.Execute(ctx, payments.Request{
		FromWalletID: it.FromAgent,
		ToAddress:    it.To,
		Amount:       it.Amount,
		Currency:     it.Currency,
	}, idgen.New())
	if err != nil {
		metrics.IntentChecksTotal.WithLabelValues("execute", "fail").Inc()
		metrics.PaymentsTotal.WithLabelValues("x402", "execution_failed").Inc()
		log.Error("intent execution failed", "error", err)
		return nil, &payments.BackendError{Kind: payments.ErrExecutionFailed, Reason: err.Error()}
	}
	metrics.IntentChecksTotal.WithLabelValues("execute", "ok").Inc()
	metrics.PaymentsTotal.WithLabelValues("x402", "success").Inc()

	txHash := tr.TransferID
	log.Info("intent executed", "tx_hash", txHash)

	return &Receipt{
		Status:      "success",
		IntentID:    it.IntentID,
		IntentHash:  it.Fingerprint(),
		TxHash:      txHash,
		ExplorerURL: s.explorerURL + "/tx/" + txHash,
		Amount:      it.Amount,
		Currency:    it.Currency,
		From:        it.FromAgent,
		To:          it.To,
		Mode:        "x402",
		Message:     "X402 gasless payment executed successfully",
	}, nil
}
