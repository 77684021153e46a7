package intent

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/payguard/internal/nonce"
	"github.com/mbd888/payguard/internal/payments"
	"github.com/mbd888/payguard/internal/validation"
)

func testVerifier(expectedSigner string) *Verifier {
	return NewVerifier(VerifierConfig{
		DomainName:     "OmniAgentPay",
		DomainVersion:  "1",
		ChainID:        5042002,
		ExpectedSigner: expectedSigner,
	})
}

// signIntent signs the intent's EIP-712 digest and fills the Signature field.
func signIntent(t *testing.T, v *Verifier, it *SignedIntent, key *ecdsa.PrivateKey) {
	t.Helper()

	digest, err := v.SigningHash(it)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)
	sig[64] += 27

	it.Signature = "0x" + hex.EncodeToString(sig)
}

func testIntent() SignedIntent {
	return SignedIntent{
		IntentID:  "intent-001",
		FromAgent: "wallet-7f3a",
		To:        "0x1111111111111111111111111111111111111111",
		Amount:    "10.50",
		Currency:  "USD",
		ExpiresAt: time.Now().Add(5 * time.Minute).Unix(),
		Nonce:     "nonce-001",
	}
}

type fakeExec struct {
	transfer   *payments.Transfer
	executeErr error
	calls      atomic.Int32
}

func (f *fakeExec) Simulate(_ context.Context, _ payments.Request) (*payments.Simulation, error) {
	return &payments.Simulation{Status: "success", ValidationPassed: true}, nil
}

func (f *fakeExec) Execute(_ context.Context, _ payments.Request, _ string) (*payments.Transfer, error) {
	f.calls.Add(1)
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	return f.transfer, nil
}

func (f *fakeExec) GetTransferStatus(_ context.Context, _ string) (*payments.TransferStatus, error) {
	return nil, payments.ErrNotFound
}

func newTestService(t *testing.T, expectedSigner string) (*Service, *fakeExec) {
	t.Helper()
	client := &fakeExec{
		transfer: &payments.Transfer{TransferID: "tr_x402_1", Status: "complete", BlockchainTx: "0xdead"},
	}
	svc := NewService(
		testVerifier(expectedSigner),
		nonce.NewCache(nonce.NewMemoryStore(), time.Hour, 0, nil),
		client,
		"https://testnet.arcscan.app",
		slog.Default(),
	)
	return svc, client
}

func TestVerifyRecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	v := testVerifier(addr)
	it := testIntent()
	signIntent(t, v, &it, key)

	recovered, err := v.Verify(&it)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	v := testVerifier("0x9999999999999999999999999999999999999999")
	it := testIntent()
	signIntent(t, v, &it, key)

	_, err = v.Verify(&it)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyRejectsTamperedIntent(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	v := testVerifier(addr)
	it := testIntent()
	signIntent(t, v, &it, key)

	// The signature binds every message field.
	it.Amount = "999999"

	_, err = v.Verify(&it)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	v := testVerifier("")
	it := testIntent()

	it.Signature = "not-hex"
	_, err := v.Verify(&it)
	require.ErrorIs(t, err, ErrSignatureInvalid)

	it.Signature = "0xabcd" // too short
	_, err = v.Verify(&it)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyAnySignerWhenUnconfigured(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	v := testVerifier("")
	it := testIntent()
	signIntent(t, v, &it, key)

	recovered, err := v.Verify(&it)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), recovered)
}

func TestFingerprint(t *testing.T) {
	it := testIntent()
	sum := sha256.Sum256([]byte("intent-001:wallet-7f3a:0x1111111111111111111111111111111111111111:10.50:nonce-001"))
	assert.Equal(t, hex.EncodeToString(sum[:]), it.Fingerprint())
}

func TestExecuteSuccess(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	svc, client := newTestService(t, addr)
	it := testIntent()
	signIntent(t, svc.verifier, &it, key)

	receipt, err := svc.Execute(context.Background(), it)
	require.NoError(t, err)

	assert.Equal(t, "success", receipt.Status)
	assert.Equal(t, "intent-001", receipt.IntentID)
	assert.Equal(t, it.Fingerprint(), receipt.IntentHash)
	assert.Equal(t, "tr_x402_1", receipt.TxHash)
	assert.Equal(t, "https://testnet.arcscan.app/tx/tr_x402_1", receipt.ExplorerURL)
	assert.Equal(t, "x402", receipt.Mode)
	assert.Equal(t, "wallet-7f3a", receipt.From)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestExecuteMissingFields(t *testing.T) {
	svc, client := newTestService(t, "")

	it := testIntent()
	it.Signature = "" // required

	_, err := svc.Execute(context.Background(), it)
	var verrs validation.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, int32(0), client.calls.Load())
}

func TestExecuteExpiryBoundary(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	expiry := time.Now().Add(time.Minute).Unix()

	t.Run("now equals expiresAt is valid", func(t *testing.T) {
		svc, _ := newTestService(t, addr)
		svc.now = func() time.Time { return time.Unix(expiry, 0) }

		it := testIntent()
		it.ExpiresAt = expiry
		signIntent(t, svc.verifier, &it, key)

		_, err := svc.Execute(context.Background(), it)
		require.NoError(t, err)
	})

	t.Run("one second past is expired", func(t *testing.T) {
		svc, client := newTestService(t, addr)
		svc.now = func() time.Time { return time.Unix(expiry+1, 0) }

		it := testIntent()
		it.ExpiresAt = expiry
		signIntent(t, svc.verifier, &it, key)

		_, err := svc.Execute(context.Background(), it)
		require.ErrorIs(t, err, ErrIntentExpired)
		assert.Equal(t, int32(0), client.calls.Load())
	})
}

func TestExecuteReplayRejected(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	svc, client := newTestService(t, addr)
	it := testIntent()
	signIntent(t, svc.verifier, &it, key)

	_, err = svc.Execute(context.Background(), it)
	require.NoError(t, err)

	// Same intent again: nonce already consumed.
	_, err = svc.Execute(context.Background(), it)
	require.ErrorIs(t, err, nonce.ErrNonceUsed)
	assert.Equal(t, int32(1), client.calls.Load(), "replay must not reach the backend")
}

func TestFailedSignatureDoesNotConsumeNonce(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	svc, _ := newTestService(t, addr)

	// Forged signature from a different key.
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	forged := testIntent()
	signIntent(t, svc.verifier, &forged, otherKey)

	_, err = svc.Execute(context.Background(), forged)
	require.ErrorIs(t, err, ErrSignatureInvalid)

	// The legitimate signer can still use the same nonce.
	genuine := testIntent()
	signIntent(t, svc.verifier, &genuine, key)

	_, err = svc.Execute(context.Background(), genuine)
	require.NoError(t, err)
}

func TestExpiredIntentDoesNotConsumeNonce(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	svc, _ := newTestService(t, addr)

	expired := testIntent()
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	signIntent(t, svc.verifier, &expired, key)

	_, err = svc.Execute(context.Background(), expired)
	require.ErrorIs(t, err, ErrIntentExpired)

	fresh := testIntent()
	signIntent(t, svc.verifier, &fresh, key)

	_, err = svc.Execute(context.Background(), fresh)
	require.NoError(t, err)
}

func TestExecutionFailureBurnsNonce(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	svc, client := newTestService(t, addr)
	client.executeErr = errors.New("backend down")

	it := testIntent()
	signIntent(t, svc.verifier, &it, key)

	_, err = svc.Execute(context.Background(), it)
	require.ErrorIs(t, err, payments.ErrExecutionFailed)

	// The nonce was registered before execution; retrying the same intent
	// is a replay even though execution failed. No automatic retries.
	client.executeErr = nil
	_, err = svc.Execute(context.Background(), it)
	require.ErrorIs(t, err, nonce.ErrNonceUsed)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestConcurrentSameNonce(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	svc, client := newTestService(t, addr)
	it := testIntent()
	signIntent(t, svc.verifier, &it, key)

	const workers = 16
	var successes, replays atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Execute(context.Background(), it)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, nonce.ErrNonceUsed):
				replays.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load(), "exactly one of the racing intents may win")
	assert.Equal(t, int32(workers-1), replays.Load())
	assert.Equal(t, int32(1), client.calls.Load())
}
