package intent

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// VerifierConfig binds the EIP-712 domain. Intents signed under a different
// name, version, or chain id recover to a different address and are rejected.
type VerifierConfig struct {
	DomainName    string
	DomainVersion string
	ChainID       int64
	// ExpectedSigner, when set, is the only address whose signatures are
	// accepted. Empty means any well-formed signature passes (the recovered
	// address is still returned for logging).
	ExpectedSigner string
}

// Verifier verifies EIP-712 signatures on payment intents.
type Verifier struct {
	cfg VerifierConfig
}

// NewVerifier creates a verifier for the given domain.
func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{cfg: cfg}
}

// typedData builds the canonical EIP-712 structure for an intent. The field
// set and ordering are fixed by the x402 wire format.
func (v *Verifier) typedData(it *SignedIntent) apitypes.TypedData {
	currency := it.Currency
	if currency == "" {
		currency = "USD"
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"X402Intent": []apitypes.Type{
				{Name: "intentId", Type: "string"},
				{Name: "fromAgent", Type: "string"},
				{Name: "to", Type: "address"},
				{Name: "amount", Type: "string"},
				{Name: "currency", Type: "string"},
				{Name: "expiresAt", Type: "uint256"},
				{Name: "nonce", Type: "string"},
			},
		},
		PrimaryType: "X402Intent",
		Domain: apitypes.TypedDataDomain{
			Name:    v.cfg.DomainName,
			Version: v.cfg.DomainVersion,
			ChainId: math.NewHexOrDecimal256(v.cfg.ChainID),
		},
		Message: apitypes.TypedDataMessage{
			"intentId":  it.IntentID,
			"fromAgent": it.FromAgent,
			"to":        it.To,
			"amount":    it.Amount,
			"currency":  currency,
			"expiresAt": (*math.HexOrDecimal256)(new(big.Int).SetInt64(it.ExpiresAt)),
			"nonce":     it.Nonce,
		},
	}
}

// SigningHash computes the EIP-712 digest a client signs for an intent:
// keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func (v *Verifier) SigningHash(it *SignedIntent) ([]byte, error) {
	td := v.typedData(it)

	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)
	return crypto.Keccak256(rawData), nil
}

// Verify recovers the signing address from the intent's signature and, when
// an expected signer is configured, requires case-insensitive equality.
// Returns the recovered address (0x-prefixed hex).
func (v *Verifier) Verify(it *SignedIntent) (string, error) {
	sigHex := strings.TrimPrefix(it.Signature, "0x")
	signature, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", fmt.Errorf("%w: signature is not hex", ErrSignatureInvalid)
	}
	if len(signature) != 65 {
		return "", fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrSignatureInvalid, len(signature))
	}

	// Ethereum signatures carry v = 27 or 28; recovery expects 0 or 1.
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest, err := v.SigningHash(it)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	pubKeyBytes, err := crypto.Ecrecover(digest, sig)
	if err != nil {
		return "", fmt.Errorf("%w: recover public key: %v", ErrSignatureInvalid, err)
	}
	pubKey, err := crypto.UnmarshalPubkey(pubKeyBytes)
	if err != nil {
		return "", fmt.Errorf("%w: unmarshal public key: %v", ErrSignatureInvalid, err)
	}
	recovered := crypto.PubkeyToAddress(*pubKey).Hex()

	if v.cfg.ExpectedSigner != "" && !strings.EqualFold(recovered, v.cfg.ExpectedSigner) {
		return "", fmt.Errorf("%w: expected signer %s, got %s", ErrSignatureInvalid, v.cfg.ExpectedSigner, recovered)
	}

	return recovered, nil
}
