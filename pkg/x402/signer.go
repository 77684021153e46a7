package x402

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Domain binds signatures to one Payguard deployment. Values must match the
// service's configuration or verification fails.
type Domain struct {
	Name    string
	Version string
	ChainID int64
}

// Signer signs intents with an agent's private key.
type Signer struct {
	key    *ecdsa.PrivateKey
	domain Domain
}

// NewSigner creates a signer from a hex-encoded private key.
func NewSigner(privateKeyHex string, domain Domain) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{key: key, domain: domain}, nil
}

// NewSignerFromKey creates a signer from an existing key.
func NewSignerFromKey(key *ecdsa.PrivateKey, domain Domain) *Signer {
	return &Signer{key: key, domain: domain}
}

// Address returns the signer's 0x-prefixed address.
func (s *Signer) Address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

// Sign computes the EIP-712 digest for the intent and fills its Signature
// field with the 65-byte signature (v = 27/28) as 0x-prefixed hex.
func (s *Signer) Sign(it *Intent) error {
	digest, err := signingHash(it, s.domain)
	if err != nil {
		return err
	}

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return fmt.Errorf("sign intent: %w", err)
	}
	sig[64] += 27

	it.Signature = "0x" + hex.EncodeToString(sig)
	return nil
}

// signingHash computes keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
// The field set and ordering are fixed by the x402 wire format.
func signingHash(it *Intent, domain Domain) ([]byte, error) {
	currency := it.Currency
	if currency == "" {
		currency = "USD"
	}

	td := apitypes.TypedData{
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
			Name:    domain.Name,
			Version: domain.Version,
			ChainId: math.NewHexOrDecimal256(domain.ChainID),
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
