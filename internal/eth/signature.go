package eth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/zeoauth/core"
)

const signatureLength = crypto.SignatureLength

// Verifier recovers signers of EIP-191 personal messages
type Verifier struct{}

// NewVerifier creates a new personal message verifier
func NewVerifier() *Verifier {
	return &Verifier{}
}

// RecoverSigner returns the checksummed address that signed message.
// It never decides whether that address is the expected one.
func (v *Verifier) RecoverSigner(message, signature string) (string, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return "", err
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrBadSignature, err)
	}

	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// SignPersonal signs message the way wallets do for personal_sign.
// The recovery id is returned in the 27/28 form.
func SignPersonal(message string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}

// decodeSignature accepts r||s||v as hex with or without the 0x prefix
// and returns it with v normalized to 0 or 1
func decodeSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", core.ErrBadSignature)
	}
	if len(sig) != signatureLength {
		return nil, fmt.Errorf("signature must be %d bytes: %w", signatureLength, core.ErrBadSignature)
	}

	v := sig[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, fmt.Errorf("unsupported recovery id %d: %w", sig[crypto.RecoveryIDOffset], core.ErrBadSignature)
	}
	sig[crypto.RecoveryIDOffset] = v

	return sig, nil
}
