package ports

import "github.com/layer-3/zeoauth/core"

// Tokenizer mints and validates bearer session tokens
type Tokenizer interface {
	Mint(address string) (string, core.SessionClaims, error)

	// Validate returns core.ErrInvalidToken or core.ErrTokenExpired on failure
	Validate(token string) (core.SessionClaims, error)
}

// SignatureVerifier recovers the account that signed a personal message
type SignatureVerifier interface {
	// RecoverSigner returns core.ErrBadSignature if nothing can be recovered
	RecoverSigner(message, signature string) (string, error)
}
