package ports

import (
	"context"

	"github.com/layer-3/zeoauth/core"
)

// NonceStore issues and consumes single-use login nonces
type NonceStore interface {
	// Issue creates a fresh nonce for the address.
	// Returns core.ErrInvalidAddress if the address is malformed.
	Issue(ctx context.Context, address string) (core.NonceRecord, error)

	// Consume marks the nonce as used and returns its record.
	// Returns core.ErrNonceNotFound, core.ErrNonceAlreadyUsed or core.ErrNonceExpired
	// when the nonce cannot be consumed. Two concurrent calls for the same
	// nonce never both succeed.
	Consume(ctx context.Context, address, nonce string) (core.NonceRecord, error)
}
