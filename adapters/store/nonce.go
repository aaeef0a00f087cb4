package store

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

const (
	DefaultNonceTTL       = 10 * time.Minute
	DefaultNonceRetention = time.Hour

	nonceBytes = 16
)

// Config holds nonce lifetimes shared by all store implementations
type Config struct {
	// How long an issued nonce stays consumable
	TTL time.Duration

	// How long a record is kept after it expires, so late attempts are
	// still reported as expired or already used rather than unknown
	Retention time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultNonceTTL
	}
	if c.Retention <= 0 {
		c.Retention = DefaultNonceRetention
	}
	return c
}

// newNonce returns 128 random bits, hex encoded
func newNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
