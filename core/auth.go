package core

import "time"

// NonceRecord is a single-use login challenge issued to an address
type NonceRecord struct {
	Address   string     // Checksummed address the nonce was issued to
	Nonce     string     // Random value embedded in the challenge message
	IssuedAt  time.Time  // When the nonce was issued
	ExpiresAt time.Time  // When the nonce stops being consumable
	UsedAt    *time.Time // Set once the nonce has been consumed
}

// Consumable reports whether the record may still be consumed at now
func (r NonceRecord) Consumable(now time.Time) bool {
	return r.UsedAt == nil && now.Before(r.ExpiresAt)
}

// Challenge is what a client receives when it asks to sign in
type Challenge struct {
	Address   string
	Nonce     string
	Message   string
	ExpiresAt time.Time
}

// SessionClaims are the claims carried by a bearer session token
type SessionClaims struct {
	ID        string    // Unique token identifier
	Subject   string    // Checksummed address of the authenticated wallet
	IssuedAt  time.Time // When the token was minted
	ExpiresAt time.Time // When the token stops being accepted
}

// User is the user-directory view of an authenticated wallet
type User struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"createdAt"`
	LastLoginAt   time.Time `json:"lastLoginAt"`
}
