package core

import "errors"

// Authentication failures. These are terminal for a login attempt.
var (
	ErrInvalidAddress         = errors.New("invalid ethereum address")
	ErrNonceNotFoundInMessage = errors.New("nonce not found in message")
	ErrBadSignature           = errors.New("bad signature")
	ErrMessageAddressMismatch = errors.New("message address does not match signer")
	ErrAddressMismatch        = errors.New("claimed address does not match signer")
	ErrNonceInvalidOrExpired  = errors.New("nonce invalid or expired")
	ErrInvalidToken           = errors.New("invalid token")
	ErrTokenExpired           = errors.New("token has expired")
	ErrUnauthorized           = errors.New("unauthorized")
)

// Nonce store outcomes
var (
	ErrNonceNotFound    = errors.New("nonce not found")
	ErrNonceAlreadyUsed = errors.New("nonce already used")
	ErrNonceExpired     = errors.New("nonce expired")
	ErrStoreUnavailable = errors.New("nonce store unavailable")
)

// Collaborator failures. They never revoke a verified session.
var (
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrUserNotFound            = errors.New("user not found")
)
