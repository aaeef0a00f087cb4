package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/zeoauth/challenge"
	"github.com/layer-3/zeoauth/core"
	"github.com/layer-3/zeoauth/internal/eth"
	"github.com/layer-3/zeoauth/internal/logger"
	"github.com/layer-3/zeoauth/ports"
)

const (
	DefaultUpsertTimeout  = 3 * time.Second
	DefaultPublishTimeout = 3 * time.Second
)

// VerifyRequest is a signed challenge submitted by a client
type VerifyRequest struct {
	Message   string
	Signature string

	// Optional. When set it must match the recovered signer.
	Address string

	// Optional, informational only
	ChainID int64
}

// VerifyResult is returned for an authenticated login attempt
type VerifyResult struct {
	Token     string
	ExpiresAt time.Time
	Address   string

	// Nil when the user directory could not be reached
	User *core.User
}

// Profile describes an authenticated caller
type Profile struct {
	Address string
	User    *core.User
}

// AuthService handles authentication business logic
type AuthService struct {
	nonces    ports.NonceStore
	verifier  ports.SignatureVerifier
	tokenizer ports.Tokenizer
	users     ports.UserDirectory
	eventPub  ports.EventPublisher
	codec     *challenge.Codec
	logger    logger.Logger

	upsertTimeout  time.Duration
	publishTimeout time.Duration
	now            func() time.Time
}

// Option configures optional AuthService collaborators
type Option func(*AuthService)

// WithUserDirectory sets the directory notified on every successful login
func WithUserDirectory(users ports.UserDirectory) Option {
	return func(s *AuthService) { s.users = users }
}

// WithEventPublisher sets the publisher notified on every successful login
func WithEventPublisher(eventPub ports.EventPublisher) Option {
	return func(s *AuthService) { s.eventPub = eventPub }
}

// WithCodec sets the challenge message codec
func WithCodec(codec *challenge.Codec) Option {
	return func(s *AuthService) { s.codec = codec }
}

// WithLogger sets the service logger
func WithLogger(l logger.Logger) Option {
	return func(s *AuthService) { s.logger = l }
}

// WithUpsertTimeout bounds the user directory call made after a login
func WithUpsertTimeout(d time.Duration) Option {
	return func(s *AuthService) {
		if d > 0 {
			s.upsertTimeout = d
		}
	}
}

// WithPublishTimeout bounds the login event publication made after a login
func WithPublishTimeout(d time.Duration) Option {
	return func(s *AuthService) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// NewAuthService creates a new authentication service
func NewAuthService(
	nonces ports.NonceStore,
	verifier ports.SignatureVerifier,
	tokenizer ports.Tokenizer,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		nonces:        nonces,
		verifier:      verifier,
		tokenizer:     tokenizer,
		codec:         challenge.NewCodec(challenge.DefaultAppName),
		logger:        logger.NewNoOpLogger(),
		upsertTimeout:  DefaultUpsertTimeout,
		publishTimeout: DefaultPublishTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueChallenge creates a nonce for the address and the message to sign.
// A zero chainID falls back to challenge.DefaultChainID.
func (s *AuthService) IssueChallenge(ctx context.Context, address string, chainID int64) (core.Challenge, error) {
	addr, err := eth.NormalizeAddress(address)
	if err != nil {
		return core.Challenge{}, err
	}

	rec, err := s.nonces.Issue(ctx, addr)
	if err != nil {
		return core.Challenge{}, fmt.Errorf("failed to issue nonce: %w", err)
	}

	s.logger.Debug("nonce issued", "address", rec.Address, "expires_at", rec.ExpiresAt)

	return core.Challenge{
		Address:   rec.Address,
		Nonce:     rec.Nonce,
		Message:   s.codec.Render(rec.Address, chainID, rec.Nonce, rec.IssuedAt),
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Verify authenticates a signed challenge and mints a session token.
// Every failure is terminal, the client has to request a new challenge.
func (s *AuthService) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	nonce, ok := challenge.ExtractNonce(req.Message)
	if !ok {
		return VerifyResult{}, core.ErrNonceNotFoundInMessage
	}

	signer, err := s.verifier.RecoverSigner(req.Message, req.Signature)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to recover signer: %w", err)
	}

	if msgAddr, ok := challenge.ExtractAddress(req.Message); ok && !eth.SameAddress(msgAddr, signer) {
		return VerifyResult{}, core.ErrMessageAddressMismatch
	}

	if req.Address != "" {
		claimed, err := eth.NormalizeAddress(req.Address)
		if err != nil || claimed != signer {
			return VerifyResult{}, core.ErrAddressMismatch
		}
	}

	// Always consume at the recovered address, never at a claimed one
	if _, err := s.nonces.Consume(ctx, signer, nonce); err != nil {
		if errors.Is(err, core.ErrNonceNotFound) ||
			errors.Is(err, core.ErrNonceAlreadyUsed) ||
			errors.Is(err, core.ErrNonceExpired) {
			s.logger.Info("nonce rejected", "address", signer, "reason", err.Error())
			return VerifyResult{}, fmt.Errorf("%w: %v", core.ErrNonceInvalidOrExpired, err)
		}
		return VerifyResult{}, fmt.Errorf("failed to consume nonce: %w", err)
	}

	loginAt := s.now()
	user := s.upsertUser(ctx, signer, loginAt)

	token, claims, err := s.tokenizer.Mint(signer)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to mint session token: %w", err)
	}

	s.publishLogin(ctx, signer, claims.ID, loginAt)

	s.logger.Info("wallet authenticated", "address", signer, "chain_id", req.ChainID)

	return VerifyResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		Address:   signer,
		User:      user,
	}, nil
}

// Authenticate returns the address a session token was minted for.
// Any validation failure is reported as core.ErrUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := s.tokenizer.Validate(token)
	if err != nil {
		s.logger.Debug("session token rejected", "error", err.Error())
		return "", core.ErrUnauthorized
	}
	return claims.Subject, nil
}

// Profile returns what is known about an authenticated address
func (s *AuthService) Profile(ctx context.Context, address string) (Profile, error) {
	profile := Profile{Address: address}
	if s.users == nil {
		return profile, nil
	}

	user, err := s.users.GetUser(ctx, address)
	switch {
	case err == nil:
		profile.User = &user
	case errors.Is(err, core.ErrUserNotFound):
	default:
		return Profile{}, fmt.Errorf("failed to load user: %w", err)
	}

	return profile, nil
}

// upsertUser notifies the user directory. A failure here never undoes a
// verified login, it is only logged.
func (s *AuthService) upsertUser(ctx context.Context, address string, loginAt time.Time) *core.User {
	if s.users == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.upsertTimeout)
	defer cancel()

	user, err := s.users.UpsertUser(ctx, address, loginAt)
	if err != nil {
		if !errors.Is(err, core.ErrCollaboratorUnavailable) {
			err = fmt.Errorf("%w: %v", core.ErrCollaboratorUnavailable, err)
		}
		s.logger.Warn("failed to upsert user", "address", address, "error", err.Error())
		return nil
	}

	return &user
}

// publishLogin announces a login. Like the upsert it is bounded and never
// fails the login.
func (s *AuthService) publishLogin(ctx context.Context, address, tokenID string, at time.Time) {
	if s.eventPub == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	if err := s.eventPub.PublishLogin(ctx, address, tokenID, at); err != nil {
		s.logger.Warn("failed to publish login event", "address", address, "error", err.Error())
	}
}
