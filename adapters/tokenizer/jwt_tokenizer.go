package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/layer-3/zeoauth/core"
	"github.com/layer-3/zeoauth/ports"
)

const (
	AudienceSession = "session:access"

	DefaultSessionTTL = 7 * 24 * time.Hour
	MinSecretLength   = 16
)

// Config for the JWT tokenizer
type Config struct {
	// HMAC secret used to sign session tokens, required
	Secret string

	// Session token lifetime, DefaultSessionTTL if zero
	TTL time.Duration
}

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	secret []byte
	ttl    time.Duration
	method jwt.SigningMethod
	now    func() time.Time
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(cfg Config) (*JWTTokenizer, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("secret must be at least %d bytes long", MinSecretLength)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}

	return &JWTTokenizer{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		method: jwt.SigningMethodHS256,
		now:    time.Now,
	}, nil
}

// Mint creates a signed session token for the address
func (j *JWTTokenizer) Mint(address string) (string, core.SessionClaims, error) {
	// JWT numeric dates have second precision
	now := j.now().Truncate(time.Second)
	session := core.SessionClaims{
		ID:        uuid.NewString(),
		Subject:   address,
		IssuedAt:  now,
		ExpiresAt: now.Add(j.ttl),
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Subject,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		Wallet: address,
	}

	token := jwt.NewWithClaims(j.method, claims)

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return "", core.SessionClaims{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, session, nil
}

// Validate parses the token and checks its signature and expiry
func (j *JWTTokenizer) Validate(tokenStr string) (core.SessionClaims, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithAudience(AudienceSession),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.SessionClaims{}, fmt.Errorf("%w: %v", core.ErrTokenExpired, err)
		}
		return core.SessionClaims{}, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return core.SessionClaims{}, core.ErrInvalidToken
	}

	session := core.SessionClaims{
		ID:        claims.ID,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}

	return session, nil
}
