package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/zeoauth/adapters/store"
	"github.com/layer-3/zeoauth/adapters/tokenizer"
	"github.com/layer-3/zeoauth/adapters/users"
	"github.com/layer-3/zeoauth/challenge"
	"github.com/layer-3/zeoauth/core"
	"github.com/layer-3/zeoauth/internal/eth"
)

const testSecret = "test-secret-key-0123456789"

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (w wallet) sign(t *testing.T, message string) string {
	sig, err := eth.SignPersonal(message, w.key)
	require.NoError(t, err)
	return sig
}

type recordingPublisher struct {
	mu     sync.Mutex
	logins []string
	err    error
}

func (p *recordingPublisher) PublishLogin(ctx context.Context, address string, tokenID string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logins = append(p.logins, address)
	return p.err
}

// blockingPublisher returns only once the context is done
type blockingPublisher struct{}

func (blockingPublisher) PublishLogin(ctx context.Context, address string, tokenID string, at time.Time) error {
	<-ctx.Done()
	return ctx.Err()
}

// Allow to use a function as user directory upsert
type upsertFunc func(ctx context.Context, address string, loginAt time.Time) (core.User, error)

func (f upsertFunc) UpsertUser(ctx context.Context, address string, loginAt time.Time) (core.User, error) {
	return f(ctx, address, loginAt)
}

func (f upsertFunc) GetUser(ctx context.Context, address string) (core.User, error) {
	return core.User{}, core.ErrUserNotFound
}

func newTestService(t *testing.T, opts ...Option) *AuthService {
	tok, err := tokenizer.NewJWTTokenizer(tokenizer.Config{Secret: testSecret})
	require.NoError(t, err)

	return NewAuthService(
		store.NewMemoryNonceStore(store.Config{}),
		eth.NewVerifier(),
		tok,
		opts...,
	)
}

func TestAuthService_IssueChallenge(t *testing.T) {
	s := newTestService(t)
	w := newWallet(t)

	t.Run("renders message", func(t *testing.T) {
		ch, err := s.IssueChallenge(t.Context(), strings.ToLower(w.address), 137)
		require.NoError(t, err)

		assert.Equal(t, w.address, ch.Address)
		assert.NotEmpty(t, ch.Nonce)
		assert.WithinDuration(t, time.Now().Add(store.DefaultNonceTTL), ch.ExpiresAt, time.Second)
		assert.Contains(t, ch.Message, "\n"+w.address+"\n")
		assert.Contains(t, ch.Message, "Chain ID: 137")
		assert.Contains(t, ch.Message, "Nonce: "+ch.Nonce)
	})

	t.Run("defaults chain id", func(t *testing.T) {
		ch, err := s.IssueChallenge(t.Context(), w.address, 0)
		require.NoError(t, err)

		assert.Contains(t, ch.Message, "Chain ID: 1\n")
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := s.IssueChallenge(t.Context(), "0xnope", 1)

		require.ErrorIs(t, err, core.ErrInvalidAddress)
	})

	t.Run("custom app name", func(t *testing.T) {
		s := newTestService(t, WithCodec(challenge.NewCodec("Tickets")))

		ch, err := s.IssueChallenge(t.Context(), w.address, 1)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(ch.Message, "Tickets wants you to sign in"))
	})
}

func TestAuthService_Verify(t *testing.T) {
	t.Run("login then replay", func(t *testing.T) {
		directory := users.NewMemoryDirectory()
		publisher := &recordingPublisher{}
		s := newTestService(t, WithUserDirectory(directory), WithEventPublisher(publisher))
		w := newWallet(t)

		ch, err := s.IssueChallenge(t.Context(), w.address, 1)
		require.NoError(t, err)
		req := VerifyRequest{Message: ch.Message, Signature: w.sign(t, ch.Message)}

		res, err := s.Verify(t.Context(), req)
		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, w.address, res.Address)
		require.NotNil(t, res.User)
		assert.Equal(t, w.address, res.User.WalletAddress)
		assert.Equal(t, []string{w.address}, publisher.logins)

		address, err := s.Authenticate(t.Context(), res.Token)
		require.NoError(t, err)
		assert.Equal(t, w.address, address)

		_, err = s.Verify(t.Context(), req)
		require.ErrorIs(t, err, core.ErrNonceInvalidOrExpired)
	})

	t.Run("matching claimed address", func(t *testing.T) {
		s := newTestService(t)
		w := newWallet(t)
		ch, err := s.IssueChallenge(t.Context(), w.address, 1)
		require.NoError(t, err)

		res, err := s.Verify(t.Context(), VerifyRequest{
			Message:   ch.Message,
			Signature: w.sign(t, ch.Message),
			Address:   strings.ToLower(w.address),
		})

		require.NoError(t, err)
		assert.Equal(t, w.address, res.Address)
		assert.Nil(t, res.User, "no directory configured")
	})

	t.Run("message address mismatch keeps nonce", func(t *testing.T) {
		s := newTestService(t)
		owner, intruder := newWallet(t), newWallet(t)
		ch, err := s.IssueChallenge(t.Context(), owner.address, 1)
		require.NoError(t, err)

		_, err = s.Verify(t.Context(), VerifyRequest{
			Message:   ch.Message,
			Signature: intruder.sign(t, ch.Message),
			Address:   intruder.address,
		})
		require.ErrorIs(t, err, core.ErrMessageAddressMismatch)

		_, err = s.Verify(t.Context(), VerifyRequest{
			Message:   ch.Message,
			Signature: owner.sign(t, ch.Message),
			Address:   owner.address,
		})
		require.NoError(t, err, "rejected attempt must not consume the nonce")
	})

	t.Run("claimed address mismatch keeps nonce", func(t *testing.T) {
		s := newTestService(t)
		owner, other := newWallet(t), newWallet(t)
		ch, err := s.IssueChallenge(t.Context(), owner.address, 1)
		require.NoError(t, err)
		sig := owner.sign(t, ch.Message)

		_, err = s.Verify(t.Context(), VerifyRequest{Message: ch.Message, Signature: sig, Address: other.address})
		require.ErrorIs(t, err, core.ErrAddressMismatch)

		_, err = s.Verify(t.Context(), VerifyRequest{Message: ch.Message, Signature: sig, Address: "garbage"})
		require.ErrorIs(t, err, core.ErrAddressMismatch)

		_, err = s.Verify(t.Context(), VerifyRequest{Message: ch.Message, Signature: sig})
		require.NoError(t, err)
	})

	t.Run("nonce missing from message", func(t *testing.T) {
		s := newTestService(t)
		w := newWallet(t)
		message := "Sign in to Zeo.\n" + w.address

		_, err := s.Verify(t.Context(), VerifyRequest{Message: message, Signature: w.sign(t, message)})

		require.ErrorIs(t, err, core.ErrNonceNotFoundInMessage)
	})

	t.Run("bad signature", func(t *testing.T) {
		s := newTestService(t)
		w := newWallet(t)
		ch, err := s.IssueChallenge(t.Context(), w.address, 1)
		require.NoError(t, err)

		_, err = s.Verify(t.Context(), VerifyRequest{Message: ch.Message, Signature: "0xdeadbeef"})

		require.ErrorIs(t, err, core.ErrBadSignature)
	})

	t.Run("tampered message", func(t *testing.T) {
		s := newTestService(t)
		w := newWallet(t)
		ch, err := s.IssueChallenge(t.Context(), w.address, 1)
		require.NoError(t, err)
		sig := w.sign(t, ch.Message)

		tampered := strings.Replace(ch.Message, "Chain ID: 1", "Chain ID: 2", 1)
		_, err = s.Verify(t.Context(), VerifyRequest{Message: tampered, Signature: sig})

		require.Error(t, err)
		require.True(t,
			errors.Is(err, core.ErrMessageAddressMismatch) || errors.Is(err, core.ErrBadSignature),
			"unexpected error %v", err,
		)
	})

	t.Run("nonce issued to another address", func(t *testing.T) {
		s := newTestService(t)
		owner, signer := newWallet(t), newWallet(t)
		ch, err := s.IssueChallenge(t.Context(), owner.address, 1)
		require.NoError(t, err)

		// Message without an address line, so only the nonce binding is left
		message := "Nonce: " + ch.Nonce
		_, err = s.Verify(t.Context(), VerifyRequest{Message: message, Signature: signer.sign(t, message)})

		require.ErrorIs(t, err, core.ErrNonceInvalidOrExpired)
	})

	t.Run("expired nonce", func(t *testing.T) {
		tok, err := tokenizer.NewJWTTokenizer(tokenizer.Config{Secret: testSecret})
		require.NoError(t, err)
		s := NewAuthService(store.NewMemoryNonceStore(store.Config{TTL: time.Millisecond}), eth.NewVerifier(), tok)
		w := newWallet(t)
		ch, err := s.IssueChallenge(t.Context(), w.address, 1)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		_, err = s.Verify(t.Context(), VerifyRequest{Message: ch.Message, Signature: w.sign(t, ch.Message)})

		require.ErrorIs(t, err, core.ErrNonceInvalidOrExpired)
	})

	t.Run("directory failure does not block login", func(t *testing.T) {
		publisher := &recordingPublisher{err: errors.New("broker is down")}
		s := newTestService(t,
			WithUserDirectory(upsertFunc(func(ctx context.Context, address string, loginAt time.Time) (core.User, error) {
				return core.User{}, errors.New("connection refused")
			})),
			WithEventPublisher(publisher),
		)
		w := newWallet(t)
		ch, err := s.IssueChallenge(t.Context(), w.address, 1)
		require.NoError(t, err)

		res, err := s.Verify(t.Context(), VerifyRequest{Message: ch.Message, Signature: w.sign(t, ch.Message)})

		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
		assert.Nil(t, res.User)
	})

	t.Run("slow directory is bounded", func(t *testing.T) {
		s := newTestService(t,
			WithUpsertTimeout(20*time.Millisecond),
			WithUserDirectory(upsertFunc(func(ctx context.Context, address string, loginAt time.Time) (core.User, error) {
				<-ctx.Done()
				return core.User{}, ctx.Err()
			})),
		)
		w := newWallet(t)
		ch, err := s.IssueChallenge(t.Context(), w.address, 1)
		require.NoError(t, err)

		start := time.Now()
		res, err := s.Verify(t.Context(), VerifyRequest{Message: ch.Message, Signature: w.sign(t, ch.Message)})

		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("slow event publisher is bounded", func(t *testing.T) {
		s := newTestService(t,
			WithPublishTimeout(20*time.Millisecond),
			WithEventPublisher(blockingPublisher{}),
		)
		w := newWallet(t)
		ch, err := s.IssueChallenge(t.Context(), w.address, 1)
		require.NoError(t, err)

		start := time.Now()
		res, err := s.Verify(t.Context(), VerifyRequest{Message: ch.Message, Signature: w.sign(t, ch.Message)})

		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("concurrent verify succeeds once", func(t *testing.T) {
		s := newTestService(t)
		w := newWallet(t)
		ch, err := s.IssueChallenge(t.Context(), w.address, 1)
		require.NoError(t, err)
		req := VerifyRequest{Message: ch.Message, Signature: w.sign(t, ch.Message)}

		const attempts = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Verify(context.Background(), req); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, succeeded)
	})
}

func TestAuthService_Authenticate(t *testing.T) {
	s := newTestService(t)
	w := newWallet(t)

	t.Run("other secret", func(t *testing.T) {
		other, err := tokenizer.NewJWTTokenizer(tokenizer.Config{Secret: "another-secret-key-0123456789"})
		require.NoError(t, err)
		token, _, err := other.Mint(w.address)
		require.NoError(t, err)

		_, err = s.Authenticate(t.Context(), token)

		require.ErrorIs(t, err, core.ErrUnauthorized)
	})

	t.Run("expired", func(t *testing.T) {
		tok, err := tokenizer.NewJWTTokenizer(tokenizer.Config{Secret: testSecret, TTL: time.Second})
		require.NoError(t, err)
		s := NewAuthService(store.NewMemoryNonceStore(store.Config{}), eth.NewVerifier(), tok)
		token, _, err := tok.Mint(w.address)
		require.NoError(t, err)

		time.Sleep(2 * time.Second)
		_, err = s.Authenticate(t.Context(), token)

		require.ErrorIs(t, err, core.ErrUnauthorized)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Authenticate(t.Context(), "garbage")

		require.ErrorIs(t, err, core.ErrUnauthorized)
	})
}

func TestAuthService_Profile(t *testing.T) {
	w := newWallet(t)

	t.Run("without directory", func(t *testing.T) {
		p, err := newTestService(t).Profile(t.Context(), w.address)

		require.NoError(t, err)
		assert.Equal(t, w.address, p.Address)
		assert.Nil(t, p.User)
	})

	t.Run("known user", func(t *testing.T) {
		directory := users.NewMemoryDirectory()
		_, err := directory.UpsertUser(t.Context(), w.address, time.Now())
		require.NoError(t, err)

		p, err := newTestService(t, WithUserDirectory(directory)).Profile(t.Context(), w.address)

		require.NoError(t, err)
		require.NotNil(t, p.User)
		assert.Equal(t, w.address, p.User.WalletAddress)
	})

	t.Run("unknown user", func(t *testing.T) {
		p, err := newTestService(t, WithUserDirectory(users.NewMemoryDirectory())).Profile(t.Context(), w.address)

		require.NoError(t, err)
		assert.Nil(t, p.User)
	})
}
