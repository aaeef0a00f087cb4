package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/zeoauth/core"
	"github.com/layer-3/zeoauth/internal/eth"
	"github.com/layer-3/zeoauth/ports"
)

const maxIssueAttempts = 4

// Creates the record unless one already exists under the key.
//
// KEYS[1] = record key
// ARGV[1] = issued at, unix millis
// ARGV[2] = expires at, unix millis
// ARGV[3] = key ttl, millis
var issueNonceLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'issued_at', ARGV[1], 'expires_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// Marks the record used if it is still consumable.
//
// KEYS[1] = record key
// ARGV[1] = now, unix millis
//
// Returns {issued_at, expires_at, used_at} or an error reply:
// "not_found", "already_used", "expired"
var consumeNonceLua = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'issued_at', 'expires_at', 'used_at')
if not rec[1] then
  return {err='not_found'}
end
if rec[3] then
  return {err='already_used'}
end
if tonumber(ARGV[1]) >= tonumber(rec[2]) then
  return {err='expired'}
end
redis.call('HSET', KEYS[1], 'used_at', ARGV[1])
return {rec[1], rec[2], ARGV[1]}
`)

// RedisNonceStore is a Redis implementation of the NonceStore interface.
// It can be shared by any number of service instances.
type RedisNonceStore struct {
	client *redis.Client
	prefix string

	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
}

var _ ports.NonceStore = (*RedisNonceStore)(nil)

// NewRedisNonceStore creates a new Redis nonce store
func NewRedisNonceStore(client *redis.Client, cfg Config) *RedisNonceStore {
	cfg = cfg.withDefaults()
	return &RedisNonceStore{
		client:    client,
		prefix:    "zeoauth:nonce:",
		ttl:       cfg.TTL,
		retention: cfg.Retention,
		now:       time.Now,
	}
}

// Issue creates a new nonce for the address
func (s *RedisNonceStore) Issue(ctx context.Context, address string) (core.NonceRecord, error) {
	addr, err := eth.NormalizeAddress(address)
	if err != nil {
		return core.NonceRecord{}, err
	}

	for i := 0; i < maxIssueAttempts; i++ {
		nonce, err := newNonce()
		if err != nil {
			return core.NonceRecord{}, fmt.Errorf("failed to generate nonce: %w", err)
		}

		// Redis keeps millisecond precision, so does the returned record
		now := s.now().Truncate(time.Millisecond)
		rec := core.NonceRecord{
			Address:   addr,
			Nonce:     nonce,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.ttl),
		}

		created, err := issueNonceLua.Run(ctx, s.client,
			[]string{s.key(addr, nonce)},
			rec.IssuedAt.UnixMilli(),
			rec.ExpiresAt.UnixMilli(),
			(s.ttl + s.retention).Milliseconds(),
		).Int()
		if err != nil {
			return core.NonceRecord{}, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
		}
		if created == 1 {
			return rec, nil
		}
	}

	return core.NonceRecord{}, fmt.Errorf("%w: could not allocate a unique nonce", core.ErrStoreUnavailable)
}

// Consume marks the nonce as used
func (s *RedisNonceStore) Consume(ctx context.Context, address, nonce string) (core.NonceRecord, error) {
	addr, err := eth.NormalizeAddress(address)
	if err != nil {
		return core.NonceRecord{}, err
	}

	result, err := consumeNonceLua.Run(ctx, s.client,
		[]string{s.key(addr, nonce)},
		s.now().UnixMilli(),
	).StringSlice()
	if err != nil {
		var redisErr redis.Error
		if errors.As(err, &redisErr) {
			switch strings.TrimPrefix(redisErr.Error(), "ERR ") {
			case "not_found":
				return core.NonceRecord{}, core.ErrNonceNotFound
			case "already_used":
				return core.NonceRecord{}, core.ErrNonceAlreadyUsed
			case "expired":
				return core.NonceRecord{}, core.ErrNonceExpired
			}
		}
		return core.NonceRecord{}, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	if len(result) != 3 {
		return core.NonceRecord{}, fmt.Errorf("%w: unexpected lua result %v", core.ErrStoreUnavailable, result)
	}

	var millis [3]int64
	for i, v := range result {
		millis[i], err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return core.NonceRecord{}, fmt.Errorf("%w: malformed record field: %v", core.ErrStoreUnavailable, err)
		}
	}
	usedAt := time.UnixMilli(millis[2])

	return core.NonceRecord{
		Address:   addr,
		Nonce:     nonce,
		IssuedAt:  time.UnixMilli(millis[0]),
		ExpiresAt: time.UnixMilli(millis[1]),
		UsedAt:    &usedAt,
	}, nil
}

func (s *RedisNonceStore) key(address, nonce string) string {
	return s.prefix + address + ":" + nonce
}
