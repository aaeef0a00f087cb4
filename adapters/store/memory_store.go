package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/zeoauth/core"
	"github.com/layer-3/zeoauth/internal/eth"
	"github.com/layer-3/zeoauth/ports"
)

// MemoryNonceStore is an in-memory implementation of the NonceStore interface.
// Only suitable for a single process.
type MemoryNonceStore struct {
	// address -> nonce -> record
	buckets map[string]map[string]*core.NonceRecord
	mu      sync.Mutex

	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
}

var _ ports.NonceStore = (*MemoryNonceStore)(nil)

// NewMemoryNonceStore creates a new in-memory nonce store
func NewMemoryNonceStore(cfg Config) *MemoryNonceStore {
	cfg = cfg.withDefaults()
	return &MemoryNonceStore{
		buckets:   make(map[string]map[string]*core.NonceRecord),
		ttl:       cfg.TTL,
		retention: cfg.Retention,
		now:       time.Now,
	}
}

// Issue creates a new nonce for the address
func (s *MemoryNonceStore) Issue(ctx context.Context, address string) (core.NonceRecord, error) {
	addr, err := eth.NormalizeAddress(address)
	if err != nil {
		return core.NonceRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	bucket, ok := s.buckets[addr]
	if !ok {
		bucket = make(map[string]*core.NonceRecord)
		s.buckets[addr] = bucket
	}
	s.pruneBucketLocked(bucket, now)

	var nonce string
	for {
		nonce, err = newNonce()
		if err != nil {
			return core.NonceRecord{}, fmt.Errorf("failed to generate nonce: %w", err)
		}
		// Keep nonces unique within the bucket so lookup by value is unambiguous
		if _, taken := bucket[nonce]; !taken {
			break
		}
	}

	rec := &core.NonceRecord{
		Address:   addr,
		Nonce:     nonce,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	bucket[nonce] = rec

	return *rec, nil
}

// Consume marks the nonce as used
func (s *MemoryNonceStore) Consume(ctx context.Context, address, nonce string) (core.NonceRecord, error) {
	addr, err := eth.NormalizeAddress(address)
	if err != nil {
		return core.NonceRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.buckets[addr][nonce]
	if !ok {
		return core.NonceRecord{}, core.ErrNonceNotFound
	}

	now := s.now()
	if rec.UsedAt != nil {
		return copyRecord(rec), core.ErrNonceAlreadyUsed
	}
	if !now.Before(rec.ExpiresAt) {
		return copyRecord(rec), core.ErrNonceExpired
	}

	rec.UsedAt = &now
	return copyRecord(rec), nil
}

// Prune drops records whose retention window has passed and returns how many were removed
func (s *MemoryNonceStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for addr, bucket := range s.buckets {
		removed += s.pruneBucketLocked(bucket, now)
		if len(bucket) == 0 {
			delete(s.buckets, addr)
		}
	}
	return removed
}

// Run prunes the store every interval until ctx is done
func (s *MemoryNonceStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune(s.now())
		}
	}
}

// Len returns the number of records held
func (s *MemoryNonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, bucket := range s.buckets {
		n += len(bucket)
	}
	return n
}

func (s *MemoryNonceStore) pruneBucketLocked(bucket map[string]*core.NonceRecord, now time.Time) int {
	removed := 0
	for nonce, rec := range bucket {
		if !now.Before(rec.ExpiresAt.Add(s.retention)) {
			delete(bucket, nonce)
			removed++
		}
	}
	return removed
}

func copyRecord(rec *core.NonceRecord) core.NonceRecord {
	out := *rec
	if rec.UsedAt != nil {
		usedAt := *rec.UsedAt
		out.UsedAt = &usedAt
	}
	return out
}
