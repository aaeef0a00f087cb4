package users

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/zeoauth/core"
	"github.com/layer-3/zeoauth/ports"
)

// MemoryDirectory is an in-memory implementation of the UserDirectory interface
type MemoryDirectory struct {
	users map[string]core.User
	mu    sync.RWMutex
}

var _ ports.UserDirectory = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates a new in-memory user directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users: make(map[string]core.User),
	}
}

// UpsertUser creates the user or records a new login
func (d *MemoryDirectory) UpsertUser(ctx context.Context, address string, loginAt time.Time) (core.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.users[address]
	if !ok {
		user = core.User{
			ID:            uuid.NewString(),
			WalletAddress: address,
			Name:          defaultName(),
			CreatedAt:     loginAt,
		}
	}
	user.LastLoginAt = loginAt
	d.users[address] = user

	return user, nil
}

// GetUser returns the user by address
func (d *MemoryDirectory) GetUser(ctx context.Context, address string) (core.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[address]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return user, nil
}
