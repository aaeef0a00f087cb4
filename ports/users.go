package ports

import (
	"context"
	"time"

	"github.com/layer-3/zeoauth/core"
)

// UserDirectory keeps a user record per wallet address
type UserDirectory interface {
	// UpsertUser creates the user on first login and records the login time
	UpsertUser(ctx context.Context, address string, loginAt time.Time) (core.User, error)

	// GetUser returns core.ErrUserNotFound for unknown addresses
	GetUser(ctx context.Context, address string) (core.User, error)
}
