package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/layer-3/zeoauth/core"
	"github.com/layer-3/zeoauth/ports"
)

// DBTX is satisfied by pgxpool.Pool, pgx.Conn and pgx.Tx
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresDirectory is a Postgres implementation of the UserDirectory interface
type PostgresDirectory struct {
	db DBTX
}

var _ ports.UserDirectory = (*PostgresDirectory)(nil)

// NewPostgresDirectory creates a new Postgres user directory
func NewPostgresDirectory(db DBTX) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const upsertUser = `-- name: UpsertUser
INSERT INTO users (wallet_address, name, last_login_at)
VALUES ($1, $2, $3)
ON CONFLICT (wallet_address) DO UPDATE SET last_login_at = EXCLUDED.last_login_at
RETURNING id, wallet_address, name, created_at, last_login_at
`

// UpsertUser creates the user or records a new login
func (d *PostgresDirectory) UpsertUser(ctx context.Context, address string, loginAt time.Time) (core.User, error) {
	rows, _ := d.db.Query(ctx, upsertUser, address, defaultName(), loginAt)
	user, err := pgx.CollectOneRow(rows, rowToUser)
	if err != nil {
		return user, classify(err)
	}

	return user, nil
}

const getUserByAddress = `-- name: GetUserByAddress
SELECT id, wallet_address, name, created_at, last_login_at FROM users
WHERE wallet_address = $1
`

// GetUser returns the user by address
func (d *PostgresDirectory) GetUser(ctx context.Context, address string) (core.User, error) {
	rows, _ := d.db.Query(ctx, getUserByAddress, address)
	user, err := pgx.CollectOneRow(rows, rowToUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, core.ErrUserNotFound
		}
		return user, classify(err)
	}

	return user, nil
}

func rowToUser(row pgx.CollectableRow) (core.User, error) {
	var (
		u  core.User
		id uuid.UUID
	)
	err := row.Scan(&id, &u.WalletAddress, &u.Name, &u.CreatedAt, &u.LastLoginAt)
	u.ID = id.String()
	return u, err
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return fmt.Errorf("%w: users table is missing, migrations not applied: %v", core.ErrCollaboratorUnavailable, err)
	}
	return fmt.Errorf("%w: %v", core.ErrCollaboratorUnavailable, err)
}
