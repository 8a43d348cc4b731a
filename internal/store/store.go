// Package store is the geostore: it owns every persisted entity and exposes
// typed operations over PostgreSQL/PostGIS. Geodesic distances are computed
// by the database (geography casts), so they benefit from spatial indexing.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transcaribe/tracking_core/internal/models"
)

var (
	// ErrNotFound is returned when the requested entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique-constraint style conflicts
	// (duplicate username/email, duplicate vote in the same direction)
	ErrConflict = errors.New("conflict")
	// ErrPrecondition is returned when an operation requires state the
	// rider does not have (no active session, not on a bus)
	ErrPrecondition = errors.New("precondition failed")
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same queries
// serve request-scoped reads and the engine's per-tick transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// db is the connection surface the store needs. *pgxpool.Pool satisfies it.
type db interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store provides request-scoped access to the geostore
type Store struct {
	pool db
}

// New creates a store backed by the given connection pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateUser registers a rider with an already-hashed password.
// Returns ErrConflict when the username or email is taken.
func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	var taken bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM app_user WHERE username = $1 OR email = $2)
	`, u.Username, u.Email).Scan(&taken)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to check user uniqueness: %w", err)
	}
	if taken {
		return models.User{}, ErrConflict
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO app_user (username, password_hash, first_name, last_name, email)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Email).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

// UserByUsername looks a rider up for login and token validation
func (s *Store) UserByUsername(ctx context.Context, username string) (models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, first_name, last_name, email, created_at
		FROM app_user WHERE username = $1
	`, username))
}

// UserByID returns a rider by id
func (s *Store) UserByID(ctx context.Context, id int64) (models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, first_name, last_name, email, created_at
		FROM app_user WHERE id = $1
	`, id))
}

// UpdateUser updates profile fields. Returns ErrNotFound for a missing user
// and ErrConflict when the new username or email belongs to someone else.
func (s *Store) UpdateUser(ctx context.Context, u models.User) (models.User, error) {
	var taken bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM app_user
			WHERE (username = $1 OR email = $2) AND id != $3
		)
	`, u.Username, u.Email, u.ID).Scan(&taken)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to check user uniqueness: %w", err)
	}
	if taken {
		return models.User{}, ErrConflict
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE app_user
		SET username = $1, first_name = $2, last_name = $3, email = $4, password_hash = $5
		WHERE id = $6
	`, u.Username, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, ErrNotFound
	}
	return s.UserByID(ctx, u.ID)
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}
