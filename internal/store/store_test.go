package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transcaribe/tracking_core/internal/models"
)

type recordedCall struct {
	sql  string
	args []any
}

// fakeRow answers a single QueryRow with a canned Scan
type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeConn records every statement and serves rows from a queue
type fakeConn struct {
	rows    []pgx.Row
	execTag pgconn.CommandTag

	queryRows []recordedCall
	execs     []recordedCall
}

func (f *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.queryRows = append(f.queryRows, recordedCall{sql: sql, args: args})
	if len(f.rows) == 0 {
		return fakeRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

func (f *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, recordedCall{sql: sql, args: args})
	return f.execTag, nil
}

func (f *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}

func scanBool(v bool) fakeRow {
	return fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*bool)) = v
		return nil
	}}
}

func scanUserRow(u models.User) fakeRow {
	return fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*int64)) = u.ID
		*(dest[1].(*string)) = u.Username
		*(dest[2].(*string)) = u.PasswordHash
		*(dest[3].(*string)) = u.FirstName
		*(dest[4].(*string)) = u.LastName
		*(dest[5].(*string)) = u.Email
		*(dest[6].(*time.Time)) = u.CreatedAt
		return nil
	}}
}

func TestUpdateUserWritesPasswordHash(t *testing.T) {
	updated := models.User{
		ID:           7,
		Username:     "maria",
		FirstName:    "Maria",
		LastName:     "Diaz",
		Email:        "maria@example.com",
		PasswordHash: "$2a$10$rehashed",
		CreatedAt:    time.Now().UTC(),
	}
	conn := &fakeConn{
		rows:    []pgx.Row{scanBool(false), scanUserRow(updated)},
		execTag: pgconn.NewCommandTag("UPDATE 1"),
	}

	s := &Store{pool: conn}
	saved, err := s.UpdateUser(context.Background(), updated)
	require.NoError(t, err)

	require.Len(t, conn.execs, 1)
	assert.Contains(t, conn.execs[0].sql, "password_hash")
	assert.Contains(t, conn.execs[0].args, "$2a$10$rehashed")
	assert.Equal(t, "$2a$10$rehashed", saved.PasswordHash)
}

func TestUpdateUserConflictOnTakenUsername(t *testing.T) {
	conn := &fakeConn{rows: []pgx.Row{scanBool(true)}}

	s := &Store{pool: conn}
	_, err := s.UpdateUser(context.Background(), models.User{ID: 7, Username: "maria"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, conn.execs)
}

func TestUpdateUserNotFound(t *testing.T) {
	conn := &fakeConn{
		rows:    []pgx.Row{scanBool(false)},
		execTag: pgconn.NewCommandTag("UPDATE 0"),
	}

	s := &Store{pool: conn}
	_, err := s.UpdateUser(context.Background(), models.User{ID: 999, Username: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}
