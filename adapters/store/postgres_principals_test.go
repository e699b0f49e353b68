package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/layer-3/tessera/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresPrincipalStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresPrincipalStore(db), mock
}

var (
	insertPrincipalSQL = regexp.QuoteMeta(`INSERT INTO principals (lookup_key, secret_hash, role, balance, attributes)`)
	lockSQL            = regexp.QuoteMeta(`SELECT id, role, balance, attributes FROM principals WHERE id IN (`)
	updateSQL          = regexp.QuoteMeta(`UPDATE principals SET role = $2, balance = $3, attributes = $4 WHERE id = $1`)
	findByKeySQL       = regexp.QuoteMeta(`FROM principals WHERE lookup_key = $1`)
)

func TestPostgresEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS principals`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreate(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(insertPrincipalSQL).
		WithArgs("alice", "hash", string(core.RoleUser), sqlmock.AnyArg(), []byte("{}")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), created))

	p := newPrincipal("alice", 0)
	p.SecretHash = "hash"
	id, err := s.Create(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, int64(5), p.ID)
	assert.True(t, created.Equal(p.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateDuplicateKey(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(insertPrincipalSQL).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := s.Create(context.Background(), newPrincipal("alice", 0))
	assert.ErrorIs(t, err, core.ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateOtherError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(insertPrincipalSQL).WillReturnError(errors.New("connection reset"))

	_, err := s.Create(context.Background(), newPrincipal("alice", 0))
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrDuplicateKey)
}

func TestPostgresFindByKey(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(findByKeySQL).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "lookup_key", "secret_hash", "role", "balance", "attributes", "created_at"}).
			AddRow(int64(3), "alice", "hash", string(core.RoleModerator), "12.5", []byte(`{"tier":"gold"}`), created))

	p, err := s.FindByKey(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.ID)
	assert.Equal(t, core.RoleModerator, p.Profile.Role)
	assert.True(t, p.Profile.Balance.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, map[string]string{"tier": "gold"}, p.Profile.Attributes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM principals WHERE id = $1`)).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "lookup_key", "secret_hash", "role", "balance", "attributes", "created_at"}))

	_, err := s.FindByID(context.Background(), 9)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMutatePairCommits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSQL).
		WithArgs(int64(2), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "balance", "attributes"}).
			AddRow(int64(1), string(core.RoleUser), "10", []byte("{}")).
			AddRow(int64(2), string(core.RoleUser), "0", []byte("{}")))
	mock.ExpectExec(updateSQL).
		WithArgs(int64(2), string(core.RoleUser), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateSQL).
		WithArgs(int64(1), string(core.RoleUser), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.MutatePair(context.Background(), 2, 1, func(from, to *core.Profile) error {
		assert.True(t, from.Balance.IsZero())
		assert.True(t, to.Balance.Equal(decimal.NewFromInt(10)))
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMutatePairRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSQL).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "balance", "attributes"}).
			AddRow(int64(1), string(core.RoleUser), "1", []byte("{}")).
			AddRow(int64(2), string(core.RoleUser), "0", []byte("{}")))
	mock.ExpectRollback()

	err := s.MutatePair(context.Background(), 1, 2, func(_, _ *core.Profile) error {
		return core.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMutateMissingRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSQL).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "balance", "attributes"}))
	mock.ExpectRollback()

	err := s.Mutate(context.Background(), 4, func(*core.Profile) error { return nil })
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMutatePairSameID(t *testing.T) {
	s, mock := newMockStore(t)
	err := s.MutatePair(context.Background(), 1, 1, func(_, _ *core.Profile) error { return nil })
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}
