package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
	"github.com/shopspring/decimal"
)

var _ ports.PrincipalStore = (*PostgresPrincipalStore)(nil)

// uniqueViolation is the SQLSTATE for a unique index conflict
const uniqueViolation = "23505"

const principalsSchema = `
CREATE TABLE IF NOT EXISTS principals (
	id          BIGSERIAL PRIMARY KEY,
	lookup_key  TEXT NOT NULL UNIQUE,
	secret_hash TEXT NOT NULL,
	role        TEXT NOT NULL,
	balance     NUMERIC(20, 4) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	attributes  JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const selectPrincipal = `SELECT id, lookup_key, secret_hash, role, balance, attributes, created_at FROM principals`

// PostgresPrincipalStore implements PrincipalStore on PostgreSQL through database/sql.
// Open the *sql.DB with the pgx stdlib driver.
type PostgresPrincipalStore struct {
	db *sql.DB
}

// NewPostgresPrincipalStore creates a new PostgreSQL principal store
func NewPostgresPrincipalStore(db *sql.DB) *PostgresPrincipalStore {
	return &PostgresPrincipalStore{db: db}
}

// EnsureSchema creates the principals table when it does not exist
func (s *PostgresPrincipalStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, principalsSchema); err != nil {
		return fmt.Errorf("failed to create principals table: %w", err)
	}
	return nil
}

// Create inserts p and lets the sequence assign its ID
func (s *PostgresPrincipalStore) Create(ctx context.Context, p *core.Principal) (int64, error) {
	attrs, err := encodeAttributes(p.Profile.Attributes)
	if err != nil {
		return 0, err
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO principals (lookup_key, secret_hash, role, balance, attributes) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		p.Key, p.SecretHash, string(p.Profile.Role), p.Profile.Balance, attrs,
	)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, core.ErrDuplicateKey
		}
		return 0, fmt.Errorf("failed to insert principal: %w", err)
	}
	return p.ID, nil
}

// FindByID loads a principal by ID
func (s *PostgresPrincipalStore) FindByID(ctx context.Context, id int64) (*core.Principal, error) {
	return s.findOne(ctx, selectPrincipal+` WHERE id = $1`, id)
}

// FindByKey loads a principal by lookup key
func (s *PostgresPrincipalStore) FindByKey(ctx context.Context, key string) (*core.Principal, error) {
	return s.findOne(ctx, selectPrincipal+` WHERE lookup_key = $1`, key)
}

// Mutate locks the row, applies fn and writes the profile back in one transaction
func (s *PostgresPrincipalStore) Mutate(ctx context.Context, id int64, fn func(*core.Profile) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		profiles, err := lockProfiles(ctx, tx, id)
		if err != nil {
			return err
		}
		profile := profiles[id]
		if err := fn(&profile); err != nil {
			return err
		}
		return updateProfile(ctx, tx, id, profile)
	})
}

// MutatePair locks both rows in ascending ID order and updates them together
func (s *PostgresPrincipalStore) MutatePair(ctx context.Context, a, b int64, fn func(pa, pb *core.Profile) error) error {
	if a == b {
		return fmt.Errorf("%w: pair mutation needs two distinct principals", core.ErrInvalidInput)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		profiles, err := lockProfiles(ctx, tx, a, b)
		if err != nil {
			return err
		}
		pa, pb := profiles[a], profiles[b]
		if err := fn(&pa, &pb); err != nil {
			return err
		}
		if err := updateProfile(ctx, tx, a, pa); err != nil {
			return err
		}
		return updateProfile(ctx, tx, b, pb)
	})
}

func (s *PostgresPrincipalStore) findOne(ctx context.Context, query string, arg any) (*core.Principal, error) {
	var (
		p     core.Principal
		role  string
		attrs []byte
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&p.ID, &p.Key, &p.SecretHash, &role, &p.Profile.Balance, &attrs, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}
	p.Profile.Role = core.Role(role)
	if p.Profile.Attributes, err = decodeAttributes(attrs); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresPrincipalStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// lockProfiles selects the given rows FOR UPDATE, ordered by id so that
// concurrent pair mutations always lock in the same order.
func lockProfiles(ctx context.Context, tx *sql.Tx, ids ...int64) (map[int64]core.Profile, error) {
	args := make([]any, len(ids))
	placeholders := ""
	for i, id := range ids {
		args[i] = id
		if i > 0 {
			placeholders += ", "
		}
		placeholders += fmt.Sprintf("$%d", i+1)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, role, balance, attributes FROM principals WHERE id IN (`+placeholders+`) ORDER BY id FOR UPDATE`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock principals: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]core.Profile, len(ids))
	for rows.Next() {
		var (
			id      int64
			role    string
			balance decimal.Decimal
			attrs   []byte
		)
		if err := rows.Scan(&id, &role, &balance, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		decoded, err := decodeAttributes(attrs)
		if err != nil {
			return nil, err
		}
		out[id] = core.Profile{Role: core.Role(role), Balance: balance, Attributes: decoded}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read principals: %w", err)
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, core.ErrNotFound
		}
	}
	return out, nil
}

func updateProfile(ctx context.Context, tx *sql.Tx, id int64, p core.Profile) error {
	attrs, err := encodeAttributes(p.Attributes)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE principals SET role = $2, balance = $3, attributes = $4 WHERE id = $1`,
		id, string(p.Role), p.Balance, attrs,
	)
	if err != nil {
		return fmt.Errorf("failed to update principal %d: %w", id, err)
	}
	return nil
}

func encodeAttributes(attrs map[string]string) ([]byte, error) {
	if len(attrs) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %w", err)
	}
	return data, nil
}

func decodeAttributes(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var attrs map[string]string
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}
