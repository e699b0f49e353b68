package ports

import (
	"context"
	"time"

	"github.com/layer-3/tessera/core"
)

// PrincipalStore persists principals.
// Implementations must keep ID and Key unique and serialize mutations per principal.
type PrincipalStore interface {
	// Create assigns a fresh ID to p and stores it. Returns core.ErrDuplicateKey if the key exists.
	Create(ctx context.Context, p *core.Principal) (int64, error)

	// FindByID returns core.ErrNotFound if absent
	FindByID(ctx context.Context, id int64) (*core.Principal, error)

	// FindByKey returns core.ErrNotFound if absent
	FindByKey(ctx context.Context, key string) (*core.Principal, error)

	// Mutate applies fn to a copy of the profile and commits it when fn returns nil.
	Mutate(ctx context.Context, id int64, fn func(*core.Profile) error) error

	// MutatePair is Mutate over two principals, locked in ascending ID order.
	MutatePair(ctx context.Context, a, b int64, fn func(pa, pb *core.Profile) error) error
}

// RevocationLedger is the allow-list of refresh tokens still honored
type RevocationLedger interface {
	// Record adds a token; recording twice is the same as once
	Record(ctx context.Context, token string, expiresAt time.Time) error

	// Revoke removes a token; revoking an absent token is not an error
	Revoke(ctx context.Context, token string) error

	// Contains reports whether the token is in the ledger
	Contains(ctx context.Context, token string) (bool, error)

	// Sweep drops entries whose expiry is at or before now and returns how many were removed
	Sweep(ctx context.Context, now time.Time) (int, error)
}
