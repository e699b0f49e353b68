package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
	"github.com/shopspring/decimal"
)

// decoySecret is hashed once and compared against when a key is unknown,
// so both failure paths pay for one hash comparison.
const decoySecret = "tessera-decoy-secret"

// CredentialStore registers principals and checks their secrets
type CredentialStore struct {
	store  ports.PrincipalStore
	hasher ports.Hasher

	decoyOnce sync.Once
	decoyHash string
}

// NewCredentialStore creates a new credential store
func NewCredentialStore(store ports.PrincipalStore, hasher ports.Hasher) *CredentialStore {
	return &CredentialStore{
		store:  store,
		hasher: hasher,
	}
}

// Register stores a new principal with the hash of secret and returns its ID
func (c *CredentialStore) Register(ctx context.Context, key, secret string, profile core.Profile) (int64, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, fmt.Errorf("%w: key is required", core.ErrInvalidInput)
	}
	if strings.TrimSpace(secret) == "" {
		return 0, fmt.Errorf("%w: secret is required", core.ErrInvalidInput)
	}
	if len(secret) > core.MaxSecretBytes {
		return 0, fmt.Errorf("%w: secret is longer than %d bytes", core.ErrInvalidInput, core.MaxSecretBytes)
	}
	if profile.Balance.IsNegative() {
		return 0, fmt.Errorf("%w: balance must not be negative", core.ErrInvalidInput)
	}
	if !fitsScale(profile.Balance) {
		return 0, fmt.Errorf("%w: balance has more than %d decimal places", core.ErrInvalidInput, core.BalanceScale)
	}
	if profile.Role == "" {
		profile.Role = core.DefaultRole
	}

	hash, err := c.hasher.Hash(secret)
	if err != nil {
		return 0, fmt.Errorf("failed to hash secret: %w", err)
	}

	p := &core.Principal{
		Key:        key,
		SecretHash: hash,
		Profile:    profile.Clone(),
	}
	id, err := c.store.Create(ctx, p)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Verify returns the principal when secret matches. An unknown key and a
// wrong secret both fail with core.ErrInvalidCredentials.
func (c *CredentialStore) Verify(ctx context.Context, key, secret string) (*core.Principal, error) {
	key = strings.TrimSpace(key)
	if key == "" || secret == "" {
		return nil, fmt.Errorf("%w: key and secret are required", core.ErrInvalidInput)
	}

	p, err := c.store.FindByKey(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		_ = c.hasher.Compare(c.decoy(), secret)
		return nil, core.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}

	if err := c.hasher.Compare(p.SecretHash, secret); err != nil {
		return nil, core.ErrInvalidCredentials
	}
	return p, nil
}

// FindByID returns core.ErrNotFound if the principal is absent
func (c *CredentialStore) FindByID(ctx context.Context, id int64) (*core.Principal, error) {
	return c.store.FindByID(ctx, id)
}

// FindByKey returns core.ErrNotFound if the principal is absent
func (c *CredentialStore) FindByKey(ctx context.Context, key string) (*core.Principal, error) {
	return c.store.FindByKey(ctx, strings.TrimSpace(key))
}

// MutateProfile applies fn to the principal's profile, serialized per principal
func (c *CredentialStore) MutateProfile(ctx context.Context, id int64, fn func(*core.Profile) error) error {
	return c.store.Mutate(ctx, id, fn)
}

// Transfer moves amount from one principal's balance to another's and
// returns the recipient's ID.
func (c *CredentialStore) Transfer(ctx context.Context, fromID int64, toKey string, amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive", core.ErrInvalidInput)
	}
	if !fitsScale(amount) {
		return 0, fmt.Errorf("%w: amount has more than %d decimal places", core.ErrInvalidInput, core.BalanceScale)
	}
	if strings.TrimSpace(toKey) == "" {
		return 0, fmt.Errorf("%w: recipient is required", core.ErrInvalidInput)
	}

	to, err := c.FindByKey(ctx, toKey)
	if err != nil {
		return 0, fmt.Errorf("recipient: %w", err)
	}
	if to.ID == fromID {
		return 0, fmt.Errorf("%w: cannot transfer to self", core.ErrInvalidInput)
	}

	err = c.store.MutatePair(ctx, fromID, to.ID, func(from, recipient *core.Profile) error {
		if from.Balance.LessThan(amount) {
			return core.ErrInsufficientFunds
		}
		from.Balance = from.Balance.Sub(amount)
		recipient.Balance = recipient.Balance.Add(amount)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return to.ID, nil
}

// fitsScale reports whether d is representable with core.BalanceScale decimal places
func fitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(core.BalanceScale))
}

func (c *CredentialStore) decoy() string {
	c.decoyOnce.Do(func() {
		c.decoyHash, _ = c.hasher.Hash(decoySecret)
	})
	return c.decoyHash
}
