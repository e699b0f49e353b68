package hasher

import (
	"errors"
	"fmt"

	"github.com/layer-3/tessera/ports"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches ten salt rounds
const DefaultBcryptCost = 10

var _ ports.Hasher = (*Bcrypt)(nil)

// ErrMismatch is returned when a secret does not match its hash
var ErrMismatch = errors.New("secret does not match hash")

// Bcrypt hashes secrets with bcrypt
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher. A zero cost selects DefaultBcryptCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash hashes a non-empty secret
func (b *Bcrypt) Hash(secret string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// Compare returns nil when secret matches hash
func (b *Bcrypt) Compare(hash, secret string) error {
	if hash == "" {
		return errors.New("hash is empty")
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
