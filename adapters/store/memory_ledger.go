package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/tessera/ports"
)

var _ ports.RevocationLedger = (*MemoryLedger)(nil)

// MemoryLedger is an in-memory implementation of the RevocationLedger interface
type MemoryLedger struct {
	tokens map[string]time.Time // token -> encoded expiry
	mu     sync.RWMutex
}

// NewMemoryLedger creates a new in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		tokens: make(map[string]time.Time),
	}
}

// Record adds a token to the ledger
func (l *MemoryLedger) Record(ctx context.Context, token string, expiresAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tokens[token] = expiresAt
	return nil
}

// Revoke removes a token from the ledger
func (l *MemoryLedger) Revoke(ctx context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.tokens, token)
	return nil
}

// Contains checks if a token is in the ledger.
// Expiry is not consulted here; the token parser rejects expired tokens.
func (l *MemoryLedger) Contains(ctx context.Context, token string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.tokens[token]
	return ok, nil
}

// Sweep removes entries whose expiry is at or before now
func (l *MemoryLedger) Sweep(ctx context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for token, expiresAt := range l.tokens {
		if !now.Before(expiresAt) {
			delete(l.tokens, token)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tokens currently held
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.tokens)
}
