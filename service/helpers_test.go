package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/tessera/adapters/hasher"
	"github.com/layer-3/tessera/adapters/store"
	"github.com/layer-3/tessera/adapters/tokenizer"
	"github.com/layer-3/tessera/core"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event core.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Topic()
	}
	return out
}

type fixture struct {
	clock       *fakeClock
	ledger      *store.MemoryLedger
	principals  *store.MemoryPrincipalStore
	credentials *CredentialStore
	tokenizer   *tokenizer.JWTTokenizer
	publisher   *recordingPublisher
	auth        *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newFakeClock()
	h, err := hasher.NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)

	tk, err := tokenizer.NewJWTTokenizer(tokenizer.Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		Now:           clock.Now,
	})
	require.NoError(t, err)

	f := &fixture{
		clock:      clock,
		ledger:     store.NewMemoryLedger(),
		principals: store.NewMemoryPrincipalStore(),
		tokenizer:  tk,
		publisher:  &recordingPublisher{},
	}
	f.credentials = NewCredentialStore(f.principals, h)
	f.auth = NewAuthService(f.credentials, tk, f.ledger, f.publisher, WithClock(clock.Now))
	return f
}

var errPublish = errors.New("broker unavailable")
