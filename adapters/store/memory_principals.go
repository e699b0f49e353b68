package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
)

var _ ports.PrincipalStore = (*MemoryPrincipalStore)(nil)

// record is one principal plus the lock that serializes its mutations
type record struct {
	mu        sync.Mutex
	principal core.Principal
}

// MemoryPrincipalStore is an in-memory implementation of the PrincipalStore interface.
// The index lock guards the maps only; profile changes take the per-record lock.
type MemoryPrincipalStore struct {
	mu     sync.RWMutex
	byID   map[int64]*record
	byKey  map[string]*record
	nextID int64
	now    func() time.Time
}

// NewMemoryPrincipalStore creates a new in-memory principal store
func NewMemoryPrincipalStore() *MemoryPrincipalStore {
	return &MemoryPrincipalStore{
		byID:   make(map[int64]*record),
		byKey:  make(map[string]*record),
		nextID: 1,
		now:    time.Now,
	}
}

// Create stores p under a fresh ID
func (s *MemoryPrincipalStore) Create(ctx context.Context, p *core.Principal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[p.Key]; exists {
		return 0, core.ErrDuplicateKey
	}

	rec := &record{principal: *p}
	rec.principal.ID = s.nextID
	rec.principal.Profile = p.Profile.Clone()
	if rec.principal.CreatedAt.IsZero() {
		rec.principal.CreatedAt = s.now()
	}
	s.nextID++

	s.byID[rec.principal.ID] = rec
	s.byKey[rec.principal.Key] = rec

	p.ID = rec.principal.ID
	p.CreatedAt = rec.principal.CreatedAt
	return p.ID, nil
}

// FindByID returns a copy of the principal with the given ID
func (s *MemoryPrincipalStore) FindByID(ctx context.Context, id int64) (*core.Principal, error) {
	s.mu.RLock()
	rec, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, core.ErrNotFound
	}
	return rec.snapshot(), nil
}

// FindByKey returns a copy of the principal with the given key
func (s *MemoryPrincipalStore) FindByKey(ctx context.Context, key string) (*core.Principal, error) {
	s.mu.RLock()
	rec, ok := s.byKey[key]
	s.mu.RUnlock()
	if !ok {
		return nil, core.ErrNotFound
	}
	return rec.snapshot(), nil
}

// Mutate applies fn to the principal's profile under its lock
func (s *MemoryPrincipalStore) Mutate(ctx context.Context, id int64, fn func(*core.Profile) error) error {
	rec, err := s.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	profile := rec.principal.Profile.Clone()
	if err := fn(&profile); err != nil {
		return err
	}
	rec.principal.Profile = profile
	return nil
}

// MutatePair applies fn to two profiles, taking both locks in ascending ID order
func (s *MemoryPrincipalStore) MutatePair(ctx context.Context, a, b int64, fn func(pa, pb *core.Profile) error) error {
	if a == b {
		return fmt.Errorf("%w: pair mutation needs two distinct principals", core.ErrInvalidInput)
	}

	recA, err := s.lookup(a)
	if err != nil {
		return err
	}
	recB, err := s.lookup(b)
	if err != nil {
		return err
	}

	first, second := recA, recB
	if b < a {
		first, second = recB, recA
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	pa := recA.principal.Profile.Clone()
	pb := recB.principal.Profile.Clone()
	if err := fn(&pa, &pb); err != nil {
		return err
	}
	recA.principal.Profile = pa
	recB.principal.Profile = pb
	return nil
}

func (s *MemoryPrincipalStore) lookup(id int64) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return rec, nil
}

func (r *record) snapshot() *core.Principal {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.principal
	p.Profile = r.principal.Profile.Clone()
	return &p
}
