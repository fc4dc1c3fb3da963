package session

import (
	"context"
	"sync"
	"time"
)

// Pair is the client-held session. Both tokens are present or the session is
// absent; ExpiresAt is nil when neither the server nor the token declared one.
type Pair struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

func (p *Pair) complete() bool {
	return p != nil && p.AccessToken != "" && p.RefreshToken != ""
}

func (p *Pair) clone() *Pair {
	if p == nil {
		return nil
	}
	cp := *p
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

// Store persists the current pair. Load returns (nil, nil) when nothing is stored.
type Store interface {
	Load(ctx context.Context) (*Pair, error)
	Save(ctx context.Context, p *Pair) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the pair for the life of the process.
type MemoryStore struct {
	mu   sync.Mutex
	pair *Pair
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(context.Context) (*Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair.clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, p *Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = p.clone()
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = nil
	return nil
}
