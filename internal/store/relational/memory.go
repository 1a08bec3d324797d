package relational

import (
	"context"
	"sync"
)

// MemoryStore is an in-process fake Store used by tests, avoiding a real
// sqlite file while preserving the same interface gormStore satisfies.
type MemoryStore struct {
	mu            sync.Mutex
	profiles      map[string]UserProfile
	subscriptions map[string][]Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:      make(map[string]UserProfile),
		subscriptions: make(map[string][]Subscription),
	}
}

func (m *MemoryStore) GetUserProfile(_ context.Context, userID string) (*UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) UpsertUserProfile(_ context.Context, p *UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = *p
	return nil
}

func (m *MemoryStore) DeleteUserProfile(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, userID)
	return nil
}

func (m *MemoryStore) GetSubscription(_ context.Context, userID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscriptions[userID]
	if len(subs) == 0 {
		return nil, ErrNotFound
	}
	latest := subs[len(subs)-1]
	return &latest, nil
}

func (m *MemoryStore) UpsertSubscription(_ context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscriptions[s.UserID]
	for i := range subs {
		if subs[i].ID == s.ID && s.ID != 0 {
			subs[i] = *s
			m.subscriptions[s.UserID] = subs
			return nil
		}
	}
	if s.ID == 0 {
		s.ID = uint(len(subs) + 1)
	}
	m.subscriptions[s.UserID] = append(subs, *s)
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }
func (m *MemoryStore) Close() error                 { return nil }
