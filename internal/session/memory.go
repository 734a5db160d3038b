package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryStore хранит состояния в памяти процесса, устаревшие записи удаляются при чтении.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]memoryEntry
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[int64]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(userID), nil
}

func (m *MemoryStore) getLocked(userID int64) State {
	entry, ok := m.entries[userID]
	if !ok {
		return State{}.normalized()
	}
	now := m.now()
	if m.ttl > 0 && now.After(entry.expiresAt) {
		delete(m.entries, userID)
		return State{}.normalized()
	}
	return expirePending(entry.state, m.ttl, now).normalized()
}

func (m *MemoryStore) Set(_ context.Context, userID int64, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(userID, state)
	return nil
}

func (m *MemoryStore) setLocked(userID int64, state State) {
	m.entries[userID] = memoryEntry{state: state, expiresAt: m.now().Add(m.ttl)}
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

func (m *MemoryStore) Update(_ context.Context, userID int64, fn func(*State) error) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.getLocked(userID)
	if err := fn(&state); err != nil {
		return state, err
	}
	m.setLocked(userID, state)
	return state, nil
}

// expirePending сбрасывает просроченное ожидание ввода, режим и меню не трогает.
func expirePending(state State, ttl time.Duration, now time.Time) State {
	if state.Pending.Kind != KindNone && state.Awaiting(ttl, now) == KindNone {
		state.Reset()
	}
	return state
}
