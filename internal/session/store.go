package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no state is stored under the requested id.
var ErrNotFound = errors.New("session not found")

const DefaultTTL = 24 * time.Hour

// Store keeps serialized session state.
type Store interface {
	Load(ctx context.Context, id string) ([]byte, error)
	Save(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
}

type entry struct {
	data    []byte
	expires time.Time
}

// Memory is an in-process Store. Entries expire ttl after their last save.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, entries: make(map[string]entry), now: time.Now}
}

func (m *Memory) Load(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, id)
		return nil, ErrNotFound
	}

	return append([]byte(nil), e.data...), nil
}

func (m *Memory) Save(_ context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[id] = entry{data: append([]byte(nil), data...), expires: m.now().Add(m.ttl)}
	m.sweep()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, id)
	return nil
}

// Len reports the number of live sessions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep()
	return len(m.entries)
}

// sweep drops expired entries. Callers hold mu.
func (m *Memory) sweep() {
	now := m.now()
	for id, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, id)
		}
	}
}
