package session

import (
	"context"
	"sync"
	"time"
)

type entry[T any] struct {
	v       T
	expires time.Time
}

func (e entry[T]) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

type memoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	pending  map[int64]entry[PendingBroadcast]
	awaiting map[int64]entry[AwaitingInput]
}

// NewMemory returns a process-local store. now may be nil.
func NewMemory(now func() time.Time) Store {
	if now == nil {
		now = time.Now
	}
	return &memoryStore{
		now:      now,
		pending:  map[int64]entry[PendingBroadcast]{},
		awaiting: map[int64]entry[AwaitingInput]{},
	}
}

func (m *memoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *memoryStore) SetPending(_ context.Context, owner int64, p PendingBroadcast, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[owner] = entry[PendingBroadcast]{v: p, expires: m.expiry(ttl)}
	return nil
}

func (m *memoryStore) TakePending(_ context.Context, owner int64) (PendingBroadcast, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pending[owner]
	delete(m.pending, owner)
	if !ok || !e.live(m.now()) {
		return PendingBroadcast{}, false, nil
	}
	return e.v, true, nil
}

func (m *memoryStore) ClearPending(_ context.Context, owner int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pending[owner]
	delete(m.pending, owner)
	return ok && e.live(m.now()), nil
}

func (m *memoryStore) SetAwaiting(_ context.Context, owner int64, a AwaitingInput, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.awaiting[owner] = entry[AwaitingInput]{v: a, expires: m.expiry(ttl)}
	return nil
}

func (m *memoryStore) Awaiting(_ context.Context, owner int64) (AwaitingInput, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.awaiting[owner]
	if !ok {
		return AwaitingInput{}, false, nil
	}
	if !e.live(m.now()) {
		delete(m.awaiting, owner)
		return AwaitingInput{}, false, nil
	}
	return e.v, true, nil
}

func (m *memoryStore) ClearAwaiting(_ context.Context, owner int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.awaiting, owner)
	return nil
}

func (m *memoryStore) Close() error { return nil }
