package storage

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"sharebot/internal/vault"
)

// memoryStore keeps everything in maps guarded by one mutex.
type memoryStore struct {
	mu sync.Mutex

	staged    map[int64][]vault.Item
	batches   map[string]*vault.Batch
	global    *vault.Settings
	consumers map[int64]*memConsumer
	seq       int64
}

type memConsumer struct {
	c         vault.Consumer
	seq       int64
	firstSeen time.Time
	lastSeen  time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() vault.Store {
	return &memoryStore{
		staged:    map[int64][]vault.Item{},
		batches:   map[string]*vault.Batch{},
		consumers: map[int64]*memConsumer{},
	}
}

func (m *memoryStore) StageItem(_ context.Context, it vault.Item) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged[it.OwnerID] = append(m.staged[it.OwnerID], it)
	return len(m.staged[it.OwnerID]), nil
}

func (m *memoryStore) CountStaged(_ context.Context, owner int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.staged[owner]), nil
}

func (m *memoryStore) ClearStaged(_ context.Context, owner int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.staged[owner])
	delete(m.staged, owner)
	return n, nil
}

func (m *memoryStore) CommitStaged(_ context.Context, owner int64, b vault.Batch) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := m.staged[owner]
	if len(staged) == 0 {
		return 0, nil
	}
	if _, ok := m.batches[b.Code]; ok {
		return 0, vault.ErrCodeSpace
	}
	b.OwnerID = owner
	b.Items = make([]vault.Item, len(staged))
	for i, it := range staged {
		it.CommittedAt = b.CommittedAt
		b.Items[i] = it
	}
	m.batches[b.Code] = &b
	delete(m.staged, owner)
	return len(b.Items), nil
}

func (m *memoryStore) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.batches[code]
	return ok, nil
}

func (m *memoryStore) GetBatch(_ context.Context, code string) (vault.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[code]
	if !ok {
		return vault.Batch{}, vault.ErrNotFound
	}
	out := *b
	out.Items = slices.Clone(b.Items)
	return out, nil
}

func (m *memoryStore) BatchMeta(_ context.Context, code string) (vault.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[code]
	if !ok {
		return vault.Batch{}, vault.ErrNotFound
	}
	out := *b
	out.Items = nil
	return out, nil
}

func (m *memoryStore) DeleteBatch(_ context.Context, code string, owner int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[code]
	if !ok || b.OwnerID != owner {
		return 0, vault.ErrUnauthorized
	}
	delete(m.batches, code)
	return len(b.Items), nil
}

func (m *memoryStore) ListBatches(_ context.Context, owner int64, limit int) ([]vault.BatchSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []vault.BatchSummary
	for _, b := range m.batches {
		if b.OwnerID != owner {
			continue
		}
		s := vault.BatchSummary{
			Code:        b.Code,
			Count:       len(b.Items),
			Settings:    b.Settings,
			CommittedAt: b.CommittedAt,
		}
		if len(b.Items) > 0 {
			s.FirstKind = b.Items[0].Kind
			s.FirstCaption = b.Items[0].Caption
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CommittedAt.Equal(out[j].CommittedAt) {
			return out[i].CommittedAt.After(out[j].CommittedAt)
		}
		return out[i].Code < out[j].Code
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) UpdateBatchSettings(_ context.Context, code string, s vault.Settings, deleteAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[code]
	if !ok {
		return vault.ErrNotFound
	}
	b.Settings = s
	b.DeleteAt = deleteAt
	return nil
}

func (m *memoryStore) DeleteExpired(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var codes []string
	for code, b := range m.batches {
		if b.Expired(now) {
			codes = append(codes, code)
			delete(m.batches, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func (m *memoryStore) GlobalSettings(context.Context) (vault.Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.global == nil {
		return vault.Settings{}, false, nil
	}
	return *m.global, true, nil
}

func (m *memoryStore) PutGlobalSettings(_ context.Context, s vault.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = &s
	return nil
}

func (m *memoryStore) UpsertConsumer(_ context.Context, c vault.Consumer, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mc, ok := m.consumers[c.ID]; ok {
		mc.c.DisplayName = c.DisplayName
		mc.lastSeen = at
		return nil
	}
	m.seq++
	m.consumers[c.ID] = &memConsumer{c: c, seq: m.seq, firstSeen: at, lastSeen: at}
	return nil
}

func (m *memoryStore) ListConsumers(context.Context) ([]vault.Consumer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*memConsumer, 0, len(m.consumers))
	for _, mc := range m.consumers {
		all = append(all, mc)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	out := make([]vault.Consumer, len(all))
	for i, mc := range all {
		out[i] = mc.c
	}
	return out, nil
}

func (m *memoryStore) Stats(context.Context) (vault.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := vault.Stats{Batches: len(m.batches), Consumers: len(m.consumers)}
	for _, b := range m.batches {
		st.Items += len(b.Items)
	}
	return st, nil
}

func (m *memoryStore) Close() error { return nil }
