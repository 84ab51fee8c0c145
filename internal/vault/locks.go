package vault

import "sync"

// ownerLocks serializes stage/commit/cancel per owner. Entries are dropped
// once no caller holds or waits on them.
type ownerLocks struct {
	mu sync.Mutex
	m  map[int64]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{m: map[int64]*ownerLock{}}
}

func (l *ownerLocks) lock(owner int64) func() {
	l.mu.Lock()
	ol := l.m[owner]
	if ol == nil {
		ol = &ownerLock{}
		l.m[owner] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.mu.Lock()
	return func() {
		ol.mu.Unlock()
		l.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(l.m, owner)
		}
		l.mu.Unlock()
	}
}
