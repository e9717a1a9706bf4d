package lock

import (
	"context"
	"sync"
)

// MemoryLocker is a process-local Locker for single instance deployments.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]uint64
	next uint64
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]uint64)}
}

func (m *MemoryLocker) Acquire(_ context.Context, key string) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, ErrNotAcquired
	}
	m.next++
	m.held[key] = m.next
	return &memoryLease{locker: m, key: key, token: m.next}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  uint64
}

func (l *memoryLease) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if l.locker.held[l.key] == l.token {
		delete(l.locker.held, l.key)
	}
	return nil
}
