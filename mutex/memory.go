package mutex

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type memoryMutex struct {
	mapLock sync.Mutex
	keys    map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewMemoryMutex is a keyed mutex for a single process. Entries of keys nobody waits for are dropped.
func NewMemoryMutex() Mutex {
	return &memoryMutex{keys: make(map[string]*keyLock)}
}

func (m *memoryMutex) Lock(ctx context.Context, key string) (Lock, error) {
	m.mapLock.Lock()
	kl, exists := m.keys[key]
	if !exists {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		m.keys[key] = kl
	}
	kl.refs++
	m.mapLock.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return &memoryLock{mutex: m, key: key, keyLock: kl}, nil
	case <-ctx.Done():
		m.unref(key, kl)
		return nil, WithMutexErr(errors.Wrapf(ctx.Err(), "acquiring lock for %s", key))
	}
}

func (m *memoryMutex) unref(key string, kl *keyLock) {
	m.mapLock.Lock()
	defer m.mapLock.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(m.keys, key)
	}
}

type memoryLock struct {
	mutex    *memoryMutex
	key      string
	keyLock  *keyLock
	released bool
	mu       sync.Mutex
}

func (l *memoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return WithMutexErr(errors.Errorf("lock for %s is already released", l.key))
	}

	l.released = true
	<-l.keyLock.ch
	l.mutex.unref(l.key, l.keyLock)

	return nil
}
