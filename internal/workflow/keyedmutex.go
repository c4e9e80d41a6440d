package workflow

import (
	"fmt"
	"sync"
	"time"
)

// keyedMutex serializes work per key (stage id, reference tuple) without
// a global lock, so decisions on unrelated stages run in parallel.
// Acquisition is bounded: a caller that cannot get the key's lock within
// the timeout receives ErrLockTimeout instead of hanging.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*keyLock),
	}
}

// Acquire takes the lock for key, waiting at most timeout. On success it
// returns a release function that must be called exactly once.
func (m *keyedMutex) Acquire(key string, timeout time.Duration) (func(), error) {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = lock
	}
	lock.refs++
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case lock.sem <- struct{}{}:
		return func() {
			<-lock.sem
			m.put(key, lock)
		}, nil
	case <-timer.C:
		m.put(key, lock)
		return nil, fmt.Errorf("%w: key %s after %s", ErrLockTimeout, key, timeout)
	}
}

// put drops one reference and removes the entry once unused, keeping the
// map from growing with every stage ever touched
func (m *keyedMutex) put(key string, lock *keyLock) {
	m.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}
