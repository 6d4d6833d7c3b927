package upload

import "sync"

type (
	// A locker serializes operations per upload hash.
	// Merges are exclusive, chunk uploads are shared.
	locker struct {
		mu    sync.Mutex
		locks map[string]*entry
	}

	entry struct {
		sync.RWMutex
		refs int
	}
)

func newLocker() *locker {
	return &locker{
		locks: map[string]*entry{},
	}
}

// TryLock acquires the exclusive lock of hash. It fails with ErrConflict when the lock is held.
func (l *locker) TryLock(hash string) (func(), error) {
	e := l.acquire(hash)
	if !e.TryLock() {
		l.release(hash)
		return nil, ErrConflict
	}

	return func() {
		e.Unlock()
		l.release(hash)
	}, nil
}

// TryRLock acquires a shared lock of hash. It fails with ErrConflict when the exclusive lock is held.
func (l *locker) TryRLock(hash string) (func(), error) {
	e := l.acquire(hash)
	if !e.TryRLock() {
		l.release(hash)
		return nil, ErrConflict
	}

	return func() {
		e.RUnlock()
		l.release(hash)
	}, nil
}

func (l *locker) acquire(hash string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[hash]
	if !ok {
		e = &entry{}
		l.locks[hash] = e
	}
	e.refs++
	return e
}

func (l *locker) release(hash string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.locks[hash]
	e.refs--
	if e.refs == 0 {
		delete(l.locks, hash)
	}
}

func (l *locker) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
