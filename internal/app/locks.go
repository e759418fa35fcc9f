package app

import "sync"

// sessionLocks serializes work on one PIN inside this process so events of a
// session are published in the order its updates were committed. Entries are
// dropped once no goroutine holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*pinLock
}

type pinLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*pinLock)}
}

func (l *sessionLocks) lock(pin string) func() {
	l.mu.Lock()
	entry, ok := l.locks[pin]
	if !ok {
		entry = &pinLock{}
		l.locks[pin] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, pin)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
