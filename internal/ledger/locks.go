package ledger

import "sync"

// keyedLocker hands out one mutex per account ID. Entries are dropped once
// no goroutine holds or waits on them.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*refLock)}
}

func (k *keyedLocker) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// lockPair acquires both keys in lexical order so that two transfers over
// the same pair can never wait on each other.
func (k *keyedLocker) lockPair(a, b string) func() {
	if b < a {
		a, b = b, a
	}
	unlockA := k.lock(a)
	unlockB := k.lock(b)
	return func() {
		unlockB()
		unlockA()
	}
}

func (k *keyedLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
