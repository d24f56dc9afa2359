package session

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned when the lock could not be acquired before the
// context ended.
var ErrBusy = errors.New("session busy")

type keyLock struct {
	sem  chan struct{}
	refs int
}

// Locker serialises work per session id.
type Locker interface {
	// Lock waits for exclusive access to key. The returned func releases
	// it and must be called exactly once.
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker serialises work per key within one process. Unrelated keys
// never contend beyond the brief map access, and idle keys hold no memory.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock implements Locker.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, errors.Join(ErrBusy, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			l.release(key, kl)
		})
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// active returns the number of keys currently referenced.
func (l *LocalLocker) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
