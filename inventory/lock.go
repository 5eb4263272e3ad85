package inventory

import (
	"context"
	"errors"
	"sync"
)

// ErrLockNotObtained is returned by a Locker when another holder owns the key.
var ErrLockNotObtained = errors.New("heal lock not obtained")

// Locker serializes heal passes for one aggregate key. Heal passes are
// idempotent, so a Locker is an optimization: when Lock fails the Healer logs
// a warning and proceeds without it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker serializes heals within one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

// Lock blocks until key is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ll, ok := l.locks[key]
	if !ok {
		ll = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = ll
	}
	ll.refs++
	l.mu.Unlock()

	select {
	case ll.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, ll, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, ll, true) })
	}, nil
}

func (l *LocalLocker) release(key string, ll *localLock, held bool) {
	if held {
		<-ll.ch
	}
	l.mu.Lock()
	ll.refs--
	if ll.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
