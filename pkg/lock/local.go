package lock

import (
	"context"
	"sync"
)

// LocalLocker guards keys inside this process before delegating to next, so
// two goroutines of one node never both hold a lease even when next is a NoopLocker.
type LocalLocker struct {
	next Locker
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker(next Locker) *LocalLocker {
	if next == nil {
		next = NoopLocker{}
	}
	return &LocalLocker{next: next, held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string) (Lease, error) {
	l.mu.Lock()
	if _, ok := l.held[key]; ok {
		l.mu.Unlock()
		return nil, ErrNotAcquired
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()

	lease, err := l.next.TryLock(ctx, key)
	if err != nil {
		l.release(key)
		return nil, err
	}
	return &localLease{parent: l, key: key, inner: lease}, nil
}

func (l *LocalLocker) release(key string) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}

type localLease struct {
	parent *LocalLocker
	key    string
	inner  Lease
	once   sync.Once
}

func (l *localLease) Unlock(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		err = l.inner.Unlock(ctx)
		l.parent.release(l.key)
	})
	return err
}
