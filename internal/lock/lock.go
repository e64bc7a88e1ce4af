// Package lock serializes dedup runs per tenant.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned when another run holds the tenant's lock.
var ErrHeld = errors.New("tenant lock is held by another run")

// Release frees a held lock. It is safe to call more than once.
type Release func()

// Locker grants at most one holder per tenant.
type Locker interface {
	TryAcquire(ctx context.Context, tenantID string) (Release, error)
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryAcquire takes the tenant's lock or returns ErrHeld.
func (l *LocalLocker) TryAcquire(_ context.Context, tenantID string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[tenantID]; ok {
		return nil, ErrHeld
	}
	l.held[tenantID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, tenantID)
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether the tenant's lock is currently taken.
func (l *LocalLocker) Held(tenantID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[tenantID]
	return ok
}
