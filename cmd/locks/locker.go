// Package locks provides the single-flight guard for close-cycle runs.
package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrLocked is returned when another holder owns the key
	ErrLocked = errors.New("lock is held by another run")
	// ErrLockLost is reported by a lease whose key expired or was taken over
	ErrLockLost = errors.New("lock ownership lost")
)

// Lease is ownership of one key. Err turns non-nil once ownership is gone.
type Lease interface {
	Release()
	Err() error
}

// Locker grants exclusive ownership of a key until the lease is released
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// LocalLocker guards keys within a single process
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an empty process-local locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

type localLease struct {
	once    sync.Once
	release func()
}

func (l *localLease) Release() { l.once.Do(l.release) }

// Err is always nil, a process-local key cannot expire
func (l *localLease) Err() error { return nil }

// Acquire fails fast with ErrLocked instead of waiting
func (l *LocalLocker) Acquire(_ context.Context, key string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	l.held[key] = struct{}{}

	return &localLease{release: func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}}, nil
}

// Chain acquires every locker in order and releases in reverse
type Chain []Locker

type chainLease []Lease

func (c chainLease) Release() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].Release()
	}
}

func (c chainLease) Err() error {
	for _, lease := range c {
		if err := lease.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Acquire holds all keys or none
func (c Chain) Acquire(ctx context.Context, key string) (Lease, error) {
	leases := make(chainLease, 0, len(c))
	for _, locker := range c {
		lease, err := locker.Acquire(ctx, key)
		if err != nil {
			leases.Release()
			return nil, err
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

// CloseCycleKey is the key that serialises close-cycle runs of one report kind
func CloseCycleKey(kind string) string {
	return "close-cycle:" + kind
}
