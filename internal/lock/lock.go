// Package lock provides the per-user serialization point. Lifecycle
// mutations for the same user must not interleave; acquiring the user's
// lock before touching provider or repository closes the lost-update
// window between read and conditional write.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Locker serializes lifecycle mutations per key. Acquire blocks until the
// lock is held or ctx expires; the returned release function must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ErrNotAcquired is returned when the lock could not be obtained before the
// context deadline.
var ErrNotAcquired = fmt.Errorf("lock not acquired before deadline")

// KeyedMutex is the in-process fallback used when no Redis URL is
// configured. Correct only for single-instance deployments.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an in-process per-key mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Acquire locks the per-key mutex. Entries are reference counted so the map
// does not grow with the user population.
func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		}, nil
	case <-ctx.Done():
		// The goroutine will still obtain the mutex eventually; release it
		// and drop the reference when it does.
		go func() {
			<-acquired
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		}()
		return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
	}
}

// retryInterval is how long acquirers back off between attempts.
const retryInterval = 25 * time.Millisecond
