// Package lock provides per-job advisory locks so a job never has two
// reconciliation cycles in flight.
package lock

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Locker acquires an exclusive lock on key, blocking until it is held or ctx
// is done. The returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

const localShards = 32

// Local is an in-process keyed mutex.
type Local struct {
	shards [localShards]localShard
}

type localShard struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{} // holds one token while the key is locked
	refs int
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	s := &l.shards[xxhash.Sum64String(key)%localShards]

	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*entry)
	}
	e, ok := s.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		s.locks[key] = e
	}
	e.refs++
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			release()
		})
	}, nil
}
