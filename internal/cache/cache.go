// Package cache holds a bounded, process-local mirror of recently touched
// jobs. It is never authoritative: entries may be evicted or dropped at any
// time and the store wins on any divergence.
package cache

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
)

const defaultShards = 16

type Cache struct {
	shards []*shard
}

type shard struct {
	mu    sync.Mutex
	limit int
	items map[string]*list.Element
	order *list.List // front is most recently used
}

// New returns a cache holding roughly size jobs. A size <= 0 disables
// caching: every lookup misses.
func New(size int) *Cache {
	n := defaultShards
	if size < n {
		n = 1
	}
	per := 0
	if size > 0 {
		per = (size + n - 1) / n
	}
	c := &Cache{shards: make([]*shard, n)}
	for i := range c.shards {
		c.shards[i] = &shard{limit: per, items: make(map[string]*list.Element), order: list.New()}
	}
	return c
}

func (c *Cache) shardFor(jobID string) *shard {
	return c.shards[xxhash.Sum64String(jobID)%uint64(len(c.shards))]
}

// Get returns a copy of the cached job.
func (c *Cache) Get(jobID string) (*domain.Job, bool) {
	s := c.shardFor(jobID)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[jobID]
	if !ok {
		return nil, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*domain.Job).Clone(), true
}

// Put stores a copy of j, evicting the least recently used entry of its
// shard when full.
func (c *Cache) Put(j *domain.Job) {
	if j == nil {
		return
	}
	s := c.shardFor(j.JobID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit == 0 {
		return
	}
	if el, ok := s.items[j.JobID]; ok {
		el.Value = j.Clone()
		s.order.MoveToFront(el)
		return
	}
	s.items[j.JobID] = s.order.PushFront(j.Clone())
	for s.order.Len() > s.limit {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*domain.Job).JobID)
	}
}

func (c *Cache) Delete(jobID string) {
	s := c.shardFor(jobID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[jobID]; ok {
		s.order.Remove(el)
		delete(s.items, jobID)
	}
}

// DeleteFunc drops every entry for which match returns true.
func (c *Cache) DeleteFunc(match func(*domain.Job) bool) int {
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for id, el := range s.items {
			if match(el.Value.(*domain.Job)) {
				s.order.Remove(el)
				delete(s.items, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}
