package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
)

func job(id, user string) *domain.Job {
	return &domain.Job{JobID: id, UserID: user, Status: domain.Processing}
}

func TestCache_PutGetCopies(t *testing.T) {
	c := New(8)
	j := job("J1", "u1")
	c.Put(j)

	j.Status = domain.Failed
	got, ok := c.Get("J1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Status != domain.Processing {
		t.Errorf("cache shared caller's pointer, status=%s", got.Status)
	}

	got.Status = domain.Completed
	again, _ := c.Get("J1")
	if again.Status != domain.Processing {
		t.Errorf("cache returned internal pointer, status=%s", again.Status)
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2) // single shard
	c.Put(job("a", "u"))
	c.Put(job("b", "u"))
	c.Get("a")
	c.Put(job("c", "u"))

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, id := range []string{"a", "c"} {
		if _, ok := c.Get(id); !ok {
			t.Errorf("expected %s to be cached", id)
		}
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
}

func TestCache_Bounded(t *testing.T) {
	c := New(64)
	for i := 0; i < 1000; i++ {
		c.Put(job(fmt.Sprintf("job-%d", i), "u"))
	}
	// each shard rounds its capacity up
	if n := c.Len(); n > 64 {
		t.Errorf("cache grew to %d entries", n)
	}
}

func TestCache_Disabled(t *testing.T) {
	c := New(0)
	c.Put(job("a", "u"))
	if _, ok := c.Get("a"); ok {
		t.Error("disabled cache returned a hit")
	}
}

func TestCache_DeleteFunc(t *testing.T) {
	c := New(100)
	c.Put(job("a", "u1"))
	c.Put(job("b", "u1"))
	c.Put(job("c", "u2"))

	n := c.DeleteFunc(func(j *domain.Job) bool { return j.UserID == "u1" })
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("u2 entry removed")
	}
	c.Delete("c")
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := New(128)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("%d-%d", w, i%20)
				c.Put(job(id, "u"))
				c.Get(id)
				if i%7 == 0 {
					c.Delete(id)
				}
			}
		}(w)
	}
	wg.Wait()
}
