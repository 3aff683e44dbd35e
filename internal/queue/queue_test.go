package queue

import (
	"context"
	"os"
	"testing"
	"time"

	r "github.com/redis/go-redis/v9"
)

func testSchedule(t *testing.T, q Schedule) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(q.Schedule(ctx, Entry{JobID: "late", Type: "reel"}, now.Add(time.Hour)))
	must(q.Schedule(ctx, Entry{JobID: "second", Type: "reel"}, now.Add(-time.Second)))
	must(q.Schedule(ctx, Entry{JobID: "first", Type: "quote"}, now.Add(-time.Minute)))
	must(q.Schedule(ctx, Entry{JobID: "gone", Type: "reel"}, now.Add(-time.Minute)))
	must(q.Remove(ctx, "gone"))

	due, err := q.Due(ctx, now, 10)
	must(err)
	if len(due) != 2 {
		t.Fatalf("expected 2 due entries, got %+v", due)
	}
	if due[0] != (Entry{JobID: "first", Type: "quote"}) || due[1] != (Entry{JobID: "second", Type: "reel"}) {
		t.Errorf("unexpected order or content: %+v", due)
	}

	again, err := q.Due(ctx, now, 10)
	must(err)
	if len(again) != 0 {
		t.Errorf("due entries were claimed twice: %+v", again)
	}

	// rescheduling moves the entry
	must(q.Schedule(ctx, Entry{JobID: "late", Type: "reel"}, now.Add(-time.Second)))
	due, err = q.Due(ctx, now, 1)
	must(err)
	if len(due) != 1 || due[0].JobID != "late" {
		t.Errorf("expected rescheduled entry, got %+v", due)
	}
	must(q.Remove(ctx, "late"))

	// Add never moves an existing entry
	must(q.Schedule(ctx, Entry{JobID: "kept", Type: "reel"}, now.Add(time.Hour)))
	added, err := q.Add(ctx, Entry{JobID: "kept", Type: "reel"}, now.Add(-time.Minute))
	must(err)
	if added {
		t.Error("Add replaced an existing entry")
	}
	added, err = q.Add(ctx, Entry{JobID: "missing", Type: "quote"}, now.Add(-time.Minute))
	must(err)
	if !added {
		t.Error("Add skipped an unscheduled job")
	}
	due, err = q.Due(ctx, now, 10)
	must(err)
	if len(due) != 1 || due[0] != (Entry{JobID: "missing", Type: "quote"}) {
		t.Errorf("expected only the added entry due, got %+v", due)
	}
	must(q.Remove(ctx, "kept"))
}

func TestMemory(t *testing.T) {
	q := NewMemory()
	testSchedule(t, q)
	if q.Len() != 0 {
		t.Errorf("expected empty schedule, got %d", q.Len())
	}
}

func TestRedisQ(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := r.NewClient(&r.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	ctx := context.Background()
	rdb.Del(ctx, dueKey, typeKey)
	testSchedule(t, New(rdb))
}
