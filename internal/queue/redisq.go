package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
)

const (
	dueKey  = "poll:due"  // ZSET job_id -> next poll (unix ms)
	typeKey = "poll:type" // HASH job_id -> type name
)

type RedisQ struct{ rdb r.Cmdable }

func New(rdb r.Cmdable) *RedisQ { return &RedisQ{rdb} }

func (q *RedisQ) Schedule(ctx context.Context, e Entry, at time.Time) error {
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, typeKey, e.JobID, e.Type)
	pipe.ZAdd(ctx, dueKey, r.Z{Score: float64(at.UnixMilli()), Member: e.JobID})
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "queue: schedule %s", e.JobID)
}

func (q *RedisQ) Add(ctx context.Context, e Entry, at time.Time) (bool, error) {
	pipe := q.rdb.TxPipeline()
	added := pipe.ZAddNX(ctx, dueKey, r.Z{Score: float64(at.UnixMilli()), Member: e.JobID})
	pipe.HSetNX(ctx, typeKey, e.JobID, e.Type)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrapf(err, "queue: add %s", e.JobID)
	}
	return added.Val() == 1, nil
}

func (q *RedisQ) Due(ctx context.Context, now time.Time, batch int64) ([]Entry, error) {
	// fetch due IDs
	ids, err := q.rdb.ZRangeByScore(ctx, dueKey, &r.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now.UnixMilli()), Offset: 0, Count: batch,
	}).Result()
	if err != nil || len(ids) == 0 {
		return nil, errors.Wrap(err, "queue: due")
	}

	// whoever removes the member owns it
	pipe := q.rdb.Pipeline()
	rems := make([]*r.IntCmd, len(ids))
	for i, id := range ids {
		rems[i] = pipe.ZRem(ctx, dueKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "queue: claim")
	}
	claimed := make([]string, 0, len(ids))
	for i, id := range ids {
		if rems[i].Val() == 1 {
			claimed = append(claimed, id)
		}
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	types, err := q.rdb.HMGet(ctx, typeKey, claimed...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "queue: load types")
	}
	out := make([]Entry, len(claimed))
	for i, id := range claimed {
		out[i].JobID = id
		if s, ok := types[i].(string); ok {
			out[i].Type = s
		}
	}
	return out, nil
}

func (q *RedisQ) Remove(ctx context.Context, jobID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, dueKey, jobID)
	pipe.HDel(ctx, typeKey, jobID)
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "queue: remove %s", jobID)
}
