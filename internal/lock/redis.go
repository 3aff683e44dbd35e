package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = r.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Redis is a Locker shared by every scheduler and API process pointed at the
// same Redis. Locks expire after ttl so a crashed holder cannot wedge a job.
type Redis struct {
	rdb    r.Cmdable
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger *zap.Logger
}

type RedisOption func(*Redis)

// WithLogger reports failed releases.
func WithLogger(l *zap.Logger) RedisOption { return func(x *Redis) { x.logger = l } }

func NewRedis(rdb r.Cmdable, ttl time.Duration, opts ...RedisOption) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	l := &Redis{rdb: rdb, ttl: ttl, retry: 50 * time.Millisecond, prefix: "joblock:", logger: zap.NewNop()}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "lock: acquire %s", key)
		}
		if ok {
			break
		}
		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return func() {
		if err := l.release(k, token); err != nil {
			l.logger.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// release deletes k if it still carries token. A lock that expired and was
// taken by someone else is reported as lost.
func (l *Redis) release(k, token string) error {
	// fresh context so a cancelled caller still unlocks
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.rdb, []string{k}, token).Int64()
	if err != nil {
		return errors.Wrapf(err, "lock: release %s", k)
	}
	if n == 0 {
		return errors.Errorf("lock: %s expired before release", k)
	}
	return nil
}
