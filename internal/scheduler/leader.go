package scheduler

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Leader reports whether this process may run scheduler ticks.
type Leader interface {
	Acquire(ctx context.Context) (bool, error)
}

// AdvisoryLockKey is the Postgres advisory lock shared by all schedulers.
const AdvisoryLockKey int64 = 42

// PGLeader elects a single scheduler with a session-level Postgres advisory
// lock. The lock lives on one pooled connection which is held for as long as
// leadership is.
type PGLeader struct {
	pool *pgxpool.Pool
	key  int64

	mu   sync.Mutex
	conn *pgxpool.Conn
}

func NewPGLeader(pool *pgxpool.Pool, key int64) *PGLeader {
	return &PGLeader{pool: pool, key: key}
}

func (l *PGLeader) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		// session gone, and the lock with it
		l.conn.Release()
		l.conn = nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, errors.Wrap(err, "leader: acquire conn")
	}
	var ok bool
	if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return false, errors.Wrap(err, "leader: try lock")
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release gives up leadership.
func (l *PGLeader) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.Exec(ctx, "select pg_advisory_unlock($1)", l.key)
	l.conn.Release()
	l.conn = nil
	return errors.Wrap(err, "leader: unlock")
}
