package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"

	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"dev"`
	APIAddr       string `env:"API_ADDR" envDefault:":8080"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"jobs.db"`
	// LockDriver defaults to redis when REDIS_ADDR is set.
	LockDriver    string `env:"LOCK_DRIVER"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	StatusTimeout   time.Duration `env:"STATUS_TIMEOUT" envDefault:"10s"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	PollBatch       int64         `env:"POLL_BATCH" envDefault:"200"`
	PollConcurrency int           `env:"POLL_CONCURRENCY" envDefault:"16"`
	CacheSize       int           `env:"CACHE_SIZE" envDefault:"4096"`
	LockTTL         time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	// RunScheduler starts the background poller inside the API process.
	RunScheduler bool `env:"RUN_SCHEDULER" envDefault:"false"`
}

func Load() Config {
	c, err := LoadE()
	if err != nil {
		log.Fatal(err)
	}
	return c
}

// LoadE parses the environment and checks the driver settings.
func LoadE() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, errors.Wrap(err, "config")
	}
	if c.LockDriver == "" {
		c.LockDriver = LockLocal
		if c.RedisAddr != "" {
			c.LockDriver = LockRedis
		}
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: POSTGRES_DSN is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH is required for the sqlite store")
		}
	case StoreMemory:
	default:
		return errors.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.LockDriver {
	case LockLocal:
		if c.RedisAddr != "" {
			return errors.New("config: LOCK_DRIVER=local cannot guard jobs polled through the shared redis schedule")
		}
	case LockRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR is required for redis locks")
		}
	default:
		return errors.Errorf("config: unknown LOCK_DRIVER %q", c.LockDriver)
	}

	if c.StatusTimeout <= 0 || c.PollInterval <= 0 || c.LockTTL <= 0 {
		return errors.New("config: STATUS_TIMEOUT, POLL_INTERVAL and LOCK_TTL must be positive")
	}
	return nil
}
