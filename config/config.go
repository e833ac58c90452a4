// Package config reads the process configuration of the command center binary from the environment.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/log"
	"github.com/pkg/errors"
)

type StoreDriver string

const (
	MemoryDriver StoreDriver = "memory"
	MySQLDriver  StoreDriver = "mysql"
	PGDriver     StoreDriver = "pg"
	SQLiteDriver StoreDriver = "sqlite"
	RedisDriver  StoreDriver = "redis"
)

type Config struct {
	StoreDriver     StoreDriver   `env:"CC_STORE_DRIVER" envDefault:"memory"`
	DatabaseDSN     string        `env:"CC_DB_DSN"`
	RedisAddr       string        `env:"CC_REDIS_ADDR" envDefault:"localhost:6379"`
	HTTPAddr        string        `env:"CC_HTTP_ADDR" envDefault:":8080"`
	SweepSchedule   string        `env:"CC_SWEEP_SCHEDULE" envDefault:"@every 30s"`
	LogLevel        string        `env:"CC_LOG_LEVEL" envDefault:"info"`
	AuditTrail      bool          `env:"CC_AUDIT_TRAIL" envDefault:"false"`
	ShutdownTimeout time.Duration `env:"CC_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment and validates the combination of settings.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parsing environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case MemoryDriver, RedisDriver:
	case MySQLDriver, PGDriver, SQLiteDriver:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return ccErrors.InvalidArgument("CC_DB_DSN is required for store driver %s", c.StoreDriver)
		}
	default:
		return ccErrors.InvalidArgument("unknown store driver %q", c.StoreDriver)
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return ccErrors.InvalidArgument("unknown log level %q", c.LogLevel)
	}

	if c.ShutdownTimeout <= 0 {
		return ccErrors.InvalidArgument("CC_SHUTDOWN_TIMEOUT must be positive")
	}

	return nil
}

// Level is the parsed CC_LOG_LEVEL.
func (c *Config) Level() log.Level {
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// SweepOff disables the deadline sweep. An empty CC_SWEEP_SCHEDULE falls back to the default schedule.
const SweepOff = "off"

func (c *Config) SweepEnabled() bool {
	schedule := strings.TrimSpace(c.SweepSchedule)
	return schedule != "" && schedule != SweepOff
}
