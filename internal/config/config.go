package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/lobby-server/internal/engine"
)

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":3000"`

	Room RoomConfig
	WS   WSConfig

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type RoomConfig struct {
	MaxPlayers    int           `env:"ROOM_MAX_PLAYERS" envDefault:"4"`
	MaxSpectators int           `env:"ROOM_MAX_SPECTATORS" envDefault:"8"`
	MinPlayers    int           `env:"ROOM_MIN_PLAYERS" envDefault:"2"`
	IdleTimeout   time.Duration `env:"ROOM_IDLE_TIMEOUT" envDefault:"30s"`
}

type WSConfig struct {
	OutboxSize     int           `env:"WS_OUTBOX_SIZE" envDefault:"32"`
	ReadLimit      int64         `env:"WS_READ_LIMIT" envDefault:"4096"`
	WriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"5s"`
	PingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"20s"`
	OriginPatterns []string      `env:"WS_ORIGIN_PATTERNS" envSeparator:","`
}

// Load reads the optional dotenv files (".env" when none are given) and then
// the environment. Variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs error
	if c.Room.MinPlayers < 2 {
		errs = multierr.Append(errs, fmt.Errorf("ROOM_MIN_PLAYERS must be at least 2, got %d", c.Room.MinPlayers))
	}
	if c.Room.MaxPlayers < c.Room.MinPlayers {
		errs = multierr.Append(errs, fmt.Errorf("ROOM_MAX_PLAYERS (%d) must be >= ROOM_MIN_PLAYERS (%d)",
			c.Room.MaxPlayers, c.Room.MinPlayers))
	}
	if c.Room.MaxSpectators < 0 {
		errs = multierr.Append(errs, fmt.Errorf("ROOM_MAX_SPECTATORS must not be negative, got %d", c.Room.MaxSpectators))
	}
	if c.WS.OutboxSize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("WS_OUTBOX_SIZE must be positive, got %d", c.WS.OutboxSize))
	}
	if c.WS.ReadLimit <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("WS_READ_LIMIT must be positive, got %d", c.WS.ReadLimit))
	}
	if c.WS.WriteTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("WS_WRITE_TIMEOUT must be positive, got %s", c.WS.WriteTimeout))
	}
	if c.ShutdownTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout))
	}
	return errs
}

func (c Config) Limits() engine.Limits {
	return engine.Limits{
		MaxPlayers:    c.Room.MaxPlayers,
		MaxSpectators: c.Room.MaxSpectators,
		MinPlayers:    c.Room.MinPlayers,
	}
}
