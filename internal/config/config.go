package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"SERVER_PORT"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`
	Redis struct {
		Addr       string `yaml:"addr" env:"REDIS_ADDR"`
		Password   string `yaml:"password" env:"REDIS_PASSWORD"`
		DB         int    `yaml:"db" env:"REDIS_DB"`
		SessionTTL string `yaml:"session_ttl" env:"REDIS_SESSION_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"POSTGRES_URL"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL  string `yaml:"ttl" env:"QUIZ_TTL"`
		File string `yaml:"file" env:"QUIZ_FILE"`
	} `yaml:"quiz"`
	Game struct {
		AllowLateJoin   bool `yaml:"allow_late_join" env:"GAME_ALLOW_LATE_JOIN"`
		LeaderboardSize int  `yaml:"leaderboard_size" env:"GAME_LEADERBOARD_SIZE"`
		PINAttempts     int  `yaml:"pin_attempts" env:"GAME_PIN_ATTEMPTS"`
	} `yaml:"game"`
	Store struct {
		Driver string `yaml:"driver" env:"STORE_DRIVER"`
	} `yaml:"store"`
	Bus struct {
		Driver string `yaml:"driver" env:"BUS_DRIVER"`
	} `yaml:"bus"`
}

// Load reads YAML config from path, then applies environment overrides.
// A missing file is not an error: defaults plus environment are used.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// LogLevel parses log.level, defaulting to INFO.
func (c Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// StoreDriver picks the session store: explicit driver, else the strongest
// configured backend.
func (c Config) StoreDriver() string {
	switch {
	case c.Store.Driver != "":
		return c.Store.Driver
	case c.Postgres.URL != "":
		return DriverPostgres
	case c.Redis.Addr != "":
		return DriverRedis
	default:
		return DriverMemory
	}
}

// BusDriver picks the fan-out bus; Redis whenever it is configured.
func (c Config) BusDriver() string {
	switch {
	case c.Bus.Driver != "":
		return c.Bus.Driver
	case c.Redis.Addr != "":
		return DriverRedis
	default:
		return DriverMemory
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
