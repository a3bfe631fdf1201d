package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
	Storage  Storage  `yaml:"storage"`
	Redis    Redis    `yaml:"redis"`
	Postgres Postgres `yaml:"postgres"`
	Cache    Cache    `yaml:"cache"`
	Auth     Auth     `yaml:"auth"`
	Game     Game     `yaml:"game"`
}

type Server struct {
	Port         string `yaml:"port" env:"QUIZ_SERVER_PORT"`
	ReadTimeout  string `yaml:"read_timeout" env:"QUIZ_SERVER_READ_TIMEOUT"`
	WriteTimeout string `yaml:"write_timeout" env:"QUIZ_SERVER_WRITE_TIMEOUT"`
}

type Log struct {
	Level  string `yaml:"level" env:"QUIZ_LOG_LEVEL"`
	Format string `yaml:"format" env:"QUIZ_LOG_FORMAT"`
}

type Storage struct {
	Driver     string `yaml:"driver" env:"QUIZ_STORAGE_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" env:"QUIZ_SQLITE_PATH"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"QUIZ_REDIS_ADDR"`
	Password string `yaml:"password" env:"QUIZ_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"QUIZ_REDIS_DB"`
}

type Postgres struct {
	URL string `yaml:"url" env:"QUIZ_POSTGRES_URL"`
}

type Cache struct {
	QuestionTTL string `yaml:"question_ttl" env:"QUIZ_CACHE_QUESTION_TTL"`
}

type Auth struct {
	Secret   string `yaml:"secret" env:"QUIZ_AUTH_SECRET"`
	TokenTTL string `yaml:"token_ttl" env:"QUIZ_AUTH_TOKEN_TTL"`
}

type Game struct {
	LeaderboardTop int `yaml:"leaderboard_top" env:"QUIZ_GAME_LEADERBOARD_TOP"`
}

// Load reads YAML config from path, then applies environment overrides.
// A missing file is not an error; defaults and the environment still apply.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
		if c.Postgres.URL != "" {
			c.Storage.Driver = DriverPostgres
		}
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/quiz.db"
	}
	if c.Game.LeaderboardTop <= 0 {
		c.Game.LeaderboardTop = 10
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return errors.New("postgres storage requires postgres.url")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.Secret != "" && len(c.Auth.Secret) < 16 {
		return errors.New("auth.secret must be at least 16 bytes")
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
