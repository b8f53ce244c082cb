// Package appconfig loads service settings from config.yaml and the environment.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// TimeControlPreset is a named base/increment pair offered to players.
type TimeControlPreset struct {
	Name      string `yaml:"name" json:"name"`
	Base      int    `yaml:"base" json:"base"`           // seconds
	Increment int    `yaml:"increment" json:"increment"` // seconds per move
}

type ServerConfig struct {
	Port           int    `yaml:"port"`
	AllowDevHeader bool   `yaml:"allow_dev_header"`
	JWTSecret      string `yaml:"jwt_secret"`
	JWTIssuer      string `yaml:"jwt_issuer"`
}

type MatchConfig struct {
	Grace         time.Duration `yaml:"grace"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepBatch    int           `yaml:"sweep_batch"`
	Workers       int           `yaml:"workers"`
	APIURL        string        `yaml:"api_url"`
}

type QueueConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type ClockSessionConfig struct {
	Store         string        `yaml:"store"` // memory or redis
	PollInterval  time.Duration `yaml:"poll_interval"`
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

type Config struct {
	LogLevel     string              `yaml:"log_level"`
	NATSURL      string              `yaml:"nats_url"`
	AMQPURL      string              `yaml:"amqp_url"`
	Server       ServerConfig        `yaml:"server"`
	Match        MatchConfig         `yaml:"match"`
	Queue        QueueConfig         `yaml:"queue"`
	ClockSession ClockSessionConfig  `yaml:"clock_session"`
	Presets      []TimeControlPreset `yaml:"presets"`
}

// Default returns the settings used when neither file nor environment says otherwise.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:           8080,
			AllowDevHeader: true,
			JWTIssuer:      "gambit",
		},
		Match: MatchConfig{
			Grace:         30 * time.Second,
			SweepInterval: 15 * time.Second,
			SweepBatch:    200,
			Workers:       4,
			APIURL:        "http://localhost:8080",
		},
		Queue: QueueConfig{
			PollInterval: 2 * time.Second,
		},
		ClockSession: ClockSessionConfig{
			Store:        "memory",
			PollInterval: 500 * time.Millisecond,
			TTL:          12 * time.Hour,
			RedisAddr:    "localhost:6379",
		},
		Presets: []TimeControlPreset{
			{Name: "bullet", Base: 60, Increment: 0},
			{Name: "blitz", Base: 180, Increment: 2},
			{Name: "blitz5", Base: 300, Increment: 0},
			{Name: "rapid", Base: 600, Increment: 5},
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Debug().Str("path", path).Msg("no config file, using defaults")
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)

	c.Server.Port = getEnvAsInt("PORT", c.Server.Port)
	c.Server.AllowDevHeader = getEnvAsBool("ALLOW_DEV_HEADER", c.Server.AllowDevHeader)
	c.Server.JWTSecret = getEnv("JWT_SECRET", c.Server.JWTSecret)

	c.Match.Grace = getEnvAsDuration("GRACE_PERIOD", c.Match.Grace)
	c.Match.SweepInterval = getEnvAsDuration("SWEEP_INTERVAL", c.Match.SweepInterval)
	c.Match.Workers = getEnvAsInt("ORCHESTRATOR_WORKERS", c.Match.Workers)
	c.Match.APIURL = getEnv("MATCH_API_URL", c.Match.APIURL)

	c.Queue.PollInterval = getEnvAsDuration("QUEUE_POLL_INTERVAL", c.Queue.PollInterval)

	c.ClockSession.Store = getEnv("CLOCK_SESSION_STORE", c.ClockSession.Store)
	c.ClockSession.TTL = getEnvAsDuration("CLOCK_SESSION_TTL", c.ClockSession.TTL)
	c.ClockSession.RedisAddr = getEnv("REDIS_ADDR", c.ClockSession.RedisAddr)
	c.ClockSession.RedisPassword = getEnv("REDIS_PASSWORD", c.ClockSession.RedisPassword)
	c.ClockSession.RedisDB = getEnvAsInt("REDIS_DB", c.ClockSession.RedisDB)
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	if c.Match.Grace <= 0 {
		return fmt.Errorf("match.grace must be positive")
	}
	if c.Match.SweepInterval <= 0 {
		return fmt.Errorf("match.sweep_interval must be positive")
	}
	if c.Queue.PollInterval <= 0 || c.ClockSession.PollInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	switch c.ClockSession.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("clock_session.store must be memory or redis, got %q", c.ClockSession.Store)
	}
	for _, p := range c.Presets {
		if p.Base <= 0 || p.Increment < 0 {
			return fmt.Errorf("preset %q has an invalid time control", p.Name)
		}
	}
	return nil
}

// Preset looks a time control up by name.
func (c Config) Preset(name string) (TimeControlPreset, bool) {
	for _, p := range c.Presets {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return TimeControlPreset{}, false
}

// SetupLogging points the global zerolog logger at a console writer on
// stderr and applies the configured level.
func SetupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
