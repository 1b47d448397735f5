package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration. Values come from an optional YAML
// file and are overridden by environment variables.
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Rooms struct {
		MaxMembers    int           `yaml:"max_members"`
		IdleTimeout   time.Duration `yaml:"idle_timeout"`
		FinishedGrace time.Duration `yaml:"finished_grace"`
		ReapInterval  time.Duration `yaml:"reap_interval"`
		HostTokenTTL  time.Duration `yaml:"host_token_ttl"`
		// HostTokenSecret signs host tokens. Empty means a random per-process secret.
		HostTokenSecret string `yaml:"host_token_secret"`
	} `yaml:"rooms"`

	// Redis holds the room mirror settings. An empty Addr disables the mirror.
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`

	// NATS holds the cross-instance bus settings. An empty URL disables the bus.
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	// Database toggles the Postgres backed quiz and score gateways. Connection
	// settings come from dbconfig.
	Database struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"database"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	var c Config
	c.Server.Port = "8080"
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Log.Level = "info"
	c.Rooms.MaxMembers = 200
	c.Rooms.IdleTimeout = 30 * time.Minute
	c.Rooms.FinishedGrace = 2 * time.Minute
	c.Rooms.ReapInterval = time.Minute
	c.Rooms.HostTokenTTL = 12 * time.Hour
	c.Redis.KeyPrefix = "quizlive:room:"
	c.NATS.SubjectPrefix = "quiz.rooms"
	return &c
}

// Load reads path, if non-empty, on top of the defaults and applies
// environment overrides.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Rooms.MaxMembers = getEnvAsInt("ROOM_MAX_MEMBERS", c.Rooms.MaxMembers)
	c.Rooms.IdleTimeout = getEnvAsDuration("ROOM_IDLE_TIMEOUT", c.Rooms.IdleTimeout)
	c.Rooms.FinishedGrace = getEnvAsDuration("ROOM_FINISHED_GRACE", c.Rooms.FinishedGrace)
	c.Rooms.ReapInterval = getEnvAsDuration("ROOM_REAP_INTERVAL", c.Rooms.ReapInterval)
	c.Rooms.HostTokenTTL = getEnvAsDuration("HOST_TOKEN_TTL", c.Rooms.HostTokenTTL)
	c.Rooms.HostTokenSecret = getEnv("HOST_TOKEN_SECRET", c.Rooms.HostTokenSecret)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	c.Database.Enabled = getEnvAsBool("DB_ENABLED", c.Database.Enabled)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Rooms.MaxMembers < 0 {
		return fmt.Errorf("rooms.max_members must not be negative, got %d", c.Rooms.MaxMembers)
	}
	if c.Rooms.ReapInterval <= 0 {
		return fmt.Errorf("rooms.reap_interval must be positive, got %s", c.Rooms.ReapInterval)
	}
	if c.Rooms.HostTokenTTL <= 0 {
		return fmt.Errorf("rooms.host_token_ttl must be positive, got %s", c.Rooms.HostTokenTTL)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
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
