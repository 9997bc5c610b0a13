package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeMock   Mode = "mock"   // scripted connector, no network
	ModeGemini Mode = "gemini" // Gemini API with an API key
	ModeVertex Mode = "vertex" // Vertex AI with a GCP project
)

const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	Mode Mode

	Port     string
	LogLevel string

	APIKey       string
	GCPProjectID string
	GCPLocation  string
	ModelName    string

	// StreamTimeout bounds one reply stream.
	StreamTimeout time.Duration

	// PersonaTemplate overrides the built-in persona when not empty.
	PersonaTemplate string

	StorageBackend string // "file", "sqlite", "redis" or "memory"
	StatePath      string // JSON file for the file backend
	SQLitePath     string
	RedisURL       string
}

// fileConfig is the optional TOML file pointed to by ENGIGEN_CONFIG_FILE.
type fileConfig struct {
	Model struct {
		Name          string `toml:"name"`
		StreamTimeout string `toml:"stream_timeout"`
	} `toml:"model"`
	Persona struct {
		Template string `toml:"template"`
	} `toml:"persona"`
	Storage struct {
		Backend    string `toml:"backend"`
		StatePath  string `toml:"state_path"`
		SQLitePath string `toml:"sqlite_path"`
		RedisURL   string `toml:"redis_url"`
	} `toml:"storage"`
}

func defaults() *Config {
	return &Config{
		Port:           "8080",
		LogLevel:       "info",
		GCPLocation:    "us-central1",
		ModelName:      "gemini-2.5-flash",
		StreamTimeout:  2 * time.Minute,
		StorageBackend: StorageFile,
		StatePath:      "./data/engigen_sessions.json",
		SQLitePath:     "./data/engigen.db",
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Load builds the config from defaults, then the optional TOML file, then env vars.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("ENGIGEN_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("ENGIGEN_PORT", getEnv("PORT", cfg.Port))
	cfg.LogLevel = getEnv("ENGIGEN_LOG_LEVEL", cfg.LogLevel)

	// The credential only ever comes from the environment.
	cfg.APIKey = getEnv("ENGIGEN_API_KEY", os.Getenv("GEMINI_API_KEY"))
	cfg.GCPProjectID = getEnv("ENGIGEN_GCP_PROJECT", cfg.GCPProjectID)
	cfg.GCPLocation = getEnv("ENGIGEN_GCP_LOCATION", cfg.GCPLocation)
	cfg.ModelName = getEnv("ENGIGEN_MODEL_NAME", cfg.ModelName)

	timeout, err := getDurationEnv("ENGIGEN_STREAM_TIMEOUT", cfg.StreamTimeout)
	if err != nil {
		return nil, err
	}
	cfg.StreamTimeout = timeout

	cfg.StorageBackend = strings.ToLower(getEnv("ENGIGEN_STORAGE_BACKEND", cfg.StorageBackend))
	cfg.StatePath = getEnv("ENGIGEN_STATE_PATH", cfg.StatePath)
	cfg.SQLitePath = getEnv("ENGIGEN_SQLITE_PATH", cfg.SQLitePath)
	cfg.RedisURL = getEnv("ENGIGEN_REDIS_URL", cfg.RedisURL)

	switch {
	case getBoolEnv("ENGIGEN_USE_MOCK_LLM", cfg.APIKey == "" && cfg.GCPProjectID == ""):
		cfg.Mode = ModeMock
	case cfg.GCPProjectID != "":
		cfg.Mode = ModeVertex
	default:
		cfg.Mode = ModeGemini
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	if fc.Model.Name != "" {
		c.ModelName = fc.Model.Name
	}
	if fc.Model.StreamTimeout != "" {
		d, err := time.ParseDuration(fc.Model.StreamTimeout)
		if err != nil {
			return fmt.Errorf("config file model.stream_timeout: %w", err)
		}
		c.StreamTimeout = d
	}
	if fc.Persona.Template != "" {
		c.PersonaTemplate = fc.Persona.Template
	}
	if fc.Storage.Backend != "" {
		c.StorageBackend = fc.Storage.Backend
	}
	if fc.Storage.StatePath != "" {
		c.StatePath = fc.Storage.StatePath
	}
	if fc.Storage.SQLitePath != "" {
		c.SQLitePath = fc.Storage.SQLitePath
	}
	if fc.Storage.RedisURL != "" {
		c.RedisURL = fc.Storage.RedisURL
	}
	return nil
}

// Validate checks combinations Load cannot default away.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageFile:
		if c.StatePath == "" {
			return fmt.Errorf("ENGIGEN_STATE_PATH is required for the file storage backend")
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("ENGIGEN_SQLITE_PATH is required for the sqlite storage backend")
		}
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("ENGIGEN_REDIS_URL is required for the redis storage backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.StreamTimeout <= 0 {
		return fmt.Errorf("stream timeout must be positive, got %s", c.StreamTimeout)
	}
	if c.Mode == ModeGemini && c.APIKey == "" {
		return fmt.Errorf("ENGIGEN_API_KEY must be set unless ENGIGEN_USE_MOCK_LLM=1")
	}
	return nil
}
