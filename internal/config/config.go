package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type LLMBackend string

const (
	LLMBackendHTTP   LLMBackend = "http"
	LLMBackendGemini LLMBackend = "gemini"
	LLMBackendMock   LLMBackend = "mock"
)

type StorageBackend string

const (
	StorageMemory    StorageBackend = "memory"
	StorageBolt      StorageBackend = "bbolt"
	StorageSQLite    StorageBackend = "sqlite"
	StorageFirestore StorageBackend = "firestore"
	StorageSupabase  StorageBackend = "supabase"
)

type Config struct {
	Port string `env:"TAVERN_PORT" envDefault:"8080"`

	LLMBackend  LLMBackend `env:"TAVERN_LLM_BACKEND" envDefault:"http"`
	GeminiModel string     `env:"TAVERN_GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	// Origin is sent as referrer to providers that ask for attribution.
	Origin         string `env:"TAVERN_ORIGIN" envDefault:"http://localhost:5173"`
	TokenEstimates bool   `env:"TAVERN_TOKEN_ESTIMATES" envDefault:"false"`

	StorageBackend StorageBackend `env:"TAVERN_STORAGE_BACKEND" envDefault:"memory"`
	BoltPath       string         `env:"TAVERN_BOLT_PATH" envDefault:"tavern.db"`
	SQLitePath     string         `env:"TAVERN_SQLITE_PATH" envDefault:"tavern.sqlite"`
	GCPProjectID   string         `env:"TAVERN_GCP_PROJECT"`
	SupabaseURL    string         `env:"TAVERN_SUPABASE_URL"`
	SupabaseKey    string         `env:"TAVERN_SUPABASE_KEY"`
	SupabaseTable  string         `env:"TAVERN_SUPABASE_TABLE" envDefault:"kv"`

	// SealKey is a base64 AES key; when set credentials are sealed at rest.
	SealKey string `env:"TAVERN_SEAL_KEY"`

	LogLevel     string `env:"TAVERN_LOG_LEVEL" envDefault:"info"`
	OTelEndpoint string `env:"TAVERN_OTEL_ENDPOINT"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend names and the settings each backend needs.
func (c *Config) Validate() error {
	c.LLMBackend = LLMBackend(strings.ToLower(strings.TrimSpace(string(c.LLMBackend))))
	switch c.LLMBackend {
	case LLMBackendHTTP, LLMBackendGemini, LLMBackendMock:
	default:
		return fmt.Errorf("TAVERN_LLM_BACKEND %q is not one of http, gemini, mock", c.LLMBackend)
	}

	c.StorageBackend = StorageBackend(strings.ToLower(strings.TrimSpace(string(c.StorageBackend))))
	switch c.StorageBackend {
	case StorageMemory:
	case StorageBolt:
		if strings.TrimSpace(c.BoltPath) == "" {
			return errors.New("TAVERN_BOLT_PATH is required for bbolt storage")
		}
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("TAVERN_SQLITE_PATH is required for sqlite storage")
		}
	case StorageFirestore:
		if c.GCPProjectID == "" {
			return errors.New("TAVERN_GCP_PROJECT is required for firestore storage")
		}
	case StorageSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return errors.New("TAVERN_SUPABASE_URL and TAVERN_SUPABASE_KEY are required for supabase storage")
		}
	default:
		return fmt.Errorf("TAVERN_STORAGE_BACKEND %q is not supported", c.StorageBackend)
	}

	if c.SealKey != "" {
		if _, err := c.SealKeyBytes(); err != nil {
			return err
		}
	}
	return nil
}

// SealKeyBytes decodes SealKey. It returns nil when no key is configured.
func (c *Config) SealKeyBytes() ([]byte, error) {
	if c.SealKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.SealKey)
	if err != nil {
		return nil, fmt.Errorf("TAVERN_SEAL_KEY is not valid base64: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("TAVERN_SEAL_KEY must decode to 16, 24 or 32 bytes, got %d", len(key))
	}
}
