package config_test

import (
	"encoding/base64"
	"os"
	"testing"

	"github.com/PabloGalante/tavern-agent/internal/config"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.LLMBackend != config.LLMBackendHTTP {
		t.Errorf("LLMBackend = %q", cfg.LLMBackend)
	}
	if cfg.StorageBackend != config.StorageMemory {
		t.Errorf("StorageBackend = %q", cfg.StorageBackend)
	}
}

func TestLoadFromDotEnv(t *testing.T) {
	chdirTemp(t)
	if err := os.WriteFile(".env", []byte("TAVERN_PORT=9090\nTAVERN_LLM_BACKEND=mock\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("TAVERN_PORT")
		os.Unsetenv("TAVERN_LLM_BACKEND")
	})

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.LLMBackend != config.LLMBackendMock {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"defaults", config.Config{LLMBackend: "http", StorageBackend: "memory"}, false},
		{"upper case backend", config.Config{LLMBackend: "MOCK", StorageBackend: "memory"}, false},
		{"unknown llm", config.Config{LLMBackend: "claude", StorageBackend: "memory"}, true},
		{"unknown storage", config.Config{LLMBackend: "http", StorageBackend: "redis"}, true},
		{"firestore without project", config.Config{LLMBackend: "http", StorageBackend: "firestore"}, true},
		{"supabase without key", config.Config{LLMBackend: "http", StorageBackend: "supabase", SupabaseURL: "https://x.supabase.co"}, true},
		{"bad seal key", config.Config{LLMBackend: "http", StorageBackend: "memory", SealKey: "not base64!"}, true},
		{"short seal key", config.Config{LLMBackend: "http", StorageBackend: "memory", SealKey: base64.StdEncoding.EncodeToString([]byte("short"))}, true},
		{"good seal key", config.Config{LLMBackend: "http", StorageBackend: "memory", SealKey: base64.StdEncoding.EncodeToString(make([]byte, 32))}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
