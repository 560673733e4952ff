package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DB_URL", "DB_DRIVER", "MISTRAL_API_KEY", "LLM_API_KEY", "LLM_BASE_URL",
		"LLM_MODEL", "LLM_PROVIDER", "EMBED_API_KEY", "EMBED_BASE_URL",
		"EMBED_MODEL", "EMBED_PROVIDER", "EMBED_VECTOR_SIZE", "REDIS_ADDR",
		"VECTOR_STORE_BACKEND", "HTTP_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RAG.VectorSize != 1024 {
		t.Fatalf("expected default vector size 1024, got %d", cfg.RAG.VectorSize)
	}
	if !cfg.Upload.AllowsExtension(".PDF") {
		t.Fatalf("expected .pdf to be allowed by default")
	}
	if cfg.Upload.AllowsExtension(".txt") {
		t.Fatalf("expected .txt to be rejected by default")
	}
}

func TestValidateReportsMissingSecrets(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	err = cfg.Validate()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	for _, want := range []string{"DB_URL", "llm.key"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}

func TestEnvOverridesAndValidate(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_URL", "postgresql+psycopg://ai:ai@localhost:5532/ai")
	t.Setenv("MISTRAL_API_KEY", "secret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Database.URL != "postgresql://ai:ai@localhost:5532/ai" {
		t.Fatalf("unexpected dsn %q", cfg.Database.URL)
	}
	if cfg.EmbedLLM.Key != "secret" {
		t.Fatalf("expected embed key to fall back to llm key")
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
database:
  url: postgres://localhost/test
rag:
  chunk_size: 100
  chunk_overlap: 400
vector_store:
  backend: chromem
redis:
  lock_ttl: 30s
llm:
  provider: ollama
  model: llama3
embed_llm:
  provider: ollama
  model: nomic-embed-text
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RAG.ChunkOverlap != 50 {
		t.Fatalf("expected overlap clamped to 50, got %d", cfg.RAG.ChunkOverlap)
	}
	if cfg.Redis.LockTTL.Seconds() != 30 {
		t.Fatalf("expected 30s lock ttl, got %s", cfg.Redis.LockTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("ollama providers need no key: %v", err)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_URL", "postgres://localhost/test")
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("VECTOR_STORE_BACKEND", "qdrant")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
