package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/aegis/internal/domain"
)

func validConfig() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.RAG.ChunkSize != 1000 || cfg.RAG.ChunkOverlap != 200 || cfg.RAG.TopK != 5 {
		t.Errorf("unexpected rag defaults: %+v", cfg.RAG)
	}
	if cfg.RAG.StrongThreshold != 0.85 || cfg.RAG.ModerateThreshold != 0.70 || cfg.RAG.WeakThreshold != 0.50 {
		t.Errorf("unexpected tier defaults: %+v", cfg.RAG)
	}
	if cfg.LLM.TimeoutSec != 300 || cfg.Embedding.TimeoutSec != 60 {
		t.Errorf("unexpected timeouts: llm=%d embedding=%d", cfg.LLM.TimeoutSec, cfg.Embedding.TimeoutSec)
	}
	if cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Errorf("unexpected llm base url %q", cfg.LLM.BaseURL)
	}
	if !cfg.Embedding.CacheEnabled() {
		t.Error("embedding cache should default to enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"overlap not below size", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }, "rag.chunk_overlap"},
		{"negative top_k", func(c *Config) { c.RAG.TopK = -1 }, "rag.top_k"},
		{"similarity above one", func(c *Config) { c.RAG.SimilarityThreshold = 1.5 }, "rag.similarity_threshold"},
		{"tiers out of order", func(c *Config) { c.RAG.StrongThreshold = 0.6 }, "rag.thresholds"},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm.provider"},
		{"unknown driver", func(c *Config) { c.VectorStore.Driver = "chroma" }, "vector_store.driver"},
		{"unknown ner", func(c *Config) { c.NER.Provider = "spacy" }, "ner.provider"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Errorf("field = %q, want %q", ve.Field, tc.field)
			}
		})
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("AEGIS_TEST_MODEL", "qwen2.5:7b")

	cfg, err := Parse([]byte(`
llm:
  model: ${AEGIS_TEST_MODEL}
  base_url: ${AEGIS_TEST_UNSET:-http://ollama:11434}
dlp:
  block_on_detection: true
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Model != "qwen2.5:7b" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.BaseURL != "http://ollama:11434" {
		t.Errorf("base_url = %q", cfg.LLM.BaseURL)
	}
	if !cfg.DLP.BlockOnDetection {
		t.Error("block_on_detection should be true")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("rag: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if GetEnv() != "local" {
		t.Errorf("expected local, got %q", GetEnv())
	}
	t.Setenv("ENV", "prod")
	if GetEnv() != "prod" {
		t.Errorf("expected prod, got %q", GetEnv())
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("AEGIS_X", "1")
	got := string(expandEnvVars([]byte("a: ${AEGIS_X}\nb: ${AEGIS_MISSING}\nc: ${AEGIS_MISSING:-d}")))
	if !strings.Contains(got, "a: 1") || !strings.Contains(got, "b: \n") || !strings.Contains(got, "c: d") {
		t.Errorf("unexpected expansion: %q", got)
	}
}
