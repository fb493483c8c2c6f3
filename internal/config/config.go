package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/aegis/internal/domain"
	"github.com/kailas-cloud/aegis/internal/domain/retrieval"
)

// Config holds the aegis service configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Logging     LoggingConfig     `yaml:"logging"`
	Sovereignty SovereigntyConfig `yaml:"sovereignty"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	NER         NERConfig         `yaml:"ner"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	RAG         RAGConfig         `yaml:"rag"`
	DLP         DLPConfig         `yaml:"dlp"`
	Audit       AuditConfig       `yaml:"audit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. No keys disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// RateLimitConfig throttles AI routes per caller.
type RateLimitConfig struct {
	AIRequestsPerMinute int `yaml:"ai_requests_per_minute"`
	Burst               int `yaml:"burst"`
}

// SovereigntyConfig controls which endpoints may leave the local boundary.
type SovereigntyConfig struct {
	HybridMode              bool     `yaml:"hybrid_mode"`
	ExternalAPICallsAllowed bool     `yaml:"external_api_calls_allowed"`
	TelemetryEnabled        bool     `yaml:"telemetry_enabled"`
	LocalHosts              []string `yaml:"local_hosts"` // extra service aliases treated as local
}

// LLMConfig selects and tunes the language model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // ollama, openai, groq, deepseek
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// EmbeddingConfig selects the local embedding provider.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"` // ollama, openai (any OpenAI-compatible local server)
	BaseURL             string `yaml:"base_url"`
	APIKey              string `yaml:"api_key"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
	TimeoutSec          int    `yaml:"timeout_sec"`
	Cache               *bool  `yaml:"cache"`
}

// CacheEnabled defaults to true.
func (e EmbeddingConfig) CacheEnabled() bool { return e.Cache == nil || *e.Cache }

// NERConfig selects the entity recognizer.
type NERConfig struct {
	Provider       string  `yaml:"provider"` // builtin, presidio
	BaseURL        string  `yaml:"base_url"`
	Language       string  `yaml:"language"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	TimeoutSec     int     `yaml:"timeout_sec"`
}

// VectorStoreConfig holds vector index connection and HNSW settings.
type VectorStoreConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, qdrant
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	QdrantAddr       string   `yaml:"qdrant_addr"`
	KeyPrefix        string   `yaml:"key_prefix"`
	TimeoutSec       int      `yaml:"timeout_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
}

// RAGConfig holds chunking, ranking and partition naming.
type RAGConfig struct {
	ChunkSize           int              `yaml:"chunk_size"`
	ChunkOverlap        int              `yaml:"chunk_overlap"`
	TopK                int              `yaml:"top_k"`
	SimilarityThreshold float64          `yaml:"similarity_threshold"`
	StrongThreshold     float64          `yaml:"strong_threshold"`
	ModerateThreshold   float64          `yaml:"moderate_threshold"`
	WeakThreshold       float64          `yaml:"weak_threshold"`
	Partitions          PartitionsConfig `yaml:"partitions"`
}

// Thresholds returns the tier bounds.
func (r RAGConfig) Thresholds() retrieval.Thresholds {
	return retrieval.Thresholds{Strong: r.StrongThreshold, Moderate: r.ModerateThreshold, Weak: r.WeakThreshold}
}

// PartitionsConfig maps logical partitions to index collection names.
type PartitionsConfig struct {
	Policies string `yaml:"policies"`
	Evidence string `yaml:"evidence"`
	Threats  string `yaml:"threats"`
}

// DLPConfig holds DLP enforcement settings.
type DLPConfig struct {
	BlockOnDetection bool `yaml:"block_on_detection"`
}

// AuditConfig controls publishing of DLP audit records.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory is loaded first without overriding
// variables that are already set.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env vars in raw YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo,cyclop // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Generation can take up to llm.timeout_sec on a cold model.
		c.HTTP.WriteTimeoutSec = 330
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 15
	}
	if c.RateLimit.AIRequestsPerMinute <= 0 {
		c.RateLimit.AIRequestsPerMinute = 10
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL(c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "llama3.1:8b"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 300
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "ollama"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://localhost:11434"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "nomic-embed-text"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 768
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 60
	}

	if c.NER.Provider == "" {
		c.NER.Provider = "builtin"
	}
	if c.NER.BaseURL == "" {
		c.NER.BaseURL = "http://localhost:5002"
	}
	if c.NER.Language == "" {
		c.NER.Language = "en"
	}
	if c.NER.ScoreThreshold <= 0 {
		c.NER.ScoreThreshold = 0.35
	}
	if c.NER.TimeoutSec <= 0 {
		c.NER.TimeoutSec = 10
	}

	if c.VectorStore.Driver == "" {
		c.VectorStore.Driver = "valkey"
	}
	if len(c.VectorStore.Addrs) == 0 {
		c.VectorStore.Addrs = []string{"localhost:6379"}
	}
	if c.VectorStore.QdrantAddr == "" {
		c.VectorStore.QdrantAddr = "localhost:6334"
	}
	if c.VectorStore.KeyPrefix == "" {
		c.VectorStore.KeyPrefix = "aegis:"
	}
	if c.VectorStore.TimeoutSec <= 0 {
		c.VectorStore.TimeoutSec = 10
	}
	if c.VectorStore.ReadinessTimeout <= 0 {
		c.VectorStore.ReadinessTimeout = 30
	}
	if c.VectorStore.HNSWM <= 0 {
		c.VectorStore.HNSWM = 16
	}
	if c.VectorStore.HNSWEFConstruct <= 0 {
		c.VectorStore.HNSWEFConstruct = 200
	}

	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = 1000
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 200
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = 5
	}
	if c.RAG.SimilarityThreshold == 0 {
		c.RAG.SimilarityThreshold = 0.5
	}
	if c.RAG.StrongThreshold == 0 {
		c.RAG.StrongThreshold = retrieval.DefaultStrong
	}
	if c.RAG.ModerateThreshold == 0 {
		c.RAG.ModerateThreshold = retrieval.DefaultModerate
	}
	if c.RAG.WeakThreshold == 0 {
		c.RAG.WeakThreshold = retrieval.DefaultWeak
	}
	if c.RAG.Partitions.Policies == "" {
		c.RAG.Partitions.Policies = "aegis_policies"
	}
	if c.RAG.Partitions.Evidence == "" {
		c.RAG.Partitions.Evidence = "aegis_evidence"
	}
	if c.RAG.Partitions.Threats == "" {
		c.RAG.Partitions.Threats = "aegis_threats"
	}

	if c.Audit.NATSURL == "" {
		c.Audit.NATSURL = "nats://localhost:4222"
	}
	if c.Audit.Subject == "" {
		c.Audit.Subject = "aegis.audit.dlp"
	}
}

func defaultLLMBaseURL(provider string) string {
	switch provider {
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "openai":
		return "http://localhost:11434/v1"
	default:
		return "http://localhost:11434"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return domain.NewValidationError("http.port", c.HTTP.Port, "must be between 1 and 65535")
	}
	switch c.LLM.Provider {
	case "ollama", "openai", "groq", "deepseek":
	default:
		return domain.NewValidationError("llm.provider", c.LLM.Provider, "must be ollama, openai, groq or deepseek")
	}
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return domain.NewValidationError("embedding.provider", c.Embedding.Provider, "must be ollama or openai")
	}
	switch c.NER.Provider {
	case "builtin", "presidio":
	default:
		return domain.NewValidationError("ner.provider", c.NER.Provider, "must be builtin or presidio")
	}
	switch c.VectorStore.Driver {
	case "valkey", "redis", "qdrant":
	default:
		return domain.NewValidationError("vector_store.driver", c.VectorStore.Driver, "must be valkey, redis or qdrant")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return domain.NewValidationError("llm.temperature", c.LLM.Temperature, "must be in [0,2]")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return domain.NewValidationError("rag.chunk_overlap", c.RAG.ChunkOverlap, "must be in [0, chunk_size)")
	}
	if c.RAG.TopK <= 0 {
		return domain.NewValidationError("rag.top_k", c.RAG.TopK, "must be positive")
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		return domain.NewValidationError("rag.similarity_threshold", c.RAG.SimilarityThreshold, "must be in [0,1]")
	}
	if err := c.RAG.Thresholds().Validate(); err != nil {
		return domain.NewValidationError("rag.thresholds", nil, err.Error())
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
