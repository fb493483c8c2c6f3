// Package ollama talks to a local Ollama daemon through its native
// /api/embed and /api/chat endpoints.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aegis/internal/domain"
	"github.com/kailas-cloud/aegis/internal/domain/llm"
	"github.com/kailas-cloud/aegis/internal/metrics"
)

const provider = "ollama"

// Config holds the daemon address and model settings.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Client implements domain.Embedder, domain.BatchEmbedder and llm.Completer.
type Client struct {
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
	http        *http.Client
	logger      *zap.Logger
}

// New creates an Ollama client. One client serves one model.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		http:        &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model           string      `json:"model"`
	Embeddings      [][]float32 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count"`
}

type chatOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Model     string      `json:"model"`
	Message   llm.Message `json:"message"`
	Done      bool        `json:"done"`
	EvalCount int         `json:"eval_count"`
}

// Embed implements domain.Embedder.
func (c *Client) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := c.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder. /api/embed takes a list of inputs.
func (c *Client) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	var resp embedResponse
	err := c.post(ctx, "/api/embed", embedRequest{Model: c.model, Input: texts}, &resp)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, c.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(provider, c.model, "api_error").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, c.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(provider, c.model, "empty_response").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"ollama embed: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, c.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, c.model).Observe(duration.Seconds())
	if resp.PromptEvalCount > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(provider, c.model, "prompt").Add(float64(resp.PromptEvalCount))
		metrics.EmbeddingTokensTotal.WithLabelValues(provider, c.model, "total").Add(float64(resp.PromptEvalCount))
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   resp.Embeddings,
		PromptTokens: resp.PromptEvalCount,
		TotalTokens:  resp.PromptEvalCount,
	}, nil
}

// Complete implements llm.Completer with a non-streaming /api/chat call.
func (c *Client) Complete(ctx context.Context, systemPrompt string, messages []llm.Message) (llm.Completion, error) {
	msgs := make([]llm.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, messages...)

	req := chatRequest{
		Model:    c.model,
		Messages: msgs,
		Options:  chatOptions{Temperature: c.temperature, NumPredict: c.maxTokens},
	}

	start := time.Now()
	var resp chatResponse
	err := c.post(ctx, "/api/chat", req, &resp)
	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(provider, c.model, "error").Inc()
		c.logger.Warn("Chat completion failed",
			zap.String("provider", provider),
			zap.String("model", c.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return llm.Completion{}, fmt.Errorf("ollama chat: %w", err)
	}

	metrics.LLMRequestsTotal.WithLabelValues(provider, c.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(provider, c.model).Observe(duration.Seconds())
	if resp.EvalCount > 0 {
		metrics.LLMTokensTotal.WithLabelValues(provider, c.model).Add(float64(resp.EvalCount))
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return llm.Completion{
		Text:       resp.Message.Content,
		TokenCount: resp.EvalCount,
		Duration:   duration,
		Model:      model,
	}, nil
}

// HealthCheck lists local models via /api/tags.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, extractError(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// extractError pulls the "error" field out of an Ollama error body.
func extractError(body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		return parsed.Error
	}
	return string(bytes.TrimSpace(body))
}
