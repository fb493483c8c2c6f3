// Package presidio is an entity recognizer backed by a self-hosted Presidio
// analyzer service.
package presidio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	domdlp "github.com/kailas-cloud/aegis/internal/domain/dlp"
)

// Client calls the analyzer's /analyze endpoint.
type Client struct {
	baseURL   string
	language  string
	threshold float64
	entities  []string
	http      *http.Client
}

// New creates a Presidio client.
func New(baseURL, language string, threshold float64, timeout time.Duration) *Client {
	if language == "" {
		language = "en"
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		language:  language,
		threshold: threshold,
		entities:  domdlp.RecognizedEntities(),
		http:      &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Text           string   `json:"text"`
	Language       string   `json:"language"`
	Entities       []string `json:"entities,omitempty"`
	ScoreThreshold float64  `json:"score_threshold,omitempty"`
}

type analyzeResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Detect returns entities with byte offsets into text. The analyzer reports
// code point offsets, which are converted here.
func (c *Client) Detect(ctx context.Context, text string) ([]domdlp.Entity, error) {
	body, err := json.Marshal(analyzeRequest{
		Text:           text,
		Language:       c.language,
		Entities:       c.entities,
		ScoreThreshold: c.threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("presidio marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("presidio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("presidio analyze: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("presidio analyze: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var results []analyzeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("presidio decode: %w", err)
	}

	offsets := runeOffsets(text)
	out := make([]domdlp.Entity, 0, len(results))
	for _, r := range results {
		if r.Start < 0 || r.End > len(offsets)-1 || r.Start >= r.End {
			continue
		}
		out = append(out, domdlp.Entity{
			Type:  r.EntityType,
			Start: offsets[r.Start],
			End:   offsets[r.End],
			Score: r.Score,
		})
	}
	return out, nil
}

// HealthCheck probes the analyzer's /health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("presidio health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("presidio health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("presidio health: status %d", resp.StatusCode)
	}
	return nil
}

// runeOffsets maps code point index i to its byte offset. The final entry is len(text).
func runeOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
