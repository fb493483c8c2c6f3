// Package retrieval defines similarity tiers, retrieval results and the
// confidence heuristic attached to generated answers.
package retrieval

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/aegis/internal/domain/document"
)

// MatchStrength is the qualitative tier of a similarity score.
type MatchStrength string

// Match tiers, strongest first.
const (
	MatchStrong   MatchStrength = "STRONG"
	MatchModerate MatchStrength = "MODERATE"
	MatchWeak     MatchStrength = "WEAK"
	MatchNone     MatchStrength = "NONE"
)

// Strengths lists the tiers strongest first.
func Strengths() []MatchStrength {
	return []MatchStrength{MatchStrong, MatchModerate, MatchWeak, MatchNone}
}

// Default tier thresholds.
const (
	DefaultStrong   = 0.85
	DefaultModerate = 0.70
	DefaultWeak     = 0.50
)

// Thresholds are inclusive lower bounds for each tier.
type Thresholds struct {
	Strong   float64
	Moderate float64
	Weak     float64
}

// DefaultThresholds returns 0.85 / 0.70 / 0.50.
func DefaultThresholds() Thresholds {
	return Thresholds{Strong: DefaultStrong, Moderate: DefaultModerate, Weak: DefaultWeak}
}

// Validate requires every bound in [0,1] and strong >= moderate >= weak.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{"strong": t.Strong, "moderate": t.Moderate, "weak": t.Weak} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s threshold must be in [0,1], got %v", name, v)
		}
	}
	if t.Strong < t.Moderate || t.Moderate < t.Weak {
		return fmt.Errorf("thresholds must satisfy strong >= moderate >= weak")
	}
	return nil
}

// Classify evaluates tiers top-down.
func (t Thresholds) Classify(similarity float64) MatchStrength {
	switch {
	case similarity >= t.Strong:
		return MatchStrong
	case similarity >= t.Moderate:
		return MatchModerate
	case similarity >= t.Weak:
		return MatchWeak
	default:
		return MatchNone
	}
}

// Similarity converts a cosine distance to a similarity clamped to [0,1].
func Similarity(distance float64) float64 {
	s := 1 - distance
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Result is one ranked chunk. Derived per query, never persisted.
type Result struct {
	Chunk         document.Chunk
	Partition     document.Partition
	Similarity    float64
	Rank          int
	MatchStrength MatchStrength
}

// Distribution counts results per tier. Every tier is present, possibly zero.
func Distribution(results []Result) map[MatchStrength]int {
	out := make(map[MatchStrength]int, 4)
	for _, s := range Strengths() {
		out[s] = 0
	}
	for _, r := range results {
		out[r.MatchStrength]++
	}
	return out
}

// Confidence floor for an answer with no grounding sources.
const NoSourcesConfidence = 0.3

// Confidence is a heuristic signal for callers, not a probability:
// min(mean similarity x 1.2, 1), or 0.3 when nothing was retrieved.
func Confidence(results []Result) float64 {
	if len(results) == 0 {
		return NoSourcesConfidence
	}
	var sum float64
	for _, r := range results {
		sum += r.Similarity
	}
	return min(sum/float64(len(results))*1.2, 1.0)
}

// Response is the answer to a single retrieval-augmented query.
type Response struct {
	Answer     string
	Sources    []Result
	Context    string
	Confidence float64
	Duration   time.Duration
	Model      string
	Tokens     int
}
