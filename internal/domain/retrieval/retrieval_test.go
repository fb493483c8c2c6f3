package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Boundaries(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		similarity float64
		want       MatchStrength
	}{
		{1.0, MatchStrong},
		{0.85, MatchStrong},
		{0.849999, MatchModerate},
		{0.70, MatchModerate},
		{0.6999, MatchWeak},
		{0.50, MatchWeak},
		{0.4999, MatchNone},
		{0, MatchNone},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, th.Classify(tc.similarity), "similarity %v", tc.similarity)
	}
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{Strong: 1.2, Moderate: 0.7, Weak: 0.5}.Validate())
	assert.Error(t, Thresholds{Strong: 0.6, Moderate: 0.7, Weak: 0.5}.Validate())
	assert.Error(t, Thresholds{Strong: 0.9, Moderate: 0.7, Weak: -0.1}.Validate())
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 0.8, Similarity(0.2), 1e-9)
	assert.Equal(t, 0.0, Similarity(1.7))
	assert.Equal(t, 1.0, Similarity(-0.01))
}

func TestDistribution(t *testing.T) {
	got := Distribution([]Result{
		{MatchStrength: MatchStrong},
		{MatchStrength: MatchStrong},
		{MatchStrength: MatchWeak},
	})
	assert.Equal(t, map[MatchStrength]int{
		MatchStrong: 2, MatchModerate: 0, MatchWeak: 1, MatchNone: 0,
	}, got)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, NoSourcesConfidence, Confidence(nil))
	assert.InDelta(t, 0.9, Confidence([]Result{{Similarity: 0.7}, {Similarity: 0.8}}), 1e-9)
	assert.Equal(t, 1.0, Confidence([]Result{{Similarity: 0.95}}))
}
