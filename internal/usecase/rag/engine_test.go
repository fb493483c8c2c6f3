package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/aegis/internal/domain"
	"github.com/kailas-cloud/aegis/internal/domain/document"
	"github.com/kailas-cloud/aegis/internal/domain/llm"
	"github.com/kailas-cloud/aegis/internal/domain/retrieval"
)

func ptr[T any](v T) *T { return &v }

func TestNew_RejectsInvalidOptions(t *testing.T) {
	idx, emb := newMemIndex(), &stubEmbedder{}
	cases := []Options{
		{ChunkSize: 100, ChunkOverlap: 100},
		{Thresholds: retrieval.Thresholds{Strong: 0.5, Moderate: 0.7, Weak: 0.2}},
		{MinSimilarity: 1.2},
		{TopK: -3},
	}
	for _, opts := range cases {
		_, err := New(idx, emb, emb, &stubCompleter{}, opts, nil)
		assert.ErrorIs(t, err, domain.ErrValidation, "%+v", opts)
	}
}

func TestRetrieve_GlobalTopKAcrossPartitions(t *testing.T) {
	f := newFixture(t, Options{TopK: 2})
	f.index.put(document.PartitionThreats, "t1", document.TypeIncident, "ransomware", unitAt(0.9))
	f.index.put(document.PartitionPolicies, "p1", document.TypePolicy, "password policy", unitAt(0.6))
	f.index.put(document.PartitionEvidence, "e1", document.TypeRisk, "vendor risk", unitAt(0.3))

	got, err := f.engine.Retrieve(context.Background(), "what happened", RetrieveOptions{MinSimilarity: ptr(0.0)})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].Chunk.ID)
	assert.Equal(t, "p1", got[1].Chunk.ID)
	assert.InDelta(t, 0.9, got[0].Similarity, 1e-6)
	assert.InDelta(t, 0.6, got[1].Similarity, 1e-6)
	assert.Equal(t, 0, got[0].Rank)
	assert.Equal(t, 1, got[1].Rank)
	assert.Equal(t, retrieval.MatchStrong, got[0].MatchStrength)
	assert.Equal(t, retrieval.MatchWeak, got[1].MatchStrength)
	assert.Equal(t, document.PartitionThreats, got[0].Partition)
	assert.Equal(t, 1, f.embedder.calls, "query embedded once")
}

func TestRetrieve_MinSimilarityDiscards(t *testing.T) {
	f := newFixture(t, Options{TopK: 5, MinSimilarity: 0.5})
	f.index.put(document.PartitionPolicies, "hi", document.TypePolicy, "a", unitAt(0.8))
	f.index.put(document.PartitionPolicies, "lo", document.TypePolicy, "b", unitAt(0.3))

	got, err := f.engine.Retrieve(context.Background(), "q", RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Chunk.ID)
}

func TestRetrieve_TypesSelectPartitions(t *testing.T) {
	f := newFixture(t, Options{})
	f.index.put(document.PartitionPolicies, "p1", document.TypeFramework, "a", unitAt(0.9))
	f.index.put(document.PartitionThreats, "t1", document.TypeIncident, "b", unitAt(0.95))

	got, err := f.engine.Retrieve(context.Background(), "q", RetrieveOptions{
		Types: []document.Type{document.TypePolicy},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].Chunk.ID)
	assert.Equal(t, 1, f.index.queries)
}

func TestRetrieve_TiesFollowPartitionOrder(t *testing.T) {
	f := newFixture(t, Options{})
	f.index.put(document.PartitionThreats, "threat", document.TypeIncident, "a", unitAt(0.8))
	f.index.put(document.PartitionEvidence, "evidence", document.TypeEvidence, "b", unitAt(0.8))
	f.index.put(document.PartitionPolicies, "policy", document.TypePolicy, "c", unitAt(0.8))

	for range 5 {
		got, err := f.engine.Retrieve(context.Background(), "q", RetrieveOptions{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"policy", "evidence", "threat"},
			[]string{got[0].Chunk.ID, got[1].Chunk.ID, got[2].Chunk.ID})
	}
}

func TestRetrieve_FailingPartitionIsSkipped(t *testing.T) {
	f := newFixture(t, Options{})
	f.index.put(document.PartitionPolicies, "p1", document.TypePolicy, "a", unitAt(0.9))
	f.index.put(document.PartitionThreats, "t1", document.TypeIncident, "b", unitAt(0.7))
	f.index.failOn[document.PartitionEvidence] = errors.New("index missing")

	got, err := f.engine.Retrieve(context.Background(), "q", RetrieveOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRetrieve_SlowPartitionTimesOutAlone(t *testing.T) {
	f := newFixture(t, Options{StoreTimeout: 20 * time.Millisecond})
	f.index.put(document.PartitionPolicies, "p1", document.TypePolicy, "a", unitAt(0.9))
	f.index.blockOn[document.PartitionThreats] = true

	got, err := f.engine.Retrieve(context.Background(), "q", RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].Chunk.ID)
}

func TestRetrieve_CallerDeadlineDiscardsPartialResults(t *testing.T) {
	f := newFixture(t, Options{StoreTimeout: time.Minute})
	f.index.put(document.PartitionPolicies, "p1", document.TypePolicy, "a", unitAt(0.9))
	f.index.blockOn[document.PartitionThreats] = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	got, err := f.engine.Retrieve(ctx, "q", RetrieveOptions{})
	assert.Nil(t, got)
	var te *domain.AdapterTimeoutError
	require.ErrorAs(t, err, &te)
	assert.Positive(t, te.Elapsed)
	assert.ErrorIs(t, err, domain.ErrAdapterTimeout)
}

func TestRetrieve_EmbeddingFailureAborts(t *testing.T) {
	f := newFixture(t, Options{})
	f.embedder.err = errors.New("ollama down")

	_, err := f.engine.Retrieve(context.Background(), "q", RetrieveOptions{})
	assert.ErrorIs(t, err, domain.ErrAdapterUnavailable)
	assert.Zero(t, f.index.queries)
}

func TestRetrieve_Validation(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.engine.Retrieve(context.Background(), "", RetrieveOptions{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.engine.Retrieve(context.Background(), "q", RetrieveOptions{TopK: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.engine.Retrieve(context.Background(), "q", RetrieveOptions{MinSimilarity: ptr(1.5)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Zero(t, f.embedder.calls, "validation happens before any adapter call")
}

func TestAddDocument_ChunksEmbedsAndRoutes(t *testing.T) {
	f := newFixture(t, Options{ChunkSize: 100, ChunkOverlap: 20})
	content := strings.Repeat("Access reviews happen quarterly. ", 10)

	id, err := f.engine.AddDocument(context.Background(), content, document.TypeControl, "", map[string]any{"owner": "grc"})
	require.NoError(t, err)
	assert.Equal(t, document.ContentID(content), id)

	stored := f.index.chunks[document.PartitionPolicies]
	require.Greater(t, len(stored), 1)
	assert.Equal(t, 1, f.embedder.batchCalls, "one batch for all chunks")
	for i, c := range stored {
		assert.Equal(t, id, c.ParentID)
		assert.Equal(t, i, c.Metadata[document.MetaChunkIndex])
		assert.Equal(t, "grc", c.Metadata["owner"])
		assert.Equal(t, "control", c.Metadata[document.MetaDocType])
		assert.NotEmpty(t, c.Embedding)
	}
}

func TestAddDocument_ReindexReplacesChunks(t *testing.T) {
	f := newFixture(t, Options{ChunkSize: 100, ChunkOverlap: 20})
	ctx := context.Background()

	_, err := f.engine.AddDocument(ctx, strings.Repeat("Long policy text. ", 20), document.TypePolicy, "pol-1", nil)
	require.NoError(t, err)
	_, err = f.engine.AddDocument(ctx, "Short policy text.", document.TypePolicy, "pol-1", nil)
	require.NoError(t, err)

	assert.Len(t, f.index.chunks[document.PartitionPolicies], 1)
}

func TestAddDocument_Invalid(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	for _, tc := range []struct {
		content   string
		docType   document.Type
		id        string
		wantField string
	}{
		{"text", document.Type("memo"), "", "doc_type"},
		{"text", document.TypePolicy, "bad id!", "id"},
		{"   ", document.TypePolicy, "", "content"},
	} {
		_, err := f.engine.AddDocument(ctx, tc.content, tc.docType, tc.id, nil)
		require.ErrorIs(t, err, domain.ErrValidation)

		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, tc.wantField, ve.Field)
	}

	assert.Zero(t, f.embedder.batchCalls)
}

func TestAddDocument_EmbeddingFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.embedder.err = errors.New("model not pulled")

	_, err := f.engine.AddDocument(context.Background(), "text", document.TypeRisk, "", nil)
	assert.ErrorIs(t, err, domain.ErrAdapterUnavailable)
	assert.Zero(t, f.index.upserted)
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, err := f.engine.AddDocument(ctx, "Incident summary.", document.TypeIncident, "inc-7", nil)
	require.NoError(t, err)

	n, err := f.engine.DeleteDocument(ctx, id, document.TypeIncident)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.engine.DeleteDocument(ctx, id, document.TypeIncident)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuery_GroundsPromptAndScoresConfidence(t *testing.T) {
	f := newFixture(t, Options{})
	f.index.put(document.PartitionPolicies, "p1", document.TypePolicy, "MFA is mandatory.", unitAt(0.9))
	f.index.put(document.PartitionPolicies, "p2", document.TypePolicy, "VPN required.", unitAt(0.7))

	resp, err := f.engine.Query(context.Background(), "Is MFA required?", nil, llm.PromptRiskAnalyst)
	require.NoError(t, err)

	assert.Equal(t, "answer [Source 1]", resp.Answer)
	assert.Len(t, resp.Sources, 2)
	assert.InDelta(t, 0.96, resp.Confidence, 1e-6)
	assert.Equal(t, 42, resp.Tokens)
	assert.Equal(t, "stub", resp.Model)

	assert.True(t, strings.HasPrefix(f.completer.system, llm.SystemPrompt(llm.PromptRiskAnalyst)))
	assert.Contains(t, f.completer.system, "[Source 1] (Type: policy, Match: STRONG, Score: 0.90)\nMFA is mandatory.")
	require.Len(t, f.completer.messages, 1)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "Is MFA required?"}, f.completer.messages[0])
}

func TestQuery_NoSourcesUsesFloor(t *testing.T) {
	f := newFixture(t, Options{})

	resp, err := f.engine.Query(context.Background(), "anything", nil, llm.PromptGeneral)
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.InDelta(t, retrieval.NoSourcesConfidence, resp.Confidence, 1e-9)
}

func TestQuery_ConfidenceCapsAtOne(t *testing.T) {
	f := newFixture(t, Options{})
	f.index.put(document.PartitionEvidence, "e1", document.TypeEvidence, "x", unitAt(0.95))

	resp, err := f.engine.Query(context.Background(), "q", nil, llm.PromptGeneral)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, resp.Confidence, 1e-9)
}

func TestQuery_LLMFailurePropagates(t *testing.T) {
	f := newFixture(t, Options{})
	cause := errors.New("model crashed")
	f.completer.err = cause

	_, err := f.engine.Query(context.Background(), "q", nil, llm.PromptGeneral)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, domain.ErrAdapterUnavailable)
}

func TestMatchDistribution(t *testing.T) {
	f := newFixture(t, Options{})
	dist := f.engine.MatchDistribution([]retrieval.Result{
		{MatchStrength: retrieval.MatchStrong},
		{MatchStrength: retrieval.MatchStrong},
		{MatchStrength: retrieval.MatchWeak},
	})
	assert.Equal(t, map[retrieval.MatchStrength]int{
		retrieval.MatchStrong: 2, retrieval.MatchModerate: 0, retrieval.MatchWeak: 1, retrieval.MatchNone: 0,
	}, dist)
}
