package document

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/aegis/internal/domain"
)

func TestParseType(t *testing.T) {
	got, err := ParseType(" Threat_Intel ")
	require.NoError(t, err)
	assert.Equal(t, TypeThreatIntel, got)

	_, err = ParseType("memo")
	assert.Error(t, err)
}

func TestPartitionRouting(t *testing.T) {
	want := map[Type]Partition{
		TypePolicy:       PartitionPolicies,
		TypeControl:      PartitionPolicies,
		TypeFramework:    PartitionPolicies,
		TypeRisk:         PartitionEvidence,
		TypeEvidence:     PartitionEvidence,
		TypeAuditFinding: PartitionEvidence,
		TypeThreatIntel:  PartitionThreats,
		TypeIncident:     PartitionThreats,
	}
	for typ, p := range want {
		assert.Equal(t, p, typ.Partition(), "type %s", typ)
	}
}

func TestPartitionsFor(t *testing.T) {
	assert.Equal(t, Partitions(), PartitionsFor(nil))
	// Stable order regardless of input order, duplicates collapse.
	assert.Equal(t,
		[]Partition{PartitionPolicies, PartitionThreats},
		PartitionsFor([]Type{TypeIncident, TypeControl, TypePolicy}),
	)
}

func TestNew_DerivesContentID(t *testing.T) {
	doc, err := New("", "Access must be reviewed quarterly.", TypePolicy, nil)
	require.NoError(t, err)
	assert.Len(t, doc.ID(), 16)
	assert.Equal(t, ContentID("Access must be reviewed quarterly."), doc.ID())
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		content   string
		docType   Type
		wantField string
	}{
		{"blank content", "id", "   ", TypePolicy, "content"},
		{"too large", "id", strings.Repeat("x", MaxContentSize+1), TypePolicy, "content"},
		{"unknown type", "id", "text", Type("memo"), "doc_type"},
		{"bad id", "bad id!", "text", TypePolicy, "id"},
		{"long id", strings.Repeat("a", 257), "text", TypePolicy, "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.id, tt.content, tt.docType, nil)
			require.ErrorIs(t, err, domain.ErrValidation)

			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestNew_ClonesMetadata(t *testing.T) {
	meta := map[string]any{"owner": "grc"}
	doc, err := New("p1", "text", TypePolicy, meta)
	require.NoError(t, err)
	meta["owner"] = "changed"
	assert.Equal(t, "grc", doc.Metadata()["owner"])
}

func TestNewChunker_Validation(t *testing.T) {
	_, err := NewChunker(0, 0)
	assert.Error(t, err)
	_, err = NewChunker(100, 100)
	assert.Error(t, err)
	_, err = NewChunker(100, -1)
	assert.Error(t, err)
}

func TestChunker_ShortTextIsSingleChunk(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"  short  "}, c.Split("  short  "))
}

func TestChunker_DeterministicWithOverlap(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	text := strings.Repeat("abcdefghij", 25)

	first := c.Split(text)
	for range 5 {
		assert.Equal(t, first, c.Split(text))
	}

	require.Len(t, first, 3)
	for i := 0; i+1 < len(first); i++ {
		tail := first[i][len(first[i])-20:]
		assert.True(t, strings.HasPrefix(first[i+1], tail), "chunk %d tail must open chunk %d", i, i+1)
	}
	assert.Equal(t, text[160:], first[2])
}

func TestChunker_PrefersSentenceBoundaryPastMidpoint(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	text := strings.Repeat("a", 70) + ". " + strings.Repeat("b", 200)

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, strings.Repeat("a", 70)+".", chunks[0])
}

func TestChunker_IgnoresBoundaryBeforeMidpoint(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	text := strings.Repeat("a", 30) + ". " + strings.Repeat("b", 200)

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	assert.Len(t, chunks[0], 100)
}

func TestChunker_AcceptsBoundaryAtMidpoint(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	text := strings.Repeat("a", 50) + ". " + strings.Repeat("b", 200)

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, strings.Repeat("a", 50)+".", chunks[0])
}

func TestChunker_StopsWhenWindowReachesEnd(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	text := strings.Repeat("abcdefghij", 18)

	chunks := c.Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, text[:100], chunks[0])
	assert.Equal(t, text[80:], chunks[1])
}

func TestChunker_DropsBlankChunks(t *testing.T) {
	c, err := NewChunker(10, 2)
	require.NoError(t, err)
	for _, chunk := range c.Split("hello" + strings.Repeat(" ", 30) + "world") {
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
}

func TestChunker_CountsRunes(t *testing.T) {
	c, err := NewChunker(100, 10)
	require.NoError(t, err)
	text := strings.Repeat("ب", 150)

	chunks := c.Split(text)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk))
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 100)
	}
}

func TestDocument_Chunks(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	doc, err := New("pol-7", strings.Repeat("abcdefghij", 25), TypeControl, map[string]any{"framework": "NCA-ECC"})
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	chunks := doc.Chunks(c, at)
	require.Len(t, chunks, 3)

	for i, ch := range chunks {
		assert.Equal(t, ChunkID("pol-7", i), ch.ID)
		assert.Equal(t, "pol-7", ch.ParentID)
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "control", ch.Metadata[MetaDocType])
		assert.Equal(t, "2026-03-01T12:00:00Z", ch.Metadata[MetaAddedAt])
		assert.Equal(t, 3, ch.Metadata[MetaChunkCount])
		assert.Equal(t, i, ch.Metadata[MetaChunkIndex])
		assert.Equal(t, "pol-7", ch.Metadata[MetaParentID])
		assert.Equal(t, "NCA-ECC", ch.Metadata["framework"])
	}
	assert.Equal(t, "pol-7_2", chunks[2].ID)
}
