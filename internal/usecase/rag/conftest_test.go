package rag

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/aegis/internal/domain"
	"github.com/kailas-cloud/aegis/internal/domain/document"
	"github.com/kailas-cloud/aegis/internal/domain/llm"
)

// memIndex is an in-memory VectorIndex using cosine distance.
type memIndex struct {
	mu       sync.Mutex
	chunks   map[document.Partition][]document.Chunk
	failOn   map[document.Partition]error
	blockOn  map[document.Partition]bool
	queries  int
	deletes  []string
	upserted int
}

func newMemIndex() *memIndex {
	return &memIndex{
		chunks:  make(map[document.Partition][]document.Chunk),
		failOn:  make(map[document.Partition]error),
		blockOn: make(map[document.Partition]bool),
	}
}

func (m *memIndex) put(p document.Partition, id string, t document.Type, text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[p] = append(m.chunks[p], document.Chunk{ID: id, ParentID: id, Text: text, Type: t, Embedding: vec})
}

func (m *memIndex) Upsert(_ context.Context, p document.Partition, chunks []document.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[p] = append(m.chunks[p], chunks...)
	m.upserted += len(chunks)
	return nil
}

func (m *memIndex) Query(ctx context.Context, p document.Partition, vec []float32, k int) ([]document.Hit, error) {
	m.mu.Lock()
	m.queries++
	err := m.failOn[p]
	block := m.blockOn[p]
	stored := append([]document.Chunk(nil), m.chunks[p]...)
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	hits := make([]document.Hit, 0, len(stored))
	for _, c := range stored {
		hits = append(hits, document.Hit{Chunk: c, Distance: 1 - cosine(vec, c.Embedding)})
	}
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Distance < hits[j-1].Distance; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *memIndex) DeleteByParent(_ context.Context, p document.Partition, parentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, parentID)
	kept := m.chunks[p][:0]
	removed := 0
	for _, c := range m.chunks[p] {
		if c.ParentID == parentID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	m.chunks[p] = kept
	return removed, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// unitAt returns a 2-d unit vector whose cosine with [1, 0] is sim.
func unitAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

type stubEmbedder struct {
	mu         sync.Mutex
	vec        []float32
	err        error
	calls      int
	batchCalls int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: s.vec, TotalTokens: 1}, nil
}

func (s *stubEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchCalls++
	if s.err != nil {
		return domain.BatchEmbeddingResult{}, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

type stubCompleter struct {
	mu       sync.Mutex
	system   string
	messages []llm.Message
	reply    string
	err      error
}

func (s *stubCompleter) Complete(_ context.Context, system string, messages []llm.Message) (llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system = system
	s.messages = messages
	if s.err != nil {
		return llm.Completion{}, s.err
	}
	return llm.Completion{Text: s.reply, TokenCount: 42, Duration: time.Millisecond, Model: "stub"}, nil
}

type fixture struct {
	engine    *Engine
	index     *memIndex
	embedder  *stubEmbedder
	completer *stubCompleter
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	f := fixture{
		index:     newMemIndex(),
		embedder:  &stubEmbedder{vec: []float32{1, 0}},
		completer: &stubCompleter{reply: "answer [Source 1]"},
	}
	e, err := New(f.index, f.embedder, f.embedder, f.completer, opts, nil)
	require.NoError(t, err)
	f.engine = e
	return f
}
