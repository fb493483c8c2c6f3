package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aegis/internal/domain"
	"github.com/kailas-cloud/aegis/internal/domain/document"
	"github.com/kailas-cloud/aegis/internal/domain/llm"
	"github.com/kailas-cloud/aegis/internal/domain/retrieval"
	"github.com/kailas-cloud/aegis/internal/metrics"
)

// Adapter names reported in timeout and unavailability errors.
const (
	AdapterEmbedding   = "embedding"
	AdapterVectorStore = "vector_store"
	AdapterLLM         = "llm"
)

// Options configures the engine. Zero values take defaults.
type Options struct {
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	MinSimilarity    float64
	Thresholds       retrieval.Thresholds
	EmbeddingTimeout time.Duration
	LLMTimeout       time.Duration
	StoreTimeout     time.Duration
}

func (o *Options) applyDefaults() {
	if o.ChunkSize == 0 {
		o.ChunkSize = document.DefaultChunkSize
		if o.ChunkOverlap == 0 {
			o.ChunkOverlap = document.DefaultChunkOverlap
		}
	}
	if o.TopK == 0 {
		o.TopK = 5
	}
	if o.Thresholds == (retrieval.Thresholds{}) {
		o.Thresholds = retrieval.DefaultThresholds()
	}
	if o.EmbeddingTimeout == 0 {
		o.EmbeddingTimeout = 60 * time.Second
	}
	if o.LLMTimeout == 0 {
		o.LLMTimeout = 300 * time.Second
	}
	if o.StoreTimeout == 0 {
		o.StoreTimeout = 10 * time.Second
	}
}

// Engine indexes documents and answers questions grounded in retrieved chunks.
type Engine struct {
	index         VectorIndex
	docEmbedder   domain.Embedder
	queryEmbedder domain.Embedder
	completer     llm.Completer
	chunker       document.Chunker
	opts          Options
	logger        *zap.Logger
	now           func() time.Time
}

// New creates a retrieval engine. Document and query embedders may differ
// only in their instruction prefix.
func New(
	index VectorIndex, docEmbedder, queryEmbedder domain.Embedder,
	completer llm.Completer, opts Options, logger *zap.Logger,
) (*Engine, error) {
	opts.applyDefaults()

	chunker, err := document.NewChunker(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, domain.NewValidationError("rag.chunk_overlap", opts.ChunkOverlap, err.Error())
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, domain.NewValidationError("rag.thresholds", opts.Thresholds, err.Error())
	}
	if opts.MinSimilarity < 0 || opts.MinSimilarity > 1 {
		return nil, domain.NewValidationError("rag.similarity_threshold", opts.MinSimilarity, "must be in [0,1]")
	}
	if opts.TopK < 1 {
		return nil, domain.NewValidationError("rag.top_k", opts.TopK, "must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		index:         index,
		docEmbedder:   docEmbedder,
		queryEmbedder: queryEmbedder,
		completer:     completer,
		chunker:       chunker,
		opts:          opts,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// TopK returns the default number of results per query.
func (e *Engine) TopK() int { return e.opts.TopK }

// AddDocument chunks, embeds and stores a document in its type's partition.
// An empty id is replaced by a content hash. Existing chunks with the same
// parent are replaced.
func (e *Engine) AddDocument(
	ctx context.Context, content string, docType document.Type, id string, metadata map[string]any,
) (string, error) {
	doc, err := document.New(id, content, docType, metadata)
	if err != nil {
		return "", err
	}

	chunks := doc.Chunks(e.chunker, e.now())
	if len(chunks) == 0 {
		return "", domain.NewValidationError("content", len(content), "no indexable text")
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	var embedded domain.BatchEmbeddingResult
	err = domain.CallAdapter(ctx, AdapterEmbedding, e.opts.EmbeddingTimeout, func(ctx context.Context) error {
		var err error
		embedded, err = domain.EmbedAll(ctx, e.docEmbedder, texts)
		return err //nolint:wrapcheck // classified by CallAdapter
	})
	if err != nil {
		return "", fmt.Errorf("embed chunks: %w", err)
	}
	if len(embedded.Embeddings) != len(chunks) {
		return "", &domain.AdapterUnavailableError{
			Adapter: AdapterEmbedding,
			Err:     fmt.Errorf("got %d embeddings for %d chunks", len(embedded.Embeddings), len(chunks)),
		}
	}
	for i := range chunks {
		chunks[i].Embedding = embedded.Embeddings[i]
	}

	partition := docType.Partition()
	err = domain.CallAdapter(ctx, AdapterVectorStore, e.opts.StoreTimeout, func(ctx context.Context) error {
		if _, err := e.index.DeleteByParent(ctx, partition, doc.ID()); err != nil {
			return fmt.Errorf("clear previous chunks: %w", err)
		}
		return e.index.Upsert(ctx, partition, chunks) //nolint:wrapcheck // classified by CallAdapter
	})
	if err != nil {
		return "", fmt.Errorf("store chunks: %w", err)
	}

	e.logger.Info("Document indexed",
		zap.String("doc_id", doc.ID()),
		zap.String("doc_type", string(docType)),
		zap.String("partition", string(partition)),
		zap.Int("chunks", len(chunks)),
		zap.Int("tokens", embedded.TotalTokens),
	)
	return doc.ID(), nil
}

// DeleteDocument removes every chunk of a document. It reports
// domain.ErrNotFound when nothing was stored under id.
func (e *Engine) DeleteDocument(ctx context.Context, id string, docType document.Type) (int, error) {
	if id == "" {
		return 0, domain.NewValidationError("id", id, "is required")
	}

	var removed int
	err := domain.CallAdapter(ctx, AdapterVectorStore, e.opts.StoreTimeout, func(ctx context.Context) error {
		var err error
		removed, err = e.index.DeleteByParent(ctx, docType.Partition(), id)
		return err //nolint:wrapcheck // classified by CallAdapter
	})
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	if removed == 0 {
		return 0, fmt.Errorf("document %q: %w", id, domain.ErrNotFound)
	}

	e.logger.Info("Document deleted",
		zap.String("doc_id", id),
		zap.String("doc_type", string(docType)),
		zap.Int("chunks", removed),
	)
	return removed, nil
}

// RetrieveOptions narrows a retrieval. Zero values take engine defaults.
type RetrieveOptions struct {
	Types         []document.Type
	TopK          int
	MinSimilarity *float64
}

// Retrieve embeds the query once, searches every selected partition
// concurrently and returns the global top-k by similarity.
//
// A failing partition is logged and skipped. An embedding failure aborts the
// call. If ctx ends before all partitions answer, partial results are
// discarded and *domain.AdapterTimeoutError is returned.
func (e *Engine) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]retrieval.Result, error) {
	topK, minSim, err := e.resolve(query, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.RAGRetrieveDuration.Observe(time.Since(start).Seconds()) }()

	var vec []float32
	err = domain.CallAdapter(ctx, AdapterEmbedding, e.opts.EmbeddingTimeout, func(ctx context.Context) error {
		res, err := e.queryEmbedder.Embed(ctx, query)
		vec = res.Embedding
		return err //nolint:wrapcheck // classified by CallAdapter
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	partitions := document.PartitionsFor(opts.Types)
	perPartition := make([][]retrieval.Result, len(partitions))

	var wg sync.WaitGroup
	for i, p := range partitions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.queryPartition(ctx, p, vec, topK, minSim)
			if err != nil {
				metrics.RAGPartitionErrorsTotal.WithLabelValues(string(p)).Inc()
				e.logger.Warn("Partition query failed, skipping",
					zap.String("partition", string(p)),
					zap.Error(err),
				)
				return
			}
			perPartition[i] = res
		}()
	}
	wg.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &domain.AdapterTimeoutError{Adapter: "retrieval", Elapsed: time.Since(start), Err: ctxErr}
	}

	var merged []retrieval.Result
	for _, res := range perPartition {
		merged = append(merged, res...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	for i := range merged {
		merged[i].Rank = i
		metrics.RAGMatchesTotal.WithLabelValues(string(merged[i].MatchStrength)).Inc()
	}

	e.logger.Debug("Retrieval completed",
		zap.Int("partitions", len(partitions)),
		zap.Int("results", len(merged)),
		zap.Duration("duration", time.Since(start)),
	)
	return merged, nil
}

func (e *Engine) resolve(query string, opts RetrieveOptions) (topK int, minSim float64, err error) {
	if query == "" {
		return 0, 0, domain.NewValidationError("query", query, "must not be empty")
	}
	topK = e.opts.TopK
	if opts.TopK != 0 {
		if opts.TopK < 0 {
			return 0, 0, domain.NewValidationError("top_k", opts.TopK, "must be positive")
		}
		topK = opts.TopK
	}
	minSim = e.opts.MinSimilarity
	if opts.MinSimilarity != nil {
		minSim = *opts.MinSimilarity
		if minSim < 0 || minSim > 1 {
			return 0, 0, domain.NewValidationError("min_similarity", minSim, "must be in [0,1]")
		}
	}
	return topK, minSim, nil
}

func (e *Engine) queryPartition(
	ctx context.Context, p document.Partition, vec []float32, k int, minSim float64,
) ([]retrieval.Result, error) {
	var hits []document.Hit
	err := domain.CallAdapter(ctx, AdapterVectorStore, e.opts.StoreTimeout, func(ctx context.Context) error {
		var err error
		hits, err = e.index.Query(ctx, p, vec, k)
		return err //nolint:wrapcheck // classified by CallAdapter
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // already a domain error
	}

	out := make([]retrieval.Result, 0, len(hits))
	for _, h := range hits {
		sim := retrieval.Similarity(h.Distance)
		if sim < minSim {
			continue
		}
		out = append(out, retrieval.Result{
			Chunk:         h.Chunk,
			Partition:     p,
			Similarity:    sim,
			MatchStrength: e.opts.Thresholds.Classify(sim),
		})
	}
	return out, nil
}

// Query retrieves context for question and asks the language model to answer
// from it. A model failure is returned as is; no answer is fabricated.
func (e *Engine) Query(
	ctx context.Context, question string, types []document.Type, role llm.PromptRole,
) (retrieval.Response, error) {
	start := time.Now()

	results, err := e.Retrieve(ctx, question, RetrieveOptions{Types: types})
	if err != nil {
		return retrieval.Response{}, err
	}

	ctxText := retrieval.BuildContext(results)
	system := llm.GroundedPrompt(role, ctxText)

	var completion llm.Completion
	err = domain.CallAdapter(ctx, AdapterLLM, e.opts.LLMTimeout, func(ctx context.Context) error {
		var err error
		completion, err = e.completer.Complete(ctx, system, []llm.Message{{Role: llm.RoleUser, Content: question}})
		return err //nolint:wrapcheck // classified by CallAdapter
	})
	if err != nil {
		return retrieval.Response{}, fmt.Errorf("generate answer: %w", err)
	}

	resp := retrieval.Response{
		Answer:     completion.Text,
		Sources:    results,
		Context:    ctxText,
		Confidence: retrieval.Confidence(results),
		Duration:   time.Since(start),
		Model:      completion.Model,
		Tokens:     completion.TokenCount,
	}

	e.logger.Info("RAG query completed",
		zap.String("role", string(role)),
		zap.Int("sources", len(results)),
		zap.Float64("confidence", resp.Confidence),
		zap.Duration("duration", resp.Duration),
	)
	return resp, nil
}

// Complete sends messages to the language model without retrieval.
func (e *Engine) Complete(ctx context.Context, systemPrompt string, messages []llm.Message) (llm.Completion, error) {
	var completion llm.Completion
	err := domain.CallAdapter(ctx, AdapterLLM, e.opts.LLMTimeout, func(ctx context.Context) error {
		var err error
		completion, err = e.completer.Complete(ctx, systemPrompt, messages)
		return err //nolint:wrapcheck // classified by CallAdapter
	})
	if err != nil {
		return llm.Completion{}, fmt.Errorf("complete: %w", err)
	}
	return completion, nil
}

// MatchDistribution counts results per match tier.
func (e *Engine) MatchDistribution(results []retrieval.Result) map[retrieval.MatchStrength]int {
	return retrieval.Distribution(results)
}
