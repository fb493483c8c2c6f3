package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aegis/internal/config"
	"github.com/kailas-cloud/aegis/internal/db/qdrant"
	"github.com/kailas-cloud/aegis/internal/db/valkey"
	"github.com/kailas-cloud/aegis/internal/domain"
	domdlp "github.com/kailas-cloud/aegis/internal/domain/dlp"
	"github.com/kailas-cloud/aegis/internal/domain/document"
	"github.com/kailas-cloud/aegis/internal/domain/llm"
	"github.com/kailas-cloud/aegis/internal/metrics"
	"github.com/kailas-cloud/aegis/internal/repository/chunk"
	"github.com/kailas-cloud/aegis/internal/repository/embcache"
	natsaudit "github.com/kailas-cloud/aegis/internal/transport/nats"
	"github.com/kailas-cloud/aegis/internal/transport/ollama"
	openaiTransport "github.com/kailas-cloud/aegis/internal/transport/openai"
	"github.com/kailas-cloud/aegis/internal/transport/presidio"
	"github.com/kailas-cloud/aegis/internal/transport/regexner"
	dlpuc "github.com/kailas-cloud/aegis/internal/usecase/dlp"
	embeddinguc "github.com/kailas-cloud/aegis/internal/usecase/embedding"
	"github.com/kailas-cloud/aegis/internal/usecase/health"
	"github.com/kailas-cloud/aegis/internal/usecase/rag"
)

// recognizer is an entity recognizer that can report its own health.
type recognizer interface {
	dlpuc.Recognizer
	health.Checker
}

// embedder is a provider client that can report its own health.
type embedder interface {
	domain.Embedder
	health.Checker
}

// completer is an LLM client that can report its own health.
type completer interface {
	llm.Completer
	health.Checker
}

// vectorStore is the chunk index plus its connectivity probe.
type vectorStore interface {
	rag.VectorIndex
	health.StorePinger
}

// app is the composition root shared by every subcommand. Components are
// built lazily so that `scan` never dials the vector store.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	closers []func()

	recognizer recognizer
	scanner    *dlpuc.Engine
}

func newApp(cfg config.Config, logger *zap.Logger) *app {
	return &app{cfg: cfg, logger: logger}
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) onClose(f func()) { a.closers = append(a.closers, f) }

// Scanner builds the DLP engine, attaching the NATS auditor when enabled.
func (a *app) Scanner() (*dlpuc.Engine, error) {
	if a.scanner != nil {
		return a.scanner, nil
	}

	timeout := time.Duration(a.cfg.NER.TimeoutSec) * time.Second
	switch a.cfg.NER.Provider {
	case "presidio":
		a.recognizer = presidio.New(a.cfg.NER.BaseURL, a.cfg.NER.Language, a.cfg.NER.ScoreThreshold, timeout)
	default:
		a.recognizer = regexner.New(a.cfg.NER.ScoreThreshold)
	}

	engine := dlpuc.New(a.recognizer, domdlp.Policy{BlockOnDetection: a.cfg.DLP.BlockOnDetection}, a.logger).
		WithRecognizerTimeout(timeout)

	if a.cfg.Audit.Enabled {
		auditor, err := natsaudit.Connect(a.cfg.Audit.NATSURL, a.cfg.Audit.Subject, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect audit bus: %w", err)
		}
		a.onClose(func() {
			if err := auditor.Close(); err != nil {
				a.logger.Warn("Failed to drain audit connection", zap.Error(err))
			}
		})
		engine.WithAuditor(auditor)
		a.logger.Info("DLP audit publishing enabled", zap.String("subject", a.cfg.Audit.Subject))
	}

	a.logger.Info("DLP engine created",
		zap.String("recognizer", a.cfg.NER.Provider),
		zap.Bool("block_on_detection", a.cfg.DLP.BlockOnDetection),
	)
	a.scanner = engine
	return engine, nil
}

// ragStack bundles the RAG engine with the clients health checks probe.
type ragStack struct {
	engine    *rag.Engine
	store     vectorStore
	embedding embedder
	llm       completer
}

// Retrieval connects the vector store and model providers and builds the RAG engine.
func (a *app) Retrieval(ctx context.Context) (*ragStack, error) {
	store, kv, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}

	provider := a.buildEmbeddingProvider()
	docEmbedder, queryEmbedder := a.buildEmbedders(provider, kv)
	llmClient := a.buildCompleter()

	engine, err := rag.New(store, docEmbedder, queryEmbedder, llmClient, rag.Options{
		ChunkSize:        a.cfg.RAG.ChunkSize,
		ChunkOverlap:     a.cfg.RAG.ChunkOverlap,
		TopK:             a.cfg.RAG.TopK,
		MinSimilarity:    a.cfg.RAG.SimilarityThreshold,
		Thresholds:       a.cfg.RAG.Thresholds(),
		EmbeddingTimeout: time.Duration(a.cfg.Embedding.TimeoutSec) * time.Second,
		LLMTimeout:       time.Duration(a.cfg.LLM.TimeoutSec) * time.Second,
		StoreTimeout:     time.Duration(a.cfg.VectorStore.TimeoutSec) * time.Second,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create rag engine: %w", err)
	}

	return &ragStack{engine: engine, store: store, embedding: provider, llm: llmClient}, nil
}

func (a *app) collections() map[document.Partition]string {
	return map[document.Partition]string{
		document.PartitionPolicies: a.cfg.RAG.Partitions.Policies,
		document.PartitionEvidence: a.cfg.RAG.Partitions.Evidence,
		document.PartitionThreats:  a.cfg.RAG.Partitions.Threats,
	}
}

// buildStore returns the chunk index and, for the Valkey/Redis drivers, the
// key-value store backing the embedding cache.
func (a *app) buildStore(ctx context.Context) (vectorStore, *valkey.Store, error) {
	vs := a.cfg.VectorStore
	readiness := time.Duration(vs.ReadinessTimeout) * time.Second

	if vs.Driver == "qdrant" {
		store, err := qdrant.New(qdrant.Config{
			Addr:        vs.QdrantAddr,
			Collections: a.collections(),
			Dimensions:  a.cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create qdrant store: %w", err)
		}
		a.onClose(func() { _ = store.Close() })

		initCtx, cancel := context.WithTimeout(ctx, readiness)
		defer cancel()
		if err := store.EnsurePartitions(initCtx); err != nil {
			return nil, nil, fmt.Errorf("ensure partitions: %w", err)
		}
		a.logger.Info("Connected to vector store", zap.String("driver", vs.Driver), zap.String("addr", vs.QdrantAddr))
		return store, nil, nil
	}

	kv, err := valkey.NewStore(valkey.Config{Addrs: vs.Addrs, Password: vs.Password})
	if err != nil {
		return nil, nil, fmt.Errorf("create %s store: %w", vs.Driver, err)
	}
	a.onClose(kv.Close)

	if err := kv.WaitForReady(ctx, readiness); err != nil {
		return nil, nil, fmt.Errorf("vector store not ready: %w", err)
	}

	repo, err := chunk.New(kv, chunk.Config{
		Collections: a.collections(),
		Dimensions:  a.cfg.Embedding.Dimensions,
		HNSWM:       vs.HNSWM,
		EFConstruct: vs.HNSWEFConstruct,
	}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create chunk repository: %w", err)
	}
	if err := repo.EnsurePartitions(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure partitions: %w", err)
	}
	a.logger.Info("Connected to vector store", zap.String("driver", vs.Driver), zap.Strings("addrs", vs.Addrs))

	return &valkeyIndex{Repo: repo, store: kv}, kv, nil
}

// valkeyIndex pairs the chunk repository with the connection it runs on.
type valkeyIndex struct {
	*chunk.Repo
	store *valkey.Store
}

func (v *valkeyIndex) Ping(ctx context.Context) error { return v.store.Ping(ctx) }

func (a *app) buildEmbeddingProvider() embedder {
	e := a.cfg.Embedding
	if e.Provider == "openai" {
		return openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     e.APIKey,
			BaseURL:    e.BaseURL,
			Model:      e.Model,
			Dimensions: e.Dimensions,
			Provider:   e.Provider,
			Logger:     a.logger,
		})
	}
	return ollama.New(ollama.Config{
		BaseURL: e.BaseURL,
		Model:   e.Model,
		Timeout: time.Duration(e.TimeoutSec) * time.Second,
		Logger:  a.logger,
	})
}

// buildEmbedders assembles the decorator chain:
// provider -> Instrumented -> Cached -> Instruction (document / query).
func (a *app) buildEmbedders(provider embedder, kv *valkey.Store) (doc, query domain.Embedder) {
	e := a.cfg.Embedding

	var inner domain.Embedder = embeddinguc.NewInstrumentedEmbedder(provider, e.Provider, e.Model, e.Dimensions, a.logger)
	if kv != nil && e.CacheEnabled() {
		inner = embcache.New(inner, kv, a.cfg.VectorStore.KeyPrefix, e.Model, metrics.EmbeddingCacheTotal, a.logger)
	}

	a.logger.Info("Embedders created",
		zap.String("provider", e.Provider),
		zap.String("model", e.Model),
		zap.Int("dimensions", e.Dimensions),
		zap.Bool("cache", kv != nil && e.CacheEnabled()),
	)
	return domain.NewInstructionEmbedder(inner, e.DocumentInstruction),
		domain.NewInstructionEmbedder(inner, e.QueryInstruction)
}

func (a *app) buildCompleter() completer {
	l := a.cfg.LLM
	if l.Provider == "ollama" {
		return ollama.New(ollama.Config{
			BaseURL:     l.BaseURL,
			Model:       l.Model,
			Temperature: l.Temperature,
			MaxTokens:   l.MaxTokens,
			Timeout:     time.Duration(l.TimeoutSec) * time.Second,
			Logger:      a.logger,
		})
	}
	return openaiTransport.NewCompleter(&openaiTransport.ChatConfig{
		APIKey:      l.APIKey,
		BaseURL:     l.BaseURL,
		Model:       l.Model,
		Temperature: l.Temperature,
		MaxTokens:   l.MaxTokens,
		Provider:    l.Provider,
		Logger:      a.logger,
	})
}

// checkSovereignty logs warnings and fails on any boundary violation.
func (a *app) checkSovereignty() error {
	warnings, err := config.ValidateSovereignty(&a.cfg)
	for _, w := range warnings {
		a.logger.Warn("Sovereignty warning", zap.String("warning", w))
	}
	if err != nil {
		return fmt.Errorf("sovereignty check: %w", err)
	}
	return nil
}
