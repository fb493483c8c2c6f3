package chi

import (
	"context"

	domdlp "github.com/kailas-cloud/aegis/internal/domain/dlp"
	"github.com/kailas-cloud/aegis/internal/domain/document"
	"github.com/kailas-cloud/aegis/internal/domain/llm"
	"github.com/kailas-cloud/aegis/internal/domain/retrieval"
	healthuc "github.com/kailas-cloud/aegis/internal/usecase/health"
	"github.com/kailas-cloud/aegis/internal/usecase/pipeline"
	"github.com/kailas-cloud/aegis/internal/usecase/rag"
)

// Pipeline answers model-facing requests behind the DLP boundary.
type Pipeline interface {
	Ask(ctx context.Context, req pipeline.AskRequest) (pipeline.Answer, error)
	Chat(ctx context.Context, messages []llm.Message, actor string) (pipeline.ChatReply, error)
	Search(ctx context.Context, req pipeline.SearchRequest) ([]retrieval.Result, error)
}

// Scanner runs a standalone DLP scan.
type Scanner interface {
	Scan(ctx context.Context, text, contextLabel, actor string) domdlp.ScanResult
}

// Indexer manages the knowledge base.
type Indexer interface {
	AddDocument(ctx context.Context, content string, docType document.Type, id string, metadata map[string]any) (string, error)
	IndexPolicy(ctx context.Context, in rag.PolicyInput) (string, error)
	IndexFrameworkControl(ctx context.Context, in rag.ControlInput) (string, error)
	IndexThreatIntel(ctx context.Context, in rag.ThreatInput) (string, error)
	DeleteDocument(ctx context.Context, id string, docType document.Type) (int, error)
}

// HealthReporter aggregates component health.
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}
