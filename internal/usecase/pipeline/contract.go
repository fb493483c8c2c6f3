package pipeline

import (
	"context"

	"github.com/kailas-cloud/aegis/internal/domain/document"
	"github.com/kailas-cloud/aegis/internal/domain/llm"
	"github.com/kailas-cloud/aegis/internal/domain/retrieval"
	"github.com/kailas-cloud/aegis/internal/usecase/rag"
)

// Scanner screens text crossing the model boundary.
type Scanner interface {
	ScanPrompt(ctx context.Context, text, actor string) (sanitized string, blocked bool, err error)
	ScanOutput(ctx context.Context, text, actor string) (sanitized string, hadFindings bool)
}

// Engine retrieves grounding context and talks to the language model.
type Engine interface {
	Query(ctx context.Context, question string, types []document.Type, role llm.PromptRole) (retrieval.Response, error)
	Retrieve(ctx context.Context, query string, opts rag.RetrieveOptions) ([]retrieval.Result, error)
	Complete(ctx context.Context, systemPrompt string, messages []llm.Message) (llm.Completion, error)
}
