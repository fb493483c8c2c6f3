package pipeline

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aegis/internal/domain"
	"github.com/kailas-cloud/aegis/internal/domain/document"
	"github.com/kailas-cloud/aegis/internal/domain/llm"
	"github.com/kailas-cloud/aegis/internal/domain/retrieval"
	"github.com/kailas-cloud/aegis/internal/usecase/rag"
)

// MaxQuestionLength caps questions and search queries, in characters.
const MaxQuestionLength = 4000

// AskRequest is a grounded question.
type AskRequest struct {
	Question string
	Scope    Scope
	// Role overrides the scope's default prompt role when set.
	Role  string
	Actor string
}

// Answer is a scanned, grounded response.
type Answer struct {
	retrieval.Response
	Role         llm.PromptRole
	Distribution map[retrieval.MatchStrength]int
	// InputRedacted is set when the question was rewritten before retrieval.
	InputRedacted bool
	// Filtered is set when the model output contained sensitive data.
	Filtered bool
}

// ChatReply is a scanned reply to a conversation.
type ChatReply struct {
	Content  string
	Model    string
	Tokens   int
	Duration time.Duration
	Filtered bool
}

// SearchRequest is a retrieval without generation.
type SearchRequest struct {
	Query string
	Types []document.Type
	TopK  int
	Actor string

	// MinSimilarity overrides the engine's floor when set.
	MinSimilarity *float64
}

// Service runs every model-facing request through scan, retrieve, generate
// and scan again, in that order.
type Service struct {
	scanner Scanner
	engine  Engine
	logger  *zap.Logger
}

// New creates the query pipeline.
func New(scanner Scanner, engine Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{scanner: scanner, engine: engine, logger: logger}
}

// Ask answers a question from the knowledge base.
func (s *Service) Ask(ctx context.Context, req AskRequest) (Answer, error) {
	if err := validateText("question", req.Question); err != nil {
		return Answer{}, err
	}
	role := req.Scope.Role()
	if req.Role != "" {
		r, err := llm.ParsePromptRole(req.Role)
		if err != nil {
			return Answer{}, domain.NewValidationError("role", req.Role, err.Error())
		}
		role = r
	}

	sanitized, _, err := s.scanner.ScanPrompt(ctx, req.Question, req.Actor)
	if err != nil {
		return Answer{}, fmt.Errorf("scan question: %w", err)
	}

	resp, err := s.engine.Query(ctx, sanitized, req.Scope.Types(), role)
	if err != nil {
		return Answer{}, fmt.Errorf("query: %w", err)
	}

	answer, filtered := s.scanner.ScanOutput(ctx, resp.Answer, req.Actor)
	resp.Answer = answer

	s.logger.Info("Question answered",
		zap.String("actor", req.Actor),
		zap.String("scope", string(req.Scope)),
		zap.String("role", string(role)),
		zap.Int("sources", len(resp.Sources)),
		zap.Bool("input_redacted", sanitized != req.Question),
		zap.Bool("filtered", filtered),
	)

	return Answer{
		Response:      resp,
		Role:          role,
		Distribution:  retrieval.Distribution(resp.Sources),
		InputRedacted: sanitized != req.Question,
		Filtered:      filtered,
	}, nil
}

// Chat continues a conversation without retrieval. Every client-supplied
// message, user or assistant, is scanned before it reaches the model.
func (s *Service) Chat(ctx context.Context, messages []llm.Message, actor string) (ChatReply, error) {
	if len(messages) == 0 {
		return ChatReply{}, domain.NewValidationError("messages", 0, "at least one message is required")
	}

	scanned := make([]llm.Message, len(messages))
	for i, m := range messages {
		switch m.Role {
		case llm.RoleUser, llm.RoleAssistant:
			sanitized, _, err := s.scanner.ScanPrompt(ctx, m.Content, actor)
			if err != nil {
				return ChatReply{}, fmt.Errorf("scan message %d: %w", i, err)
			}
			scanned[i] = llm.Message{Role: m.Role, Content: sanitized}
		default:
			return ChatReply{}, domain.NewValidationError(fmt.Sprintf("messages[%d].role", i), m.Role, "must be user or assistant")
		}
	}

	completion, err := s.engine.Complete(ctx, llm.SystemPrompt(llm.PromptGeneral), scanned)
	if err != nil {
		return ChatReply{}, fmt.Errorf("chat: %w", err)
	}

	content, filtered := s.scanner.ScanOutput(ctx, completion.Text, actor)

	s.logger.Info("Chat completed",
		zap.String("actor", actor),
		zap.Int("messages", len(messages)),
		zap.Bool("filtered", filtered),
	)

	return ChatReply{
		Content:  content,
		Model:    completion.Model,
		Tokens:   completion.TokenCount,
		Duration: completion.Duration,
		Filtered: filtered,
	}, nil
}

// Search retrieves matching chunks for a scanned query.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]retrieval.Result, error) {
	if err := validateText("query", req.Query); err != nil {
		return nil, err
	}

	sanitized, _, err := s.scanner.ScanPrompt(ctx, req.Query, req.Actor)
	if err != nil {
		return nil, fmt.Errorf("scan query: %w", err)
	}

	results, err := s.engine.Retrieve(ctx, sanitized, rag.RetrieveOptions{
		Types:         req.Types,
		TopK:          req.TopK,
		MinSimilarity: req.MinSimilarity,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

func validateText(field, text string) error {
	if text == "" {
		return domain.NewValidationError(field, text, "must not be empty")
	}
	if n := utf8.RuneCountInString(text); n > MaxQuestionLength {
		return domain.NewValidationError(field, n, fmt.Sprintf("must be at most %d characters", MaxQuestionLength))
	}
	return nil
}
