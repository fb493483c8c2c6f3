// Package chi exposes the aegis HTTP API on a chi router.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aegis/internal/domain"
	domdlp "github.com/kailas-cloud/aegis/internal/domain/dlp"
	"github.com/kailas-cloud/aegis/internal/domain/document"
	"github.com/kailas-cloud/aegis/internal/domain/llm"
	"github.com/kailas-cloud/aegis/internal/domain/retrieval"
	"github.com/kailas-cloud/aegis/internal/metrics"
	healthuc "github.com/kailas-cloud/aegis/internal/usecase/health"
	"github.com/kailas-cloud/aegis/internal/usecase/pipeline"
	"github.com/kailas-cloud/aegis/internal/usecase/rag"
)

const (
	maxAIBodyBytes       = 1 << 20
	maxDocumentBodyBytes = document.MaxContentSize + 1<<20
	maxChatMessages      = 50
	maxSearchTopK        = 50
)

// Server holds the HTTP handlers.
type Server struct {
	pipeline Pipeline
	scanner  Scanner
	indexer  Indexer
	health   HealthReporter
	logger   *zap.Logger
}

// Options configures the router.
type Options struct {
	APIKeys   []string
	RateLimit *RateLimiter
}

// NewServer creates an HTTP API server.
func NewServer(p Pipeline, scanner Scanner, indexer Indexer, health HealthReporter, logger *zap.Logger) *Server {
	return &Server{pipeline: p, scanner: scanner, indexer: indexer, health: health, logger: logger}
}

// Router wires middleware and routes.
func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(opts.APIKeys))
	r.Use(ActorMiddleware)
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(opts.RateLimit.Middleware)
			r.Use(bodyLimit(maxAIBodyBytes))
			r.Post("/ai/query", s.Query)
			r.Post("/ai/chat", s.Chat)
		})

		r.With(bodyLimit(maxAIBodyBytes)).Post("/dlp/scan", s.Scan)

		r.Route("/documents", func(r chi.Router) {
			r.Use(bodyLimit(maxDocumentBodyBytes))
			r.Post("/", s.AddDocument)
			r.Post("/policies", s.IndexPolicy)
			r.Post("/controls", s.IndexControl)
			r.Post("/threats", s.IndexThreat)
			r.With(opts.RateLimit.Middleware).Get("/search", s.SearchDocuments)
			r.Delete("/{type}/{id}", s.DeleteDocument)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

func bodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// --- AI ---

// QueryRequest is the body of POST /api/v1/ai/query.
type QueryRequest struct {
	Query       string `json:"query"`
	ContextType string `json:"context_type"`
	Role        string `json:"role"`
}

// SourceResponse describes one grounding chunk.
type SourceResponse struct {
	ID            string         `json:"id"`
	ParentID      string         `json:"parent_id"`
	DocType       string         `json:"doc_type"`
	Partition     string         `json:"partition"`
	Rank          int            `json:"rank"`
	Similarity    float64        `json:"similarity"`
	MatchStrength string         `json:"match_strength"`
	Content       string         `json:"content,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// QueryResponse is the body returned by POST /api/v1/ai/query.
type QueryResponse struct {
	Answer            string           `json:"answer"`
	Sources           []SourceResponse `json:"sources"`
	Confidence        float64          `json:"confidence"`
	Filtered          bool             `json:"filtered"`
	InputRedacted     bool             `json:"input_redacted"`
	Model             string           `json:"model"`
	Role              string           `json:"role"`
	DurationMS        int64            `json:"duration_ms"`
	ContextUsed       bool             `json:"context_used"`
	MatchDistribution map[string]int   `json:"match_distribution"`
}

// Query handles POST /api/v1/ai/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decode(w, r, &req) {
		return
	}

	scope, err := pipeline.ParseScope(req.ContextType)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	ans, err := s.pipeline.Ask(r.Context(), pipeline.AskRequest{
		Question: req.Query,
		Scope:    scope,
		Role:     req.Role,
		Actor:    ActorFromContext(r.Context()),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	dist := make(map[string]int, len(ans.Distribution))
	for k, v := range ans.Distribution {
		dist[string(k)] = v
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Answer:            ans.Answer,
		Sources:           sourcesToResponse(ans.Sources, false),
		Confidence:        ans.Confidence,
		Filtered:          ans.Filtered,
		InputRedacted:     ans.InputRedacted,
		Model:             ans.Model,
		Role:              string(ans.Role),
		DurationMS:        ans.Duration.Milliseconds(),
		ContextUsed:       ans.Context != "",
		MatchDistribution: dist,
	})
}

// ChatRequest is the body of POST /api/v1/ai/chat.
type ChatRequest struct {
	Messages []llm.Message `json:"messages"`
}

// ChatResponse is the body returned by POST /api/v1/ai/chat.
type ChatResponse struct {
	Content    string `json:"content"`
	Model      string `json:"model"`
	Tokens     int    `json:"tokens"`
	DurationMS int64  `json:"duration_ms"`
	Filtered   bool   `json:"filtered"`
}

// Chat handles POST /api/v1/ai/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Messages) > maxChatMessages {
		handleDomainError(w, r, domain.NewValidationError("messages", len(req.Messages), "too many messages"))
		return
	}

	reply, err := s.pipeline.Chat(r.Context(), req.Messages, ActorFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Content:    reply.Content,
		Model:      reply.Model,
		Tokens:     reply.Tokens,
		DurationMS: reply.Duration.Milliseconds(),
		Filtered:   reply.Filtered,
	})
}

// --- DLP ---

// ScanRequest is the body of POST /api/v1/dlp/scan.
type ScanRequest struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

// FindingResponse is the audit-safe view of a finding. Matched text is omitted.
type FindingResponse struct {
	DataType     string      `json:"data_type"`
	Action       string      `json:"action"`
	Confidence   float64     `json:"confidence"`
	Span         domdlp.Span `json:"span"`
	RedactedText string      `json:"redacted_text"`
	Source       string      `json:"source"`
}

// ScanResponse is the body returned by POST /api/v1/dlp/scan.
type ScanResponse struct {
	ScanID        string            `json:"scan_id"`
	SanitizedText string            `json:"sanitized_text"`
	Blocked       bool              `json:"blocked"`
	Degraded      bool              `json:"degraded"`
	Findings      []FindingResponse `json:"findings"`
	DurationMS    float64           `json:"duration_ms"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Scan handles POST /api/v1/dlp/scan.
func (s *Server) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Text == "" {
		handleDomainError(w, r, domain.NewValidationError("text", nil, "must not be empty"))
		return
	}
	label := req.Context
	if label == "" {
		label = "api"
	}

	res := s.scanner.Scan(r.Context(), req.Text, label, ActorFromContext(r.Context()))

	findings := make([]FindingResponse, 0, len(res.Findings))
	for _, f := range res.Findings {
		findings = append(findings, FindingResponse{
			DataType:     string(f.DataType),
			Action:       string(f.Action),
			Confidence:   f.Confidence,
			Span:         f.Span,
			RedactedText: f.RedactedText,
			Source:       string(f.Source),
		})
	}

	writeJSON(w, http.StatusOK, ScanResponse{
		ScanID:        res.ScanID,
		SanitizedText: res.SanitizedText,
		Blocked:       res.Blocked,
		Degraded:      res.Degraded,
		Findings:      findings,
		DurationMS:    float64(res.Duration.Microseconds()) / 1000,
		Timestamp:     res.Timestamp,
	})
}

// --- Documents ---

// AddDocumentRequest is the body of POST /api/v1/documents.
type AddDocumentRequest struct {
	Content  string         `json:"content"`
	DocType  string         `json:"doc_type"`
	DocID    string         `json:"doc_id"`
	Metadata map[string]any `json:"metadata"`
}

// DocumentCreatedResponse carries the id of an indexed document.
type DocumentCreatedResponse struct {
	ID string `json:"id"`
}

// AddDocument handles POST /api/v1/documents.
func (s *Server) AddDocument(w http.ResponseWriter, r *http.Request) {
	var req AddDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	docType, err := document.ParseType(req.DocType)
	if err != nil {
		handleDomainError(w, r, domain.NewValidationError("doc_type", req.DocType, err.Error()))
		return
	}

	id, err := s.indexer.AddDocument(r.Context(), req.Content, docType, req.DocID, req.Metadata)
	s.writeCreated(w, r, id, err)
}

// PolicyRequest is the body of POST /api/v1/documents/policies.
type PolicyRequest struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Statements []rag.Statement `json:"statements"`
	Metadata   map[string]any  `json:"metadata"`
}

// IndexPolicy handles POST /api/v1/documents/policies.
func (s *Server) IndexPolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Title == "" {
		handleDomainError(w, r, domain.NewValidationError("title", nil, "is required"))
		return
	}

	id, err := s.indexer.IndexPolicy(r.Context(), rag.PolicyInput{
		ID:         req.ID,
		Title:      req.Title,
		Content:    req.Content,
		Statements: req.Statements,
		Metadata:   req.Metadata,
	})
	s.writeCreated(w, r, id, err)
}

// ControlRequest is the body of POST /api/v1/documents/controls.
type ControlRequest struct {
	ID          string `json:"id"`
	Framework   string `json:"framework"`
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Guidance    string `json:"guidance"`
}

// IndexControl handles POST /api/v1/documents/controls.
func (s *Server) IndexControl(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Framework == "" || req.Code == "" {
		handleDomainError(w, r, domain.NewValidationError("framework/code", nil, "are required"))
		return
	}

	id, err := s.indexer.IndexFrameworkControl(r.Context(), rag.ControlInput{
		ID:          req.ID,
		Framework:   req.Framework,
		Code:        req.Code,
		Title:       req.Title,
		Description: req.Description,
		Guidance:    req.Guidance,
	})
	s.writeCreated(w, r, id, err)
}

// ThreatRequest is the body of POST /api/v1/documents/threats.
type ThreatRequest struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Indicators      []string `json:"indicators"`
	MITRETechniques []string `json:"mitre_techniques"`
	Severity        string   `json:"severity"`
}

// IndexThreat handles POST /api/v1/documents/threats.
func (s *Server) IndexThreat(w http.ResponseWriter, r *http.Request) {
	var req ThreatRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		handleDomainError(w, r, domain.NewValidationError("name", nil, "is required"))
		return
	}

	id, err := s.indexer.IndexThreatIntel(r.Context(), rag.ThreatInput{
		ID:              req.ID,
		Name:            req.Name,
		Description:     req.Description,
		Indicators:      req.Indicators,
		MITRETechniques: req.MITRETechniques,
		Severity:        req.Severity,
	})
	s.writeCreated(w, r, id, err)
}

func (s *Server) writeCreated(w http.ResponseWriter, r *http.Request, id string, err error) {
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DocumentCreatedResponse{ID: id})
}

// SearchResponse is the body returned by GET /api/v1/documents/search.
type SearchResponse struct {
	Items []SourceResponse `json:"items"`
	Total int              `json:"total"`
}

// SearchDocuments handles GET /api/v1/documents/search.
func (s *Server) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	types, err := parseTypes(q["doc_type"])
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	var topK int
	if v := q.Get("top_k"); v != "" {
		topK, err = strconv.Atoi(v)
		if err != nil || topK < 1 || topK > maxSearchTopK {
			handleDomainError(w, r, domain.NewValidationError("top_k", v, "must be an integer between 1 and 50"))
			return
		}
	}

	var minSim *float64
	if v := q.Get("min_similarity"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			handleDomainError(w, r, domain.NewValidationError("min_similarity", v, "must be a number in [0,1]"))
			return
		}
		minSim = &f
	}

	results, err := s.pipeline.Search(r.Context(), pipeline.SearchRequest{
		Query:         q.Get("query"),
		Types:         types,
		TopK:          topK,
		MinSimilarity: minSim,
		Actor:         ActorFromContext(r.Context()),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Items: sourcesToResponse(results, true),
		Total: len(results),
	})
}

// DeleteResponse reports how many chunks were removed.
type DeleteResponse struct {
	ID            string `json:"id"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

// DeleteDocument handles DELETE /api/v1/documents/{type}/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	rawType := chi.URLParam(r, "type")
	docType, err := document.ParseType(rawType)
	if err != nil {
		handleDomainError(w, r, domain.NewValidationError("type", rawType, err.Error()))
		return
	}
	id := chi.URLParam(r, "id")

	n, err := s.indexer.DeleteDocument(r.Context(), id, docType)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{ID: id, ChunksDeleted: n})
}

// --- Health ---

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health. Only an unhealthy report answers 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Status: string(report.Status), Checks: checks})
}

// parseTypes accepts repeated or comma-separated doc_type values.
func parseTypes(raw []string) ([]document.Type, error) {
	var out []document.Type
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			t, err := document.ParseType(part)
			if err != nil {
				return nil, domain.NewValidationError("doc_type", part, err.Error())
			}
			out = append(out, t)
		}
	}
	return out, nil
}

func sourcesToResponse(results []retrieval.Result, withContent bool) []SourceResponse {
	out := make([]SourceResponse, 0, len(results))
	for _, res := range results {
		src := SourceResponse{
			ID:            res.Chunk.ID,
			ParentID:      res.Chunk.ParentID,
			DocType:       string(res.Chunk.Type),
			Partition:     string(res.Partition),
			Rank:          res.Rank,
			Similarity:    res.Similarity,
			MatchStrength: string(res.MatchStrength),
			Metadata:      res.Chunk.Metadata,
		}
		if withContent {
			src.Content = res.Chunk.Text
		}
		out = append(out, src)
	}
	return out
}
