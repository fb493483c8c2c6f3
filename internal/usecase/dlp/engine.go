package dlp

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aegis/internal/domain"
	domdlp "github.com/kailas-cloud/aegis/internal/domain/dlp"
	"github.com/kailas-cloud/aegis/internal/metrics"
)

// Scan context labels.
const (
	ContextPrompt   = "ai_prompt"
	ContextOutput   = "ai_output"
	ContextDocument = "document"
	ContextAPI      = "api"
)

const recognizerAdapter = "entity_recognizer"

// Engine detects, classifies and redacts sensitive data.
// It holds no per-scan state and is safe for concurrent use.
type Engine struct {
	recognizer Recognizer
	auditor    Auditor
	policy     domdlp.Policy
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a DLP engine. A nil recognizer runs structural patterns only.
func New(recognizer Recognizer, policy domdlp.Policy, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		recognizer: recognizer,
		policy:     policy,
		timeout:    10 * time.Second,
		logger:     logger,
		now:        time.Now,
	}
}

// WithAuditor publishes an audit record for every scan.
func (e *Engine) WithAuditor(a Auditor) *Engine {
	e.auditor = a
	return e
}

// WithRecognizerTimeout bounds each entity recognizer call.
func (e *Engine) WithRecognizerTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// Policy returns the action policy in effect.
func (e *Engine) Policy() domdlp.Policy { return e.policy }

// Scan runs entity and structural detection over text and returns the
// sanitized result. It never fails: a recognizer error degrades the scan to
// structural patterns only.
func (e *Engine) Scan(ctx context.Context, text, contextLabel, actor string) domdlp.ScanResult {
	start := e.now()
	res := domdlp.ScanResult{
		ScanID:       uuid.NewString(),
		Context:      contextLabel,
		Actor:        actor,
		OriginalText: text,
		Timestamp:    start.UTC(),
	}

	entities, err := e.detectEntities(ctx, text)
	if err != nil {
		res.Degraded = true
		metrics.DLPRecognizerDegradedTotal.Inc()
		e.logger.Warn("Entity recognition unavailable, using structural patterns only",
			zap.String("scan_id", res.ScanID),
			zap.String("context", contextLabel),
			zap.Error(err),
		)
	}

	findings := e.entityFindings(text, entities)
	findings = append(findings, structuralFindings(text)...)
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Span.Start != findings[j].Span.Start {
			return findings[i].Span.Start < findings[j].Span.Start
		}
		return findings[i].Span.End < findings[j].Span.End
	})

	res.Findings = findings
	for _, f := range findings {
		if f.Action == domdlp.ActionBlock {
			res.Blocked = true
			break
		}
	}
	res.SanitizedText = domdlp.Redact(text, findings)
	res.Duration = e.now().Sub(start)

	e.observe(ctx, &res)
	return res
}

// ScanPrompt scans model input. When blocking is enforced and the scan
// blocked, it fails with *domain.BlockedContentError.
func (e *Engine) ScanPrompt(ctx context.Context, text, actor string) (sanitized string, blocked bool, err error) {
	res := e.Scan(ctx, text, ContextPrompt, actor)
	if res.Blocked && e.policy.BlockOnDetection {
		e.logger.Error("Prompt blocked",
			zap.String("scan_id", res.ScanID),
			zap.String("actor", actor),
			zap.Strings("data_types", res.DataTypes(domdlp.ActionBlock)),
		)
		return "", true, &domain.BlockedContentError{
			ScanID:    res.ScanID,
			DataTypes: res.DataTypes(domdlp.ActionBlock),
		}
	}
	return res.SanitizedText, res.Blocked, nil
}

// ScanOutput scans model output. It never fails; hadFindings reports whether
// anything was detected.
func (e *Engine) ScanOutput(ctx context.Context, text, actor string) (sanitized string, hadFindings bool) {
	res := e.Scan(ctx, text, ContextOutput, actor)
	return res.SanitizedText, len(res.Findings) > 0
}

func (e *Engine) detectEntities(ctx context.Context, text string) ([]domdlp.Entity, error) {
	if e.recognizer == nil || text == "" {
		return nil, nil
	}
	var entities []domdlp.Entity
	err := domain.CallAdapter(ctx, recognizerAdapter, e.timeout, func(ctx context.Context) error {
		var err error
		entities, err = e.recognizer.Detect(ctx, text)
		return err //nolint:wrapcheck // classified by CallAdapter
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // already a domain error
	}
	return entities, nil
}

func (e *Engine) entityFindings(text string, entities []domdlp.Entity) []domdlp.Finding {
	out := make([]domdlp.Finding, 0, len(entities))
	for _, ent := range entities {
		if ent.Start < 0 || ent.End > len(text) || ent.Start >= ent.End {
			e.logger.Debug("Dropping out-of-range entity",
				zap.String("entity", ent.Type),
				zap.Int("start", ent.Start),
				zap.Int("end", ent.End),
			)
			continue
		}
		dt := domdlp.MapEntityType(ent.Type)
		out = append(out, domdlp.Finding{
			DataType:     dt,
			Confidence:   ent.Score,
			Span:         domdlp.Span{Start: ent.Start, End: ent.End},
			MatchedText:  text[ent.Start:ent.End],
			RedactedText: dt.Label(),
			Action:       e.policy.Decide(dt, ent.Score),
			Source:       domdlp.SourceEntity,
		})
	}
	return out
}

// observe records metrics, logs scan metadata and publishes the audit record.
// Matched text is never logged.
func (e *Engine) observe(ctx context.Context, res *domdlp.ScanResult) {
	outcome := "clean"
	switch {
	case res.Blocked:
		outcome = "blocked"
	case len(res.Findings) > 0:
		outcome = "findings"
	}
	metrics.DLPScansTotal.WithLabelValues(res.Context, outcome).Inc()
	for _, f := range res.Findings {
		metrics.DLPFindingsTotal.WithLabelValues(string(f.DataType), string(f.Action)).Inc()
	}

	if len(res.Findings) > 0 {
		e.logger.Warn("DLP findings detected",
			zap.String("scan_id", res.ScanID),
			zap.String("context", res.Context),
			zap.String("actor", res.Actor),
			zap.Int("finding_count", len(res.Findings)),
			zap.Bool("blocked", res.Blocked),
			zap.Strings("data_types", res.DataTypes("")),
			zap.Duration("duration", res.Duration),
		)
	}

	if e.auditor == nil {
		return
	}
	if err := e.auditor.Record(ctx, domdlp.NewAuditRecord(res)); err != nil {
		e.logger.Warn("Audit record not published",
			zap.String("scan_id", res.ScanID),
			zap.Error(err),
		)
	}
}
