package rag

import (
	"context"
	"maps"
	"strings"

	"github.com/kailas-cloud/aegis/internal/domain/document"
)

// Statement is one numbered clause of a policy.
type Statement struct {
	Code    string `json:"code"`
	Content string `json:"content"`
}

// PolicyInput describes a policy with its statements.
type PolicyInput struct {
	ID         string
	Title      string
	Content    string
	Statements []Statement
	Metadata   map[string]any
}

// ControlInput describes a single framework control.
type ControlInput struct {
	ID          string
	Framework   string
	Code        string
	Title       string
	Description string
	Guidance    string
}

// ThreatInput describes a threat intelligence entry.
type ThreatInput struct {
	ID              string
	Name            string
	Description     string
	Indicators      []string
	MITRETechniques []string
	Severity        string
}

// IndexPolicy indexes a policy and its statements as one document.
func (e *Engine) IndexPolicy(ctx context.Context, in PolicyInput) (string, error) {
	var b strings.Builder
	b.WriteString("# " + in.Title + "\n\n" + in.Content)
	for _, st := range in.Statements {
		code := st.Code
		if code == "" {
			code = "Statement"
		}
		b.WriteString("\n\n## " + code + "\n" + st.Content)
	}

	meta := maps.Clone(in.Metadata)
	if meta == nil {
		meta = make(map[string]any, 2)
	}
	meta["title"] = in.Title
	meta["statement_count"] = len(in.Statements)

	return e.AddDocument(ctx, b.String(), document.TypePolicy, in.ID, meta)
}

// IndexFrameworkControl indexes one control of a compliance framework.
func (e *Engine) IndexFrameworkControl(ctx context.Context, in ControlInput) (string, error) {
	var b strings.Builder
	b.WriteString("# " + in.Framework + " - " + in.Code + ": " + in.Title + "\n\n" + in.Description)
	if in.Guidance != "" {
		b.WriteString("\n\n## Implementation Guidance\n" + in.Guidance)
	}

	return e.AddDocument(ctx, b.String(), document.TypeControl, in.ID, map[string]any{
		"framework": in.Framework,
		"code":      in.Code,
		"title":     in.Title,
	})
}

// IndexThreatIntel indexes a threat with its indicators and ATT&CK techniques.
func (e *Engine) IndexThreatIntel(ctx context.Context, in ThreatInput) (string, error) {
	var b strings.Builder
	b.WriteString("# Threat: " + in.Name + "\n\n")
	b.WriteString("## Description\n" + in.Description + "\n\n")
	b.WriteString("## Indicators of Compromise\n" + bullets(in.Indicators) + "\n\n")
	b.WriteString("## MITRE ATT&CK Techniques\n" + bullets(in.MITRETechniques) + "\n\n")
	b.WriteString("## Severity: " + in.Severity)

	return e.AddDocument(ctx, b.String(), document.TypeThreatIntel, in.ID, map[string]any{
		"name":        in.Name,
		"severity":    in.Severity,
		"mitre_count": len(in.MITRETechniques),
	})
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}
