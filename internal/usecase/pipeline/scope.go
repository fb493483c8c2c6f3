package pipeline

import (
	"strings"

	"github.com/kailas-cloud/aegis/internal/domain"
	"github.com/kailas-cloud/aegis/internal/domain/document"
	"github.com/kailas-cloud/aegis/internal/domain/llm"
)

// Scope narrows which document types ground an answer.
type Scope string

// Context scopes.
const (
	ScopeGeneral    Scope = "general"
	ScopePolicy     Scope = "policy"
	ScopeRisk       Scope = "risk"
	ScopeCompliance Scope = "compliance"
)

// ParseScope accepts the known scopes, case-insensitively. Empty means general.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case "", ScopeGeneral:
		return ScopeGeneral, nil
	case ScopePolicy, ScopeRisk, ScopeCompliance:
		return sc, nil
	default:
		return "", domain.NewValidationError("context_type", s, "must be one of general, policy, risk, compliance")
	}
}

// Types returns the document types searched for the scope. Nil means all.
func (s Scope) Types() []document.Type {
	switch s {
	case ScopePolicy:
		return []document.Type{document.TypePolicy, document.TypeFramework}
	case ScopeRisk:
		return []document.Type{document.TypeRisk, document.TypeThreatIntel}
	case ScopeCompliance:
		return []document.Type{document.TypeFramework, document.TypeControl}
	default:
		return nil
	}
}

// Role is the prompt role used when the caller does not pick one.
func (s Scope) Role() llm.PromptRole {
	if s == ScopeRisk {
		return llm.PromptRiskAnalyst
	}
	return llm.PromptPolicyMapper
}
