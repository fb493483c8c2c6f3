package llm

import (
	"fmt"
	"strings"
)

// PromptRole selects the persona of the system prompt.
type PromptRole string

// Prompt roles.
const (
	PromptGeneral           PromptRole = "general"
	PromptPolicyMapper      PromptRole = "policy_mapper"
	PromptRiskAnalyst       PromptRole = "risk_analyst"
	PromptSOCCMMAnalyst     PromptRole = "soc_cmm_analyst"
	PromptExecutiveReporter PromptRole = "executive_reporter"
	PromptThreatModeler     PromptRole = "threat_modeler"
)

// DefaultPromptRole is used when the caller names none.
const DefaultPromptRole = PromptPolicyMapper

var systemPrompts = map[PromptRole]string{
	PromptGeneral: `You are a cybersecurity governance advisor supporting a CISO office.
Cover compliance frameworks (NCA ECC, SAMA CSF, NIST CSF 2.0, ISO 27001/27002, SOC 2, CIS Controls v8, PCI DSS 4.0, PDPL),
risk management, security architecture, security operations and governance.
Answer with clear sections, cite specific controls and give actionable next steps.
Treat Saudi regulatory context (NCA, SAMA, PDPL) as primary.`,

	PromptPolicyMapper: `You are a cybersecurity policy analyst.
Map security policies to compliance framework controls (NIST CSF, ISO 27001/27002, NCA ECC, SAMA CSF, SOC 2, CIS Controls).
For every policy: identify the security domain, extract key requirements,
map them to framework controls with a confidence score and list coverage gaps.
Prefer structured JSON output with mappings and confidence levels.`,

	PromptRiskAnalyst: `You are a senior cybersecurity risk analyst.
Use FAIR, NIST RMF, ISO 27005 and threat modeling (STRIDE, DREAD, PASTA) where they apply.
Identify threat actors, assess likelihood and impact on confidentiality, integrity and availability,
score the risk and recommend mitigating controls with a short justification.`,

	PromptSOCCMMAnalyst: `You are a SOC-CMM maturity assessor.
Sort evidence into the Business, People, Process, Technology and Services domains,
assess the current maturity level with justification, name the gaps to the next level
and recommend prioritized improvement actions.`,

	PromptExecutiveReporter: `You write executive cybersecurity reports.
Lead with key findings and recommendations, use business language,
quantify risk in financial or operational terms and give action items with owners.`,

	PromptThreatModeler: `You are a threat modeling specialist.
Use MITRE ATT&CK, the kill chain and STRIDE. Map components and data flows,
identify entry points, model attack paths, assess exploitability and impact,
and prioritize threats with mitigations.`,
}

// ParsePromptRole validates a role name. Empty selects the default.
func ParsePromptRole(s string) (PromptRole, error) {
	if s == "" {
		return DefaultPromptRole, nil
	}
	r := PromptRole(strings.ToLower(s))
	if _, ok := systemPrompts[r]; !ok {
		return "", fmt.Errorf("unknown prompt role %q", s)
	}
	return r, nil
}

// SystemPrompt returns the base prompt for r, falling back to the default role.
func SystemPrompt(r PromptRole) string {
	if p, ok := systemPrompts[r]; ok {
		return p
	}
	return systemPrompts[DefaultPromptRole]
}

// GroundedPrompt appends retrieved context and the citation rules to the role prompt.
func GroundedPrompt(r PromptRole, context string) string {
	var sb strings.Builder
	sb.WriteString(SystemPrompt(r))
	sb.WriteString("\n\nCONTEXT FROM KNOWLEDGE BASE:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nBased on the above context, answer the following question.\n")
	sb.WriteString("If the context doesn't contain relevant information, say so.\n")
	sb.WriteString("Always cite your sources using [Source N] notation.")
	return sb.String()
}
