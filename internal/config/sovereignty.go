package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/kailas-cloud/aegis/internal/domain"
)

// localHosts are always treated as inside the trust boundary.
var localHosts = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
	"::1",
	"ollama",
	"host.docker.internal",
}

// blockedDomains must never appear in a model endpoint, hybrid or not.
var blockedDomains = []string{
	"api.openai.com",
	"api.anthropic.com",
	"api.cohere.ai",
	"api.ai21.com",
	"generativelanguage.googleapis.com",
	"bedrock-runtime",
}

// ValidateSovereignty checks that model, embedding and entity-recognition
// endpoints stay inside the local boundary. It collects every violation into
// a single *domain.ConfigurationError. Warnings are non-fatal findings to log.
func ValidateSovereignty(cfg *Config) (warnings []string, err error) {
	s := cfg.Sovereignty
	var violations []string

	if s.TelemetryEnabled {
		violations = append(violations, "telemetry_enabled must be false")
	}

	llmHost, parseErr := endpointHost(cfg.LLM.BaseURL)
	if parseErr != nil {
		violations = append(violations, fmt.Sprintf("llm.base_url: %v", parseErr))
	}

	if blocked := blockedDomain(cfg.LLM.BaseURL); blocked != "" {
		violations = append(violations, fmt.Sprintf("llm.base_url targets blocked external provider %s", blocked))
	}

	if s.HybridMode {
		if s.ExternalAPICallsAllowed {
			warnings = append(warnings,
				"external_api_calls_allowed is redundant in hybrid mode; external model calls are already permitted")
		}
	} else {
		if s.ExternalAPICallsAllowed {
			violations = append(violations, "external_api_calls_allowed requires hybrid_mode")
		}
		if cfg.LLM.Provider == "groq" || cfg.LLM.Provider == "deepseek" {
			violations = append(violations, fmt.Sprintf("llm.provider %s requires hybrid_mode", cfg.LLM.Provider))
		}
		if parseErr == nil && !isLocalHost(llmHost, s.LocalHosts) {
			violations = append(violations,
				fmt.Sprintf("llm.base_url host %q is not local; set hybrid_mode to allow external inference", llmHost))
		}
	}

	for name, endpoint := range map[string]string{
		"embedding.base_url": cfg.Embedding.BaseURL,
		"ner.base_url":       nerEndpoint(cfg),
	} {
		if endpoint == "" {
			continue
		}
		host, err := endpointHost(endpoint)
		if err != nil {
			violations = append(violations, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if !isLocalHost(host, s.LocalHosts) {
			violations = append(violations, fmt.Sprintf("%s host %q must be local in every mode", name, host))
		}
	}

	if len(violations) > 0 {
		slices.Sort(violations)
		return warnings, &domain.ConfigurationError{Violations: violations}
	}
	return warnings, nil
}

func nerEndpoint(cfg *Config) string {
	if cfg.NER.Provider != "presidio" {
		return ""
	}
	return cfg.NER.BaseURL
}

func endpointHost(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return strings.ToLower(u.Hostname()), nil
}

func isLocalHost(host string, extra []string) bool {
	if slices.Contains(localHosts, host) {
		return true
	}
	for _, h := range extra {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func blockedDomain(endpoint string) string {
	lower := strings.ToLower(endpoint)
	for _, d := range blockedDomains {
		if strings.Contains(lower, d) {
			return d
		}
	}
	return ""
}
