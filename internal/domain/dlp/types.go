// Package dlp holds the sensitive-data taxonomy, the action policy and
// offset-safe redaction. Everything here is pure and safe for concurrent use.
package dlp

import (
	"strings"
	"time"
)

// DataType classifies a detected sensitive span.
type DataType string

// Sensitive data types.
const (
	PIIName       DataType = "PII_NAME"
	PIIEmail      DataType = "PII_EMAIL"
	PIIPhone      DataType = "PII_PHONE"
	PIISSN        DataType = "PII_SSN"
	PIIPassport   DataType = "PII_PASSPORT"
	PIINationalID DataType = "PII_NATIONAL_ID"

	CredentialPassword DataType = "CREDENTIAL_PASSWORD"
	CredentialAPIKey   DataType = "CREDENTIAL_API_KEY"
	CredentialSecret   DataType = "CREDENTIAL_SECRET"
	CredentialToken    DataType = "CREDENTIAL_TOKEN"

	FinancialCard    DataType = "FINANCIAL_CARD"
	FinancialIBAN    DataType = "FINANCIAL_IBAN"
	FinancialAccount DataType = "FINANCIAL_ACCOUNT"

	NetworkIPAddress  DataType = "NETWORK_IP_ADDRESS"
	NetworkMACAddress DataType = "NETWORK_MAC_ADDRESS"
	NetworkURL        DataType = "NETWORK_URL"

	ClassifiedSecret       DataType = "CLASSIFIED_SECRET"
	ClassifiedConfidential DataType = "CLASSIFIED_CONFIDENTIAL"
)

// IsPII reports whether t belongs to the PII_* family.
func (t DataType) IsPII() bool { return strings.HasPrefix(string(t), "PII_") }

// IsCredential reports whether t is a password, API key, secret or token.
func (t DataType) IsCredential() bool {
	switch t {
	case CredentialPassword, CredentialAPIKey, CredentialSecret, CredentialToken:
		return true
	}
	return false
}

// Label is the replacement text written over a redacted span.
func (t DataType) Label() string {
	switch t {
	case PIIName:
		return "[NAME]"
	case PIIEmail:
		return "[EMAIL]"
	case PIIPhone:
		return "[PHONE]"
	case PIINationalID:
		return "[ID]"
	case CredentialAPIKey:
		return "[API_KEY]"
	case CredentialSecret:
		return "[SECRET]"
	case CredentialToken:
		return "[TOKEN]"
	case FinancialCard:
		return "[CARD]"
	case NetworkIPAddress:
		return "[IP]"
	default:
		return "[REDACTED]"
	}
}

// Action is what the engine does with a finding.
type Action string

// Actions, ordered by severity.
const (
	ActionAllow  Action = "allow"
	ActionLog    Action = "log"
	ActionRedact Action = "redact"
	ActionBlock  Action = "block"
)

// Rewrites reports whether the action replaces the span in sanitized text.
func (a Action) Rewrites() bool { return a == ActionRedact || a == ActionBlock }

// Span is a half-open byte range [Start, End) into the scanned text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the span width in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans share at least one byte. Touching spans do not overlap.
func (s Span) Overlaps(o Span) bool { return s.Start < o.End && o.Start < s.End }

// Source records which detector produced a finding.
type Source string

// Detection sources.
const (
	SourceEntity     Source = "entity"
	SourceStructural Source = "structural"
)

// Finding is one detected sensitive span. Immutable once produced.
type Finding struct {
	DataType     DataType
	Confidence   float64
	Span         Span
	MatchedText  string
	RedactedText string
	Action       Action
	Source       Source
	Pattern      string
}

// ScanResult is the outcome of a single scan.
type ScanResult struct {
	ScanID        string
	Context       string
	Actor         string
	OriginalText  string
	SanitizedText string
	Findings      []Finding
	Blocked       bool
	// Degraded is set when entity recognition failed and only structural
	// patterns ran.
	Degraded  bool
	Timestamp time.Time
	Duration  time.Duration
}

// DataTypes returns the distinct data types of findings with the given action,
// in first-seen order. An empty action selects every finding.
func (r *ScanResult) DataTypes(action Action) []string {
	seen := make(map[DataType]bool)
	var out []string
	for _, f := range r.Findings {
		if action != "" && f.Action != action {
			continue
		}
		if seen[f.DataType] {
			continue
		}
		seen[f.DataType] = true
		out = append(out, string(f.DataType))
	}
	return out
}

// Entity is a span reported by an entity recognizer, in the recognizer's own
// taxonomy (PERSON, EMAIL_ADDRESS, ...).
type Entity struct {
	Type  string
	Start int
	End   int
	Score float64
}

var entityTypes = map[string]DataType{
	"PERSON":        PIIName,
	"EMAIL_ADDRESS": PIIEmail,
	"PHONE_NUMBER":  PIIPhone,
	"CREDIT_CARD":   FinancialCard,
	"IBAN_CODE":     FinancialIBAN,
	"IP_ADDRESS":    NetworkIPAddress,
	"API_KEY":       CredentialAPIKey,
	"PASSWORD":      CredentialPassword,
	"NATIONAL_ID":   PIINationalID,
}

// RecognizedEntities is the taxonomy requested from entity recognizers.
func RecognizedEntities() []string {
	return []string{
		"PERSON", "EMAIL_ADDRESS", "PHONE_NUMBER", "CREDIT_CARD", "IBAN_CODE",
		"IP_ADDRESS", "API_KEY", "PASSWORD", "NATIONAL_ID",
	}
}

// MapEntityType translates a recognizer entity type. Unknown types are
// treated as confidential.
func MapEntityType(entity string) DataType {
	if t, ok := entityTypes[entity]; ok {
		return t
	}
	return ClassifiedConfidential
}
