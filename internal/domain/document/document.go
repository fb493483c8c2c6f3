package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/kailas-cloud/aegis/internal/domain"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// MaxContentSize is the maximum document content size in bytes.
const MaxContentSize = 2 << 20 // 2MB

// Type is the knowledge-base document kind.
type Type string

// Document types.
const (
	TypePolicy       Type = "policy"
	TypeFramework    Type = "framework"
	TypeControl      Type = "control"
	TypeRisk         Type = "risk"
	TypeEvidence     Type = "evidence"
	TypeThreatIntel  Type = "threat_intel"
	TypeIncident     Type = "incident"
	TypeAuditFinding Type = "audit_finding"
)

// Types lists every document type in declaration order.
func Types() []Type {
	return []Type{
		TypePolicy, TypeFramework, TypeControl, TypeRisk,
		TypeEvidence, TypeThreatIntel, TypeIncident, TypeAuditFinding,
	}
}

// ParseType validates a document type string.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

// Partition is a logical collection in the vector index.
type Partition string

// Partitions. Iteration order is fixed: see Partitions.
const (
	PartitionPolicies Partition = "policies"
	PartitionEvidence Partition = "evidence"
	PartitionThreats  Partition = "threats"
)

// Partitions returns every partition in stable search order.
func Partitions() []Partition {
	return []Partition{PartitionPolicies, PartitionEvidence, PartitionThreats}
}

// Partition routes a document type to its partition (many-to-one).
func (t Type) Partition() Partition {
	switch t {
	case TypePolicy, TypeControl, TypeFramework:
		return PartitionPolicies
	case TypeThreatIntel, TypeIncident:
		return PartitionThreats
	default:
		return PartitionEvidence
	}
}

// PartitionsFor returns the partitions covering types, in stable search order.
// No types means every partition.
func PartitionsFor(types []Type) []Partition {
	if len(types) == 0 {
		return Partitions()
	}
	want := make(map[Partition]bool, len(types))
	for _, t := range types {
		want[t.Partition()] = true
	}
	out := make([]Partition, 0, len(want))
	for _, p := range Partitions() {
		if want[p] {
			out = append(out, p)
		}
	}
	return out
}

// Document is a knowledge-base entry before chunking (immutable value object).
type Document struct {
	id       string
	content  string
	docType  Type
	metadata map[string]any
}

// New validates and creates a Document. An empty id is derived from content.
// Failures are *domain.ValidationError naming the rejected field.
func New(id, content string, docType Type, metadata map[string]any) (Document, error) {
	if strings.TrimSpace(content) == "" {
		return Document{}, domain.NewValidationError("content", nil, "is required")
	}
	if len(content) > MaxContentSize {
		return Document{}, domain.NewValidationError("content", len(content),
			fmt.Sprintf("exceeds maximum size of %d bytes", MaxContentSize))
	}
	if _, err := ParseType(string(docType)); err != nil {
		return Document{}, domain.NewValidationError("doc_type", string(docType), "unknown document type")
	}
	if id == "" {
		id = ContentID(content)
	}
	if len(id) > 256 {
		return Document{}, domain.NewValidationError("id", len(id), "too long (max 256)")
	}
	if !idRegex.MatchString(id) {
		return Document{}, domain.NewValidationError("id", id, "must be alphanumeric with . _ : -")
	}

	return Document{
		id:       id,
		content:  content,
		docType:  docType,
		metadata: maps.Clone(metadata),
	}, nil
}

// ContentID is the first 16 hex chars of the content's SHA-256.
func ContentID(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Content returns the document text.
func (d *Document) Content() string { return d.content }

// Type returns the document type.
func (d *Document) Type() Type { return d.docType }

// Metadata returns caller-supplied metadata.
func (d *Document) Metadata() map[string]any { return d.metadata }
