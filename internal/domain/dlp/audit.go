package dlp

import "time"

// AuditFinding is the audit view of a finding. It never carries matched text.
type AuditFinding struct {
	DataType   DataType `json:"data_type"`
	Action     Action   `json:"action"`
	Source     Source   `json:"source"`
	Span       Span     `json:"span"`
	Confidence float64  `json:"confidence"`
}

// AuditRecord summarizes one scan for the audit trail.
type AuditRecord struct {
	ScanID     string         `json:"scan_id"`
	Actor      string         `json:"actor"`
	Context    string         `json:"context"`
	Blocked    bool           `json:"blocked"`
	Degraded   bool           `json:"degraded"`
	Findings   []AuditFinding `json:"findings"`
	DurationMS float64        `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewAuditRecord builds the audit record for a scan result.
func NewAuditRecord(r *ScanResult) AuditRecord {
	findings := make([]AuditFinding, 0, len(r.Findings))
	for _, f := range r.Findings {
		findings = append(findings, AuditFinding{
			DataType:   f.DataType,
			Action:     f.Action,
			Source:     f.Source,
			Span:       f.Span,
			Confidence: f.Confidence,
		})
	}
	return AuditRecord{
		ScanID:     r.ScanID,
		Actor:      r.Actor,
		Context:    r.Context,
		Blocked:    r.Blocked,
		Degraded:   r.Degraded,
		Findings:   findings,
		DurationMS: float64(r.Duration.Microseconds()) / 1000,
		Timestamp:  r.Timestamp,
	}
}
