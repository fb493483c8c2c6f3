package dlp

// Policy decides the action for a finding.
type Policy struct {
	// BlockOnDetection escalates credential findings from redact to block.
	BlockOnDetection bool
}

const (
	piiRedactConfidence = 0.8
	logConfidence       = 0.5
)

// Decide applies the action table. Structural findings bypass it and always block.
func (p Policy) Decide(t DataType, confidence float64) Action {
	switch {
	case t.IsCredential():
		if p.BlockOnDetection {
			return ActionBlock
		}
		return ActionRedact
	case t.IsPII() && confidence > piiRedactConfidence:
		return ActionRedact
	case confidence > logConfidence:
		return ActionLog
	default:
		return ActionAllow
	}
}
