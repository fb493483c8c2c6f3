package dlp

import (
	"context"

	domdlp "github.com/kailas-cloud/aegis/internal/domain/dlp"
)

// Recognizer finds entity spans in text. Offsets are byte offsets into text.
type Recognizer interface {
	Detect(ctx context.Context, text string) ([]domdlp.Entity, error)
}

// Auditor receives a record for every scan.
type Auditor interface {
	Record(ctx context.Context, rec domdlp.AuditRecord) error
}
