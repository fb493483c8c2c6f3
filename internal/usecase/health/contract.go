package health

import "context"

// StorePinger checks vector store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// Checker checks an external provider (embedding, LLM, entity recognizer).
type Checker interface {
	HealthCheck(ctx context.Context) error
}
