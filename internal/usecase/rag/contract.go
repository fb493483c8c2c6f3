package rag

import (
	"context"

	"github.com/kailas-cloud/aegis/internal/domain/document"
)

// VectorIndex stores embedded chunks per partition and answers nearest-neighbor
// queries. Distances follow the cosine-distance convention.
type VectorIndex interface {
	Upsert(ctx context.Context, partition document.Partition, chunks []document.Chunk) error
	Query(ctx context.Context, partition document.Partition, vector []float32, k int) ([]document.Hit, error)
	DeleteByParent(ctx context.Context, partition document.Partition, parentID string) (int, error)
}
