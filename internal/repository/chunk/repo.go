package chunk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aegis/internal/db"
	"github.com/kailas-cloud/aegis/internal/domain/document"
)

// store is the consumer interface for chunk storage (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) (int, error)
	SAddMulti(ctx context.Context, items []db.SetMember) error
	SMembers(ctx context.Context, key string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config sets the vector schema and maps partitions to collection names.
type Config struct {
	Collections map[document.Partition]string
	Dimensions  int
	HNSWM       int
	EFConstruct int
}

// Repo implements rag.VectorIndex on Valkey/Redis FT indexes.
//
// Layout per partition collection C:
//
//	C:idx                FT index over HASH keys with prefix C:chunk:
//	C:chunk:<chunk id>   one hash per chunk
//	C:parent:<doc id>    set of chunk keys belonging to one document
type Repo struct {
	store  store
	cfg    Config
	logger *zap.Logger
}

// New creates a chunk repository.
func New(s store, cfg Config, logger *zap.Logger) (*Repo, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}
	for _, p := range document.Partitions() {
		name := cfg.Collections[p]
		if !db.IsValidIdentifier(name) {
			return nil, fmt.Errorf("invalid collection name %q for partition %s", name, p)
		}
	}
	return &Repo{store: s, cfg: cfg, logger: logger}, nil
}

// EnsurePartitions creates the FT index of every partition that lacks one.
func (r *Repo) EnsurePartitions(ctx context.Context) error {
	for _, p := range document.Partitions() {
		name := r.indexName(p)
		exists, err := r.store.IndexExists(ctx, name)
		if err != nil {
			return fmt.Errorf("check index %s: %w", name, err)
		}
		if exists {
			continue
		}

		def, err := db.NewIndex(name).
			Prefix(r.chunkPrefix(p)).
			Tag(fieldParentID).
			Tag(fieldDocType).
			Numeric(fieldChunkIndex).
			VectorHNSW(fieldVector, r.cfg.Dimensions, db.DistanceCosine, r.cfg.HNSWM, r.cfg.EFConstruct).
			Build()
		if err != nil {
			return fmt.Errorf("build index %s: %w", name, err)
		}
		if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		r.logger.Info("Created partition index",
			zap.String("partition", string(p)),
			zap.String("index", name),
			zap.Int("dimensions", r.cfg.Dimensions),
		)
	}
	return nil
}

// Upsert writes chunks and records them under their parent document.
func (r *Repo) Upsert(ctx context.Context, p document.Partition, chunks []document.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(chunks))
	members := make([]db.SetMember, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if len(c.Embedding) != r.cfg.Dimensions {
			return fmt.Errorf("chunk %s has %d dimensions, index expects %d",
				c.ID, len(c.Embedding), r.cfg.Dimensions)
		}
		fields, err := buildHashFields(c)
		if err != nil {
			return err
		}
		key := r.chunkKey(p, c.ID)
		items[i] = db.HashSetItem{Key: key, Fields: fields}
		members[i] = db.SetMember{Key: r.parentKey(p, c.ParentID), Member: key}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("write chunks to %s: %w", p, err)
	}
	if err := r.store.SAddMulti(ctx, members); err != nil {
		return fmt.Errorf("track parents in %s: %w", p, err)
	}
	return nil
}

// Query returns the k nearest chunks in the partition, nearest first.
func (r *Repo) Query(ctx context.Context, p document.Partition, vector []float32, k int) ([]document.Hit, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(p),
		VectorField:  fieldVector,
		Vector:       vector,
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", p, err)
	}

	prefix := r.chunkPrefix(p)
	hits := make([]document.Hit, 0, len(res.Entries))
	for _, e := range res.Entries {
		id := strings.TrimPrefix(e.Key, prefix)
		hits = append(hits, document.Hit{
			Chunk:    parseHashFields(id, e.Fields),
			Distance: e.Score,
		})
	}
	return hits, nil
}

// DeleteByParent removes every chunk of a document and returns how many existed.
func (r *Repo) DeleteByParent(ctx context.Context, p document.Partition, parentID string) (int, error) {
	setKey := r.parentKey(p, parentID)
	keys, err := r.store.SMembers(ctx, setKey)
	if err != nil {
		return 0, fmt.Errorf("list chunks of %s: %w", parentID, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := r.store.Del(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("delete chunks of %s: %w", parentID, err)
	}
	if _, err := r.store.Del(ctx, setKey); err != nil {
		r.logger.Warn("Failed to drop parent set", zap.String("key", setKey), zap.Error(err))
	}
	return removed, nil
}

func (r *Repo) indexName(p document.Partition) string {
	return r.cfg.Collections[p] + ":idx"
}

func (r *Repo) chunkPrefix(p document.Partition) string {
	return r.cfg.Collections[p] + ":chunk:"
}

func (r *Repo) chunkKey(p document.Partition, chunkID string) string {
	return r.chunkPrefix(p) + chunkID
}

func (r *Repo) parentKey(p document.Partition, parentID string) string {
	return r.cfg.Collections[p] + ":parent:" + parentID
}
