// Package qdrant stores chunk vectors in Qdrant over gRPC, one collection per
// partition, as an alternative to the Valkey FT index.
package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kailas-cloud/aegis/internal/domain/document"
)

// Payload keys.
const (
	payloadChunkID    = "chunk_id"
	payloadParentID   = "parent_id"
	payloadDocType    = "doc_type"
	payloadChunkIndex = "chunk_index"
	payloadContent    = "content"
	payloadMeta       = "meta"
)

// pointNamespace seeds deterministic point ids, so re-indexing a chunk overwrites it.
var pointNamespace = uuid.MustParse("7f3c9b1e-5a0d-4c8e-9b6f-2d4e8a1c3f50")

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

type healthAPI interface {
	HealthCheck(ctx context.Context, in *pb.HealthCheckRequest, opts ...grpc.CallOption) (*pb.HealthCheckReply, error)
}

// Config maps partitions to collection names and fixes the vector size.
type Config struct {
	Addr        string
	Collections map[document.Partition]string
	Dimensions  int
}

// Store implements rag.VectorIndex on Qdrant.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	health      healthAPI
	cfg         Config
}

// New connects to Qdrant at cfg.Addr. The connection is lazy; use Ping to probe it.
func New(cfg Config) (*Store, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", cfg.Addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		health:      pb.NewQdrantClient(conn),
		cfg:         cfg,
	}, nil
}

// newWithClients wires explicit clients (tests).
func newWithClients(p pointsAPI, c collectionsAPI, h healthAPI, cfg Config) *Store {
	return &Store{points: p, collections: c, health: h, cfg: cfg}
}

func validate(cfg Config) error {
	if cfg.Dimensions <= 0 {
		return errors.New("qdrant: dimensions must be positive")
	}
	for _, p := range document.Partitions() {
		if cfg.Collections[p] == "" {
			return fmt.Errorf("qdrant: no collection for partition %s", p)
		}
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Ping checks that Qdrant answers its health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.health.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// EnsurePartitions creates every missing partition collection with cosine distance.
func (s *Store) EnsurePartitions(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	existing := make(map[string]bool, len(list.GetCollections()))
	for _, c := range list.GetCollections() {
		existing[c.GetName()] = true
	}

	for _, p := range document.Partitions() {
		name := s.cfg.Collections[p]
		if existing[name] {
			continue
		}
		_, err := s.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: name,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(s.cfg.Dimensions),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("qdrant: create collection %s: %w", name, err)
		}
	}
	return nil
}

// Upsert stores chunks as points keyed by a UUIDv5 of partition and chunk id.
func (s *Store) Upsert(ctx context.Context, p document.Partition, chunks []document.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if len(c.Embedding) != s.cfg.Dimensions {
			return fmt.Errorf("qdrant: chunk %s has %d dimensions, collection expects %d",
				c.ID, len(c.Embedding), s.cfg.Dimensions)
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("qdrant: marshal metadata of %s: %w", c.ID, err)
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(p, c.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: c.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				payloadChunkID:    stringValue(c.ID),
				payloadParentID:   stringValue(c.ParentID),
				payloadDocType:    stringValue(string(c.Type)),
				payloadContent:    stringValue(c.Text),
				payloadMeta:       stringValue(string(meta)),
				payloadChunkIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Index)}},
			},
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.cfg.Collections[p],
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %d points into %s: %w", len(points), p, err)
	}
	return nil
}

// Query returns the k nearest chunks. Qdrant reports cosine similarity;
// it is converted back to distance.
func (s *Store) Query(ctx context.Context, p document.Partition, vector []float32, k int) ([]document.Hit, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.cfg.Collections[p],
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search %s: %w", p, err)
	}

	hits := make([]document.Hit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		hits = append(hits, document.Hit{
			Chunk:    chunkFromPayload(r.GetPayload()),
			Distance: 1 - float64(r.GetScore()),
		})
	}
	return hits, nil
}

// DeleteByParent counts then removes every point of a document.
func (s *Store) DeleteByParent(ctx context.Context, p document.Partition, parentID string) (int, error) {
	collection := s.cfg.Collections[p]
	filter := &pb.Filter{Must: []*pb.Condition{fieldMatch(payloadParentID, parentID)}}

	exact := true
	count, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count %s in %s: %w", parentID, p, err)
	}
	n := int(count.GetResult().GetCount())
	if n == 0 {
		return 0, nil
	}

	wait := true
	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: delete %s in %s: %w", parentID, p, err)
	}
	return n, nil
}

// PointID derives the stable point id of a chunk.
func PointID(p document.Partition, chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(string(p)+":"+chunkID)).String()
}

func chunkFromPayload(payload map[string]*pb.Value) document.Chunk {
	c := document.Chunk{
		ID:       payload[payloadChunkID].GetStringValue(),
		ParentID: payload[payloadParentID].GetStringValue(),
		Type:     document.Type(payload[payloadDocType].GetStringValue()),
		Text:     payload[payloadContent].GetStringValue(),
		Index:    int(payload[payloadChunkIndex].GetIntegerValue()),
		Metadata: map[string]any{},
	}
	if raw := payload[payloadMeta].GetStringValue(); raw != "" {
		var meta map[string]any
		if json.Unmarshal([]byte(raw), &meta) == nil && meta != nil {
			c.Metadata = meta
		}
	}
	return c
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
