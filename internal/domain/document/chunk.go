package document

import (
	"maps"
	"strconv"
	"time"
)

// Reserved chunk metadata keys.
const (
	MetaDocType    = "doc_type"
	MetaAddedAt    = "added_at"
	MetaChunkCount = "chunk_count"
	MetaChunkIndex = "chunk_index"
	MetaParentID   = "parent_id"
)

// Chunk is the persisted unit of embedding and retrieval.
type Chunk struct {
	ID        string
	ParentID  string
	Text      string
	Index     int
	Type      Type
	Embedding []float32
	Metadata  map[string]any
}

// ChunkID formats the id of the i-th chunk of a document.
func ChunkID(docID string, i int) string {
	return docID + "_" + strconv.Itoa(i)
}

// Chunks splits the document and stamps per-chunk metadata. Embeddings are
// left empty for the caller to fill.
func (d *Document) Chunks(c Chunker, addedAt time.Time) []Chunk {
	texts := c.Split(d.content)
	stamp := addedAt.UTC().Format(time.RFC3339)

	out := make([]Chunk, len(texts))
	for i, text := range texts {
		meta := maps.Clone(d.metadata)
		if meta == nil {
			meta = make(map[string]any, 5)
		}
		meta[MetaDocType] = string(d.docType)
		meta[MetaAddedAt] = stamp
		meta[MetaChunkCount] = len(texts)
		meta[MetaChunkIndex] = i
		meta[MetaParentID] = d.id

		out[i] = Chunk{
			ID:       ChunkID(d.id, i),
			ParentID: d.id,
			Text:     text,
			Index:    i,
			Type:     d.docType,
			Metadata: meta,
		}
	}
	return out
}

// Hit is a nearest-neighbor match as reported by a vector index.
// Distance follows the cosine-distance convention: 0 is identical.
type Hit struct {
	Chunk    Chunk
	Distance float64
}
