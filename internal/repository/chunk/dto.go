package chunk

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/aegis/internal/db/valkey"
	"github.com/kailas-cloud/aegis/internal/domain/document"
)

// Hash field names. Fields prefixed with "__" are not part of the FT schema.
const (
	fieldContent    = "__content"
	fieldVector     = "__vector"
	fieldMeta       = "__meta"
	fieldParentID   = "parent_id"
	fieldDocType    = "doc_type"
	fieldChunkIndex = "chunk_index"
)

// returnFields are fetched on KNN queries. The vector itself is never read back.
var returnFields = []string{fieldContent, fieldMeta, fieldParentID, fieldDocType, fieldChunkIndex}

// buildHashFields flattens a chunk for HSET.
func buildHashFields(c *document.Chunk) (map[string]string, error) {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata of %s: %w", c.ID, err)
	}
	return map[string]string{
		fieldContent:    c.Text,
		fieldVector:     valkey.VectorToBytes(c.Embedding),
		fieldMeta:       string(meta),
		fieldParentID:   c.ParentID,
		fieldDocType:    string(c.Type),
		fieldChunkIndex: strconv.Itoa(c.Index),
	}, nil
}

// parseHashFields rebuilds a chunk from search fields. Bad metadata is dropped
// rather than failing the whole query.
func parseHashFields(id string, m map[string]string) document.Chunk {
	c := document.Chunk{
		ID:       id,
		ParentID: m[fieldParentID],
		Text:     m[fieldContent],
		Type:     document.Type(m[fieldDocType]),
	}
	if idx, err := strconv.Atoi(m[fieldChunkIndex]); err == nil {
		c.Index = idx
	}
	if raw := m[fieldMeta]; raw != "" {
		var meta map[string]any
		if json.Unmarshal([]byte(raw), &meta) == nil {
			c.Metadata = meta
		}
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return c
}
