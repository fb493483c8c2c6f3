package retrieval

import (
	"fmt"
	"strings"
)

// ContextSeparator sits between labeled source blocks.
const ContextSeparator = "\n\n---\n\n"

// BuildContext renders results as numbered source blocks for the model:
//
//	[Source 1] (Type: policy, Match: STRONG, Score: 0.91)
//	chunk text
//
// Source numbers are 1-based and follow result order.
func BuildContext(results []Result) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Source %d] (Type: %s, Match: %s, Score: %.2f)\n%s",
			i+1, r.Chunk.Type, r.MatchStrength, r.Similarity, r.Chunk.Text)
	}
	return strings.Join(blocks, ContextSeparator)
}
