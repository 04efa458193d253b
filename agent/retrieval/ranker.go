package retrieval

import (
	"math"
	"sort"

	"github.com/barefootzenith/refund-agent/agent/datastore"
)

// CosineSimilarity returns the cosine of the angle between a and b. Vectors
// of mismatched length or zero norm score zero instead of erroring, so one
// bad chunk never poisons a whole search.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RankedChunk pairs a policy chunk with its similarity to the query.
type RankedChunk struct {
	Chunk datastore.PolicyChunk
	Score float64
}

// RankChunks scores every chunk against the query vector and returns the top
// k by descending similarity. The sort is stable so equal scores keep corpus
// order.
func RankChunks(query []float64, chunks []datastore.PolicyChunk, k int) []RankedChunk {
	ranked := make([]RankedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		ranked = append(ranked, RankedChunk{
			Chunk: chunk,
			Score: CosineSimilarity(query, chunk.Embedding),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
