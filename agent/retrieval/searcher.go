package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	"github.com/barefootzenith/refund-agent/agent/datastore"
	"github.com/barefootzenith/refund-agent/pkg/resilience"
)

// DefaultTopK is the number of policy chunks returned per search.
const DefaultTopK = 3

const (
	noCorpusMessage  = "No policy information available in the database."
	noResultsMessage = "No relevant information found in the refund policy."
	chunkSeparator   = "\n---\n"
)

// Searcher answers free-text queries from the policy corpus: embed the query
// (cached), rank chunks by cosine similarity, concatenate the top k.
type Searcher struct {
	cache    *Cache
	embedder contractx.Embedder
	store    datastore.Store
	caller   *resilience.Caller
	topK     int
}

func NewSearcher(cache *Cache, embedder contractx.Embedder, store datastore.Store, caller *resilience.Caller, topK int) *Searcher {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Searcher{
		cache:    cache,
		embedder: embedder,
		store:    store,
		caller:   caller,
		topK:     topK,
	}
}

// Search returns the concatenated top-k policy text for query. Empty corpus
// and no-match outcomes are fixed sentences rather than errors, so callers
// always have usable text to hand the response assembler.
func (s *Searcher) Search(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: search query is empty", contractx.ErrValidation)
	}

	queryVector, err := s.cache.GetOrCompute(ctx, query, func(ctx context.Context) ([]float64, error) {
		vectors, err := s.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, err
		}
		return vectors[0], nil
	})
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	chunks, err := resilience.Do(ctx, s.caller, resilience.ClassDatastore, "list_policy_chunks", func(ctx context.Context) ([]datastore.PolicyChunk, error) {
		return s.store.ListPolicyChunks(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("load policy chunks: %w", err)
	}
	if len(chunks) == 0 {
		log.Warn().Str("query", query).Msg("policy corpus is empty")
		return noCorpusMessage, nil
	}

	if err := s.fillMissingEmbeddings(ctx, chunks); err != nil {
		return "", fmt.Errorf("embed policy chunks: %w", err)
	}

	ranked := RankChunks(queryVector, chunks, s.topK)
	if len(ranked) == 0 {
		log.Warn().Str("query", query).Msg("policy search produced no results")
		return noResultsMessage, nil
	}

	log.Info().
		Str("query", query).
		Int("num_results", len(ranked)).
		Float64("top_score", ranked[0].Score).
		Interface("cache_metrics", s.cache.Metrics()).
		Msg("policy search completed")

	pieces := make([]string, len(ranked))
	for i, r := range ranked {
		pieces[i] = r.Chunk.Text
	}
	return strings.Join(pieces, chunkSeparator), nil
}

// fillMissingEmbeddings computes vectors for chunks seeded without them. The
// per-chunk cache keeps this a one-time cost per process.
func (s *Searcher) fillMissingEmbeddings(ctx context.Context, chunks []datastore.PolicyChunk) error {
	for i := range chunks {
		if len(chunks[i].Embedding) > 0 {
			continue
		}
		text := chunks[i].Text
		vector, err := s.cache.GetOrCompute(ctx, text, func(ctx context.Context) ([]float64, error) {
			vectors, err := s.embedder.Embed(ctx, []string{text})
			if err != nil {
				return nil, err
			}
			return vectors[0], nil
		})
		if err != nil {
			return err
		}
		chunks[i].Embedding = vector
	}
	return nil
}

// CacheMetrics exposes the embedding cache snapshot for logs and stats.
func (s *Searcher) CacheMetrics() Metrics {
	return s.cache.Metrics()
}
