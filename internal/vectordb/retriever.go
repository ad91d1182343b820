package vectordb

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/plumeline/plumeline/models"
)

// Retriever is the embedding-based top-k retrieval front of the vector store
type Retriever struct {
	store       Store
	embedder    Embedder
	topKDefault int
	topKMax     int
	log         *zap.Logger
}

// NewRetriever creates a retriever with top-k bounds
func NewRetriever(store Store, embedder Embedder, topKDefault, topKMax int, log *zap.Logger) *Retriever {
	if topKDefault <= 0 {
		topKDefault = 10
	}
	if topKMax <= 0 {
		topKMax = 50
	}
	return &Retriever{
		store:       store,
		embedder:    embedder,
		topKDefault: topKDefault,
		topKMax:     topKMax,
		log:         log,
	}
}

// Retrieve embeds the query text and returns the top-k matching chunks.
// topK <= 0 uses the default; anything above the max is clamped.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
	if topK <= 0 {
		topK = r.topKDefault
	}
	if topK > r.topKMax {
		topK = r.topKMax
	}

	vecs, err := r.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: empty embedding for query", models.ErrEmbedding)
	}

	chunks, err := r.store.Search(ctx, vecs[0], filters, topK)
	if err != nil {
		return nil, err
	}

	if r.log != nil {
		r.log.Debug("vector retrieval",
			zap.String("query", queryText),
			zap.Int("top_k", topK),
			zap.Int("hits", len(chunks)))
	}
	return chunks, nil
}
