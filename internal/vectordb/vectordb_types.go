package vectordb

import (
	"context"
	"fmt"

	"github.com/plumeline/plumeline/models"
)

// Embedder computes embeddings for texts; the llm manager satisfies it
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Store is the opaque vector store contract the rest of the core sees:
// inserts embed their own content, searches take an embedding plus filters.
type Store interface {
	Insert(ctx context.Context, chunk *models.VectorChunk) error
	Search(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error)
	ExistsByField(ctx context.Context, field, value string) (bool, error)
	Health(ctx context.Context) error
}

// AgeBand buckets an age in days into the band stored on chunk payloads
func AgeBand(ageDays int) string {
	switch {
	case ageDays <= 7:
		return "0-7"
	case ageDays <= 14:
		return "8-14"
	case ageDays <= 21:
		return "15-21"
	case ageDays <= 28:
		return "22-28"
	case ageDays <= 35:
		return "29-35"
	case ageDays <= 42:
		return "36-42"
	}
	return "43+"
}

func wrapStoreErr(err error) error {
	return fmt.Errorf("%w: %v", models.ErrVectorStore, err)
}
