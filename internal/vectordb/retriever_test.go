package vectordb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plumeline/plumeline/models"
)

type fakeStore struct {
	searchFunc func(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error)
}

func (f *fakeStore) Insert(ctx context.Context, chunk *models.VectorChunk) error { return nil }

func (f *fakeStore) Search(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error) {
	return f.searchFunc(ctx, embedding, filters, limit)
}

func (f *fakeStore) ExistsByField(ctx context.Context, field, value string) (bool, error) {
	return false, nil
}

func (f *fakeStore) Health(ctx context.Context) error { return nil }

type fakeEmbedder struct {
	embedFunc func(ctx context.Context, inputs []string) ([][]float32, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return f.embedFunc(ctx, inputs)
}

func unitEmbedder() *fakeEmbedder {
	return &fakeEmbedder{embedFunc: func(ctx context.Context, inputs []string) ([][]float32, error) {
		out := make([][]float32, len(inputs))
		for i := range out {
			out[i] = []float32{1, 0, 0}
		}
		return out, nil
	}}
}

func TestRetrieveUsesDefaultTopK(t *testing.T) {
	var gotLimit int
	store := &fakeStore{searchFunc: func(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error) {
		gotLimit = limit
		return nil, nil
	}}
	r := NewRetriever(store, unitEmbedder(), 10, 50, zap.NewNop())

	_, err := r.Retrieve(context.Background(), "broiler lighting", models.SearchFilters{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, gotLimit)
}

func TestRetrieveClampsToMax(t *testing.T) {
	var gotLimit int
	store := &fakeStore{searchFunc: func(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error) {
		gotLimit = limit
		return nil, nil
	}}
	r := NewRetriever(store, unitEmbedder(), 10, 50, zap.NewNop())

	_, err := r.Retrieve(context.Background(), "q", models.SearchFilters{}, 500)
	require.NoError(t, err)
	assert.Equal(t, 50, gotLimit)
}

func TestRetrievePropagatesEmbedderFailure(t *testing.T) {
	store := &fakeStore{searchFunc: func(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error) {
		t.Fatal("store must not be called when embedding fails")
		return nil, nil
	}}
	embedder := &fakeEmbedder{embedFunc: func(ctx context.Context, inputs []string) ([][]float32, error) {
		return nil, errors.New("embedding down")
	}}
	r := NewRetriever(store, embedder, 10, 50, zap.NewNop())

	_, err := r.Retrieve(context.Background(), "q", models.SearchFilters{}, 5)
	assert.Error(t, err)
}

func TestRetrieveEmptyEmbeddingBatchIsError(t *testing.T) {
	store := &fakeStore{searchFunc: func(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error) {
		t.Fatal("store must not be called without an embedding")
		return nil, nil
	}}
	embedder := &fakeEmbedder{embedFunc: func(ctx context.Context, inputs []string) ([][]float32, error) {
		return nil, nil
	}}
	r := NewRetriever(store, embedder, 10, 50, zap.NewNop())

	_, err := r.Retrieve(context.Background(), "q", models.SearchFilters{}, 5)
	assert.ErrorIs(t, err, models.ErrEmbedding)
}

func TestRetrievePassesFilters(t *testing.T) {
	var gotFilters models.SearchFilters
	store := &fakeStore{searchFunc: func(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error) {
		gotFilters = filters
		return []*models.VectorChunk{{ID: "c1", Score: 0.9}}, nil
	}}
	r := NewRetriever(store, unitEmbedder(), 10, 50, zap.NewNop())

	age := 35
	chunks, err := r.Retrieve(context.Background(), "q",
		models.SearchFilters{Species: "broiler", Line: "ross_308", AgeDays: &age}, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "ross_308", gotFilters.Line)
	assert.Equal(t, "broiler", gotFilters.Species)
}

func TestAgeBandBuckets(t *testing.T) {
	assert.Equal(t, "0-7", AgeBand(0))
	assert.Equal(t, "0-7", AgeBand(7))
	assert.Equal(t, "8-14", AgeBand(8))
	assert.Equal(t, "29-35", AgeBand(35))
	assert.Equal(t, "36-42", AgeBand(42))
	assert.Equal(t, "43+", AgeBand(60))
}
