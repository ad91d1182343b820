package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plumeline/plumeline/config"
	"github.com/plumeline/plumeline/models"
)

type fakeStore struct {
	inserted   []*models.VectorChunk
	insertFunc func(ctx context.Context, chunk *models.VectorChunk) error
	existing   map[string]map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: make(map[string]map[string]bool)}
}

func (f *fakeStore) Insert(ctx context.Context, chunk *models.VectorChunk) error {
	if f.insertFunc != nil {
		if err := f.insertFunc(ctx, chunk); err != nil {
			return err
		}
	}
	f.inserted = append(f.inserted, chunk)
	f.markExisting("doi", chunk.Metadata.DOI)
	f.markExisting("pmid", chunk.Metadata.PMID)
	f.markExisting("title", chunk.Metadata.Title)
	return nil
}

func (f *fakeStore) markExisting(field, value string) {
	if value == "" {
		return
	}
	if f.existing[field] == nil {
		f.existing[field] = make(map[string]bool)
	}
	f.existing[field][value] = true
}

func (f *fakeStore) Search(ctx context.Context, embedding []float32, filters models.SearchFilters, limit int) ([]*models.VectorChunk, error) {
	return nil, nil
}

func (f *fakeStore) ExistsByField(ctx context.Context, field, value string) (bool, error) {
	return f.existing[field][value], nil
}

func (f *fakeStore) Health(ctx context.Context) error { return nil }

func testDocument() *models.ExternalDocument {
	return &models.ExternalDocument{
		Title:    "Heat stress mitigation in broilers",
		Abstract: strings.Repeat("Chronic heat stress reduces feed intake and growth. ", 20),
		Year:     2021,
		Source:   "pubmed",
		DOI:      "10.1000/hs",
		PMID:     "99887",
		URL:      "https://example.org/hs",
	}
}

func newTestService(store *fakeStore) *Service {
	return NewService(store, config.IngestConfig{MinWords: 50, MaxWords: 1200, OverlapWords: 240}, zap.NewNop())
}

func TestIngestDocumentWritesChunksWithMetadata(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	out, err := svc.IngestDocument(context.Background(), testDocument(), "heat stress")
	require.NoError(t, err)
	assert.True(t, out.Ingested)
	require.NotEmpty(t, store.inserted)
	assert.Equal(t, out.ChunksWritten, len(store.inserted))

	first := store.inserted[0]
	assert.Equal(t, models.SourceTypeExternal, first.Metadata.SourceType)
	assert.Equal(t, "10.1000/hs", first.Metadata.DOI)
	assert.Equal(t, "heat stress", first.Metadata.QueryContext)
	assert.True(t, first.Metadata.IsFirstChunk)
	assert.Equal(t, len(store.inserted), first.Metadata.TotalChunks)
	assert.True(t, store.inserted[len(store.inserted)-1].Metadata.IsLastChunk)
	assert.False(t, first.Metadata.IngestedAt.IsZero())
}

func TestIngestDocumentSecondRunIsNoOp(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	doc := testDocument()

	first, err := svc.IngestDocument(context.Background(), doc, "q")
	require.NoError(t, err)
	require.True(t, first.Ingested)
	written := len(store.inserted)

	second, err := svc.IngestDocument(context.Background(), doc, "q")
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.False(t, second.Ingested)
	assert.Equal(t, written, len(store.inserted))
}

func TestIngestDocumentDuplicateByPMIDWithoutDOI(t *testing.T) {
	store := newFakeStore()
	store.markExisting("pmid", "99887")
	svc := newTestService(store)

	doc := testDocument()
	doc.DOI = ""

	out, err := svc.IngestDocument(context.Background(), doc, "q")
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Empty(t, store.inserted)
}

func TestIngestDocumentNoText(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	_, err := svc.IngestDocument(context.Background(), &models.ExternalDocument{}, "q")
	require.Error(t, err)
}

func TestIngestDocumentAllInsertsFail(t *testing.T) {
	store := newFakeStore()
	store.insertFunc = func(ctx context.Context, chunk *models.VectorChunk) error {
		return errors.New("store down")
	}
	svc := newTestService(store)

	_, err := svc.IngestDocument(context.Background(), testDocument(), "q")
	require.Error(t, err)
}

func TestIngestBatchContinuesPastFailures(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	good := testDocument()
	bad := &models.ExternalDocument{}

	count, err := svc.IngestBatch(context.Background(), []*models.ExternalDocument{bad, good}, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
