package sources

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plumeline/plumeline/config"
	"github.com/plumeline/plumeline/models"
)

type fakeAdapter struct {
	name       string
	searchFunc func(ctx context.Context, query string, maxResults, minYear int) ([]*models.ExternalDocument, error)
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Search(ctx context.Context, query string, maxResults, minYear int) ([]*models.ExternalDocument, error) {
	return f.searchFunc(ctx, query, maxResults, minYear)
}

type fakeEmbedder struct {
	embedFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f.embedFunc(ctx, texts)
}

func failingEmbedder() *fakeEmbedder {
	return &fakeEmbedder{embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding down")
	}}
}

func newTestManager(embedder Embedder, adapters ...Adapter) *Manager {
	m := NewManager(config.SourcesConfig{MaxResultsPerSource: 10}, config.RankingConfig{
		Relevance: 0.40, Citation: 0.30, Recency: 0.20, Source: 0.10,
	}, embedder, nil, zap.NewNop())
	for _, adapter := range adapters {
		m.Register(adapter, 1.0, 100, 10)
	}
	return m
}

func docsWithDOIs(source string, count int, sharedDOI string) []*models.ExternalDocument {
	docs := make([]*models.ExternalDocument, 0, count)
	for i := 0; i < count; i++ {
		doi := fmt.Sprintf("10.1000/%s-%d", source, i)
		if i == 0 && sharedDOI != "" {
			doi = sharedDOI
		}
		docs = append(docs, &models.ExternalDocument{
			Title:         fmt.Sprintf("%s paper %d", source, i),
			Abstract:      "broiler growth performance",
			Year:          2020,
			Source:        source,
			DOI:           doi,
			CitationCount: i * 10,
		})
	}
	return docs
}

func TestSearchPartialFailure(t *testing.T) {
	shared := "10.1000/shared"
	slow := &fakeAdapter{name: "slow", searchFunc: func(ctx context.Context, _ string, _, _ int) ([]*models.ExternalDocument, error) {
		return nil, context.DeadlineExceeded
	}}
	first := &fakeAdapter{name: "first", searchFunc: func(ctx context.Context, _ string, _, _ int) ([]*models.ExternalDocument, error) {
		return docsWithDOIs("first", 5, shared), nil
	}}
	second := &fakeAdapter{name: "second", searchFunc: func(ctx context.Context, _ string, _, _ int) ([]*models.ExternalDocument, error) {
		return docsWithDOIs("second", 5, shared), nil
	}}

	m := newTestManager(failingEmbedder(), slow, first, second)

	result, err := m.Search(context.Background(), "broiler heat stress")
	require.NoError(t, err)

	assert.Equal(t, 3, result.SourcesSearched)
	assert.Equal(t, 2, result.SourcesSucceeded)
	assert.Equal(t, 10, result.TotalResults)
	assert.Equal(t, 9, result.UniqueResults)
	assert.True(t, result.Found)
	assert.NotNil(t, result.BestDocument)
	// Nine unique survive the merge but only the top five are carried forward
	assert.Len(t, result.AllDocuments, 5)
	assert.Same(t, result.AllDocuments[0], result.BestDocument)
}

func TestSearchAllSourcesFail(t *testing.T) {
	broken := &fakeAdapter{name: "broken", searchFunc: func(ctx context.Context, _ string, _, _ int) ([]*models.ExternalDocument, error) {
		return nil, errors.New("unreachable")
	}}

	m := newTestManager(failingEmbedder(), broken)

	result, err := m.Search(context.Background(), "broiler lighting")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Equal(t, 0, result.SourcesSucceeded)
	assert.NotEmpty(t, result.Error)
}

func TestSearchNoSourcesRegistered(t *testing.T) {
	m := newTestManager(failingEmbedder())

	result, err := m.Search(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Equal(t, 0, result.SourcesSearched)
}

type staticEnablement map[string]bool

func (s staticEnablement) SourceEnabled(name string) bool { return s[name] }

func TestSearchHonorsEnablement(t *testing.T) {
	calls := 0
	adapter := &fakeAdapter{name: "toggled", searchFunc: func(ctx context.Context, _ string, _, _ int) ([]*models.ExternalDocument, error) {
		calls++
		return nil, nil
	}}

	m := NewManager(config.SourcesConfig{}, config.RankingConfig{}, failingEmbedder(),
		staticEnablement{"toggled": false}, zap.NewNop())
	m.Register(adapter, 1.0, 100, 10)

	result, err := m.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 0, result.SourcesSearched)
	assert.Zero(t, calls)
}

func TestDeduplicateStrongIDReservesTitle(t *testing.T) {
	withDOI := &models.ExternalDocument{Title: "Heat Stress In Broilers", Year: 2021, DOI: "10.1/x"}
	sameDOI := &models.ExternalDocument{Title: "different title", Year: 2019, DOI: "10.1/X"}
	sameTitleNoID := &models.ExternalDocument{Title: "heat stress in broilers ", Year: 2021}
	fresh := &models.ExternalDocument{Title: "ventilation basics", Year: 2020}

	unique := deduplicate([]*models.ExternalDocument{withDOI, sameDOI, sameTitleNoID, fresh})

	require.Len(t, unique, 2)
	assert.Same(t, withDOI, unique[0])
	assert.Same(t, fresh, unique[1])
}

func TestDeduplicateIdempotent(t *testing.T) {
	docs := docsWithDOIs("src", 4, "")
	once := deduplicate(docs)
	twice := deduplicate(once)
	assert.Equal(t, once, twice)
}

func TestCompositeOrdering(t *testing.T) {
	older := &models.ExternalDocument{Title: "old low-cited", Year: 2005, Source: "src", CitationCount: 2, DOI: "a"}
	newer := &models.ExternalDocument{Title: "new well-cited", Year: time.Now().Year() - 1, Source: "src", CitationCount: 300, DOI: "b"}

	adapter := &fakeAdapter{name: "src", searchFunc: func(ctx context.Context, _ string, _, _ int) ([]*models.ExternalDocument, error) {
		return []*models.ExternalDocument{older, newer}, nil
	}}
	m := newTestManager(failingEmbedder(), adapter)

	result, err := m.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, result.AllDocuments, 2)
	assert.Equal(t, "new well-cited", result.AllDocuments[0].Title)
	assert.Greater(t, result.AllDocuments[0].CompositeScore, result.AllDocuments[1].CompositeScore)
}

func TestRelevanceFallbackOnEmbeddingFailure(t *testing.T) {
	adapter := &fakeAdapter{name: "src", searchFunc: func(ctx context.Context, _ string, _, _ int) ([]*models.ExternalDocument, error) {
		return docsWithDOIs("src", 2, ""), nil
	}}
	m := newTestManager(failingEmbedder(), adapter)

	result, err := m.Search(context.Background(), "q")
	require.NoError(t, err)
	for _, doc := range result.AllDocuments {
		assert.InDelta(t, 0.5, doc.RelevanceScore, 1e-9)
	}
}

func TestRecencyScoreBuckets(t *testing.T) {
	year := time.Now().Year()
	assert.InDelta(t, 1.0, recencyScore(year, year), 1e-9)
	assert.InDelta(t, 0.8, recencyScore(year-1, year), 1e-9)
	assert.InDelta(t, 0.8, recencyScore(year-4, year), 1e-9)
	assert.InDelta(t, 0.5, recencyScore(year-5, year), 1e-9)
	assert.InDelta(t, 0.5, recencyScore(year-9, year), 1e-9)
	assert.InDelta(t, 0.2, recencyScore(year-10, year), 1e-9)
	assert.InDelta(t, 0.2, recencyScore(0, year), 1e-9)
}

func TestRelevanceIsRawCosine(t *testing.T) {
	// Query aligned with doc 0, orthogonal to doc 1, opposed to doc 2
	embedder := &fakeEmbedder{embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}, {1, 0}, {0, 1}, {-1, 0}}, nil
	}}
	docs := []*models.ExternalDocument{{Title: "a"}, {Title: "b"}, {Title: "c"}}

	m := newTestManager(embedder)
	m.scoreRelevance(context.Background(), "q", docs)

	assert.InDelta(t, 1.0, docs[0].RelevanceScore, 1e-6)
	assert.InDelta(t, 0.0, docs[1].RelevanceScore, 1e-6)
	assert.InDelta(t, -1.0, docs[2].RelevanceScore, 1e-6)
}

func TestCitationRateClamps(t *testing.T) {
	year := time.Now().Year()
	zeroCited := &models.ExternalDocument{Year: year, CitationCount: 0}
	assert.InDelta(t, 1.0, citationRate(zeroCited, year), 1e-9)

	noYear := &models.ExternalDocument{CitationCount: 10}
	assert.InDelta(t, 10.0, citationRate(noYear, year), 1e-9)
}
