package hybrid

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plumeline/plumeline/internal/llm"
	"github.com/plumeline/plumeline/internal/router"
	"github.com/plumeline/plumeline/models"
)

type fakePerf struct {
	lookupFunc func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error)
}

func (f *fakePerf) Lookup(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
	return f.lookupFunc(ctx, q)
}

type fakeRetriever struct {
	retrieveFunc func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error)
}

func (f *fakeRetriever) Retrieve(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
	return f.retrieveFunc(ctx, queryText, filters, topK)
}

type fakeGenerator struct {
	generateFunc func(ctx context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error) {
	return f.generateFunc(ctx, req)
}

func echoGenerator(text string) *fakeGenerator {
	return &fakeGenerator{generateFunc: func(ctx context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error) {
		return &llm.GenerationResponse{Text: text}, nil
	}}
}

func brokenGenerator() *fakeGenerator {
	return &fakeGenerator{generateFunc: func(ctx context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error) {
		return nil, errors.New("provider down")
	}}
}

func weightResult(confidence float64) *models.PerfResult {
	return &models.PerfResult{
		Rows: []models.PerfRow{
			{Line: "ross_308", Sex: "male", AgeDays: 35, Metric: "body weight", Value: 2283, Unit: "g"},
		},
		Confidence: confidence,
	}
}

func someChunks(scores ...float32) []*models.VectorChunk {
	chunks := make([]*models.VectorChunk, len(scores))
	for i, score := range scores {
		chunks[i] = &models.VectorChunk{
			ID:      "c",
			Content: "Broiler target weights depend on strain and sex.",
			Score:   score,
			Metadata: models.ChunkMetadata{
				Title: "Broiler management guide",
			},
		}
	}
	return chunks
}

func testQuery() *models.Query {
	return &models.Query{ID: "q1", Text: "Target weight for Ross 308 males at 35 days?", Language: "en"}
}

func TestAnswerPerfStoreUsesLookupConfidence(t *testing.T) {
	perf := &fakePerf{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
		return weightResult(0.9), nil
	}}
	retriever := &fakeRetriever{retrieveFunc: func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
		assert.Equal(t, 3, topK)
		return someChunks(0.8), nil
	}}
	e := NewEngine(perf, retriever, echoGenerator("At 35 days a Ross 308 male weighs 2283 g."), zap.NewNop())

	answer, err := e.Answer(context.Background(), testQuery(), router.Decision{Route: models.RoutePerfStore})
	require.NoError(t, err)
	assert.Equal(t, models.RoutePerfStore, answer.Route)
	assert.InDelta(t, 0.9, answer.Confidence, 1e-9)
	assert.Contains(t, answer.Text, "2283")
	assert.Contains(t, answer.Sources, "Broiler management guide")
}

func TestAnswerPerfStoreEmptyDegradesToVector(t *testing.T) {
	perfCalls := 0
	perf := &fakePerf{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
		perfCalls++
		return nil, models.ErrPerfStoreEmpty
	}}
	retriever := &fakeRetriever{retrieveFunc: func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
		return someChunks(0.8, 0.6), nil
	}}
	e := NewEngine(perf, retriever, echoGenerator("From the guides, around 2280 g."), zap.NewNop())

	answer, err := e.Answer(context.Background(), testQuery(), router.Decision{Route: models.RoutePerfStore})
	require.NoError(t, err)
	assert.Equal(t, models.RouteVector, answer.Route)
	assert.Equal(t, 1, perfCalls)
	assert.InDelta(t, 0.7, answer.Confidence, 1e-6)
}

func TestAnswerPerfStoreBackendErrorPropagates(t *testing.T) {
	perf := &fakePerf{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
		return nil, errors.New("connection refused")
	}}
	e := NewEngine(perf, nil, echoGenerator("x"), zap.NewNop())

	_, err := e.Answer(context.Background(), testQuery(), router.Decision{Route: models.RoutePerfStore})
	assert.Error(t, err)
}

func TestAnswerPerfStoreSynthesisFailureRendersTable(t *testing.T) {
	perf := &fakePerf{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
		return weightResult(0.9), nil
	}}
	retriever := &fakeRetriever{retrieveFunc: func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
		return nil, nil
	}}
	e := NewEngine(perf, retriever, brokenGenerator(), zap.NewNop())

	answer, err := e.Answer(context.Background(), testQuery(), router.Decision{Route: models.RoutePerfStore})
	require.NoError(t, err)
	assert.Contains(t, answer.Text, "body weight = 2283 g")
	assert.Contains(t, answer.Text, "day 35")
}

func TestAnswerVectorEnrichesOnPerformanceConcept(t *testing.T) {
	perfCalls := 0
	perf := &fakePerf{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
		perfCalls++
		assert.Nil(t, q.Metrics)
		return weightResult(0.5), nil
	}}
	retriever := &fakeRetriever{retrieveFunc: func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
		return someChunks(0.9), nil
	}}
	e := NewEngine(perf, retriever, echoGenerator("answer"), zap.NewNop())

	decision := router.Decision{
		Route:    models.RouteVector,
		Concepts: map[string]float64{router.ConceptPerformance: 0.5},
		Filters:  models.SearchFilters{Metrics: []string{"weight"}},
	}
	_, err := e.Answer(context.Background(), testQuery(), decision)
	require.NoError(t, err)
	assert.Equal(t, 1, perfCalls)
}

func TestAnswerVectorSkipsPerfOnTopicalQuestion(t *testing.T) {
	perf := &fakePerf{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
		t.Fatal("perf store must not be queried for a topical question")
		return nil, nil
	}}
	retriever := &fakeRetriever{retrieveFunc: func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
		return someChunks(0.9), nil
	}}
	e := NewEngine(perf, retriever, echoGenerator("answer"), zap.NewNop())

	decision := router.Decision{Route: models.RouteVector, Concepts: map[string]float64{router.ConceptPerformance: 0.1}}
	_, err := e.Answer(context.Background(), testQuery(), decision)
	require.NoError(t, err)
}

func TestAnswerVectorSynthesisFailureFallsBackToChunk(t *testing.T) {
	retriever := &fakeRetriever{retrieveFunc: func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
		return someChunks(0.9), nil
	}}
	e := NewEngine(&fakePerf{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
		return nil, models.ErrPerfStoreEmpty
	}}, retriever, brokenGenerator(), zap.NewNop())

	answer, err := e.Answer(context.Background(), testQuery(), router.Decision{Route: models.RouteVector})
	require.NoError(t, err)
	assert.Equal(t, "Broiler target weights depend on strain and sex.", answer.Text)
}

func TestAnswerVectorNoChunksAndSynthesisFailureErrors(t *testing.T) {
	retriever := &fakeRetriever{retrieveFunc: func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
		return nil, nil
	}}
	e := NewEngine(nil, retriever, brokenGenerator(), zap.NewNop())

	_, err := e.Answer(context.Background(), testQuery(), router.Decision{Route: models.RouteVector})
	assert.Error(t, err)
}

func TestAnswerHybridBlendsConfidence(t *testing.T) {
	perf := &fakePerf{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
		return weightResult(1.0), nil
	}}
	retriever := &fakeRetriever{retrieveFunc: func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
		return someChunks(0.5, 0.5, 0.5), nil
	}}
	e := NewEngine(perf, retriever, echoGenerator("blended answer"), zap.NewNop())

	answer, err := e.Answer(context.Background(), testQuery(), router.Decision{Route: models.RouteHybrid})
	require.NoError(t, err)
	assert.Equal(t, models.RouteHybrid, answer.Route)
	// 0.6*1.0 + 0.4*0.5
	assert.InDelta(t, 0.8, answer.Confidence, 1e-9)
}

func TestAnswerHybridToleratesEmptyPerfStore(t *testing.T) {
	perf := &fakePerf{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
		return nil, models.ErrPerfStoreEmpty
	}}
	retriever := &fakeRetriever{retrieveFunc: func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
		return someChunks(1.0, 1.0, 1.0), nil
	}}
	e := NewEngine(perf, retriever, echoGenerator("documents only"), zap.NewNop())

	answer, err := e.Answer(context.Background(), testQuery(), router.Decision{Route: models.RouteHybrid})
	require.NoError(t, err)
	// 0.6*0 + 0.4*1.0
	assert.InDelta(t, 0.4, answer.Confidence, 1e-9)
}

func TestAnswerHybridPicksComparisonPrompt(t *testing.T) {
	var gotSystem string
	gen := &fakeGenerator{generateFunc: func(ctx context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error) {
		gotSystem = req.SystemPrompt
		return &llm.GenerationResponse{Text: "side by side"}, nil
	}}
	perf := &fakePerf{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
		return weightResult(0.8), nil
	}}
	retriever := &fakeRetriever{retrieveFunc: func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
		return someChunks(0.7), nil
	}}
	e := NewEngine(perf, retriever, gen, zap.NewNop())

	decision := router.Decision{Route: models.RouteHybrid, Concepts: map[string]float64{router.ConceptComparison: 0.75}}
	_, err := e.Answer(context.Background(), testQuery(), decision)
	require.NoError(t, err)
	assert.True(t, strings.Contains(gotSystem, "comparing"))

	decision.Concepts[router.ConceptComparison] = 0.25
	_, err = e.Answer(context.Background(), testQuery(), decision)
	require.NoError(t, err)
	assert.True(t, strings.Contains(gotSystem, "Combine"))
}

func TestAnswerHybridRetrievalFailurePropagates(t *testing.T) {
	perf := &fakePerf{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
		return weightResult(0.8), nil
	}}
	retriever := &fakeRetriever{retrieveFunc: func(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error) {
		return nil, errors.New("vector store unavailable")
	}}
	e := NewEngine(perf, retriever, echoGenerator("x"), zap.NewNop())

	_, err := e.Answer(context.Background(), testQuery(), router.Decision{Route: models.RouteHybrid})
	assert.Error(t, err)
}

func TestRagConfidenceAveragesTopThree(t *testing.T) {
	assert.Zero(t, ragConfidence(nil))
	assert.InDelta(t, 0.6, ragConfidence(someChunks(0.6)), 1e-6)
	assert.InDelta(t, 0.8, ragConfidence(someChunks(0.9, 0.8, 0.7, 0.1)), 1e-6)
}

func TestRenderPerfTableFrench(t *testing.T) {
	text := renderPerfTable(weightResult(0.9), "fr")
	assert.Contains(t, text, "jour 35")
}
