package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plumeline/plumeline/config"
	"github.com/plumeline/plumeline/internal/enhancer"
	"github.com/plumeline/plumeline/internal/intent"
	"github.com/plumeline/plumeline/internal/llm"
	"github.com/plumeline/plumeline/internal/router"
	"github.com/plumeline/plumeline/models"
	"github.com/plumeline/plumeline/storage"
)

type fakeAnswerer struct {
	answerFunc func(ctx context.Context, query *models.Query, queryIntent models.Intent, e *models.ExtractedEntities, decision router.Decision) (*models.SynthesizedAnswer, error)
}

func (f *fakeAnswerer) Answer(ctx context.Context, query *models.Query, queryIntent models.Intent, e *models.ExtractedEntities, decision router.Decision) (*models.SynthesizedAnswer, error) {
	return f.answerFunc(ctx, query, queryIntent, e, decision)
}

type fakePerfClient struct {
	lookupFunc  func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error)
	catalogFunc func(ctx context.Context) ([]string, error)
}

func (f *fakePerfClient) Lookup(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
	return f.lookupFunc(ctx, q)
}

func (f *fakePerfClient) Catalog(ctx context.Context) ([]string, error) {
	if f.catalogFunc != nil {
		return f.catalogFunc(ctx)
	}
	return []string{"ross_308", "cobb_500"}, nil
}

func (f *fakePerfClient) Ping(ctx context.Context) error { return nil }

type fakeSources struct {
	searchFunc func(ctx context.Context, query string) (*models.ExternalSearchResult, error)
}

func (f *fakeSources) Search(ctx context.Context, query string) (*models.ExternalSearchResult, error) {
	return f.searchFunc(ctx, query)
}

type fakeIngester struct {
	batchFunc func(ctx context.Context, docs []*models.ExternalDocument, queryContext string) (int, error)
}

func (f *fakeIngester) IngestBatch(ctx context.Context, docs []*models.ExternalDocument, queryContext string) (int, error) {
	return f.batchFunc(ctx, docs, queryContext)
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error) {
	return nil, errors.New("no provider configured")
}

func newTestEngine(t *testing.T, answerer Answerer) *Engine {
	t.Helper()
	log := zap.NewNop()

	audit, err := storage.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	cfg := &config.Config{App: config.AppConfig{DefaultLanguage: "en"}}
	deps := EngineDeps{
		Gate:      intent.NewDomainGate(intent.GateConfig{Threshold: 15}, audit, log),
		Extractor: intent.NewExtractor(nil, log),
		Clarifier: intent.NewClarifier(intent.ClarifierConfig{}, nil, log),
		Router:    router.NewConceptRouter(),
		Answerer:  answerer,
		Enhancer:  enhancer.New(stubGenerator{}, log),
		Perf: &fakePerfClient{lookupFunc: func(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
			return &models.PerfResult{Confidence: 0.5}, nil
		}},
		Audit: audit,
	}
	return NewEngine(cfg, deps, log)
}

func answerWith(text string) *fakeAnswerer {
	return &fakeAnswerer{answerFunc: func(ctx context.Context, query *models.Query, queryIntent models.Intent, e *models.ExtractedEntities, decision router.Decision) (*models.SynthesizedAnswer, error) {
		return &models.SynthesizedAnswer{Text: text, Confidence: 0.9, Route: decision.Route}, nil
	}}
}

func TestAskAnswersSpecificQuestion(t *testing.T) {
	e := newTestEngine(t, answerWith("Target weight for Ross 308 males at 35 days is 2283 g."))

	q := &models.Query{Text: "What is the target weight for Ross 308 males at 35 days?", ConversationID: "conv1"}
	result, err := e.Ask(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeAnswer, result.Type)
	assert.Contains(t, result.Answer.Text, "2283")
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, "en", q.Language)

	// The answered turn lands in the conversation history
	turns, err := e.audit.History(context.Background(), "conv1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, q.Text, turns[0].Question)
}

func TestAskRejectsOffDomainQuestion(t *testing.T) {
	answerer := &fakeAnswerer{answerFunc: func(ctx context.Context, query *models.Query, queryIntent models.Intent, e *models.ExtractedEntities, decision router.Decision) (*models.SynthesizedAnswer, error) {
		t.Fatal("answerer must not run for a rejected question")
		return nil, nil
	}}
	e := newTestEngine(t, answerer)

	result, err := e.Ask(context.Background(), &models.Query{Text: "What is the best bitcoin trading strategy?"})
	require.NoError(t, err)
	require.Equal(t, models.OutcomeRejection, result.Type)
	assert.NotEmpty(t, result.Rejection.Message)
}

func TestAskClarifiesGenericBreedThenResumes(t *testing.T) {
	e := newTestEngine(t, answerWith("Around 2200 g at 35 days for a fast-growing line."))
	ctx := context.Background()

	q := &models.Query{Text: "What weight should my chickens reach at 35 days?", ConversationID: "conv2"}
	result, err := e.Ask(ctx, q)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeClarification, result.Type)
	assert.Contains(t, result.Clarification.MissingFields, "breed")

	resumed, err := e.AnswerClarification(ctx, "conv2", map[string]string{"breed": "Ross 308 males"})
	require.NoError(t, err)
	require.Equal(t, models.OutcomeAnswer, resumed.Type)
	assert.Contains(t, resumed.Answer.Text, "2200")
}

func TestAnswerClarificationWithoutPendingState(t *testing.T) {
	e := newTestEngine(t, answerWith("x"))

	_, err := e.AnswerClarification(context.Background(), "unknown", map[string]string{"breed": "cobb 500"})
	assert.ErrorIs(t, err, storage.ErrNoPendingClarification)
}

func TestAnswerClarificationEmptyAnswers(t *testing.T) {
	e := newTestEngine(t, answerWith("x"))
	ctx := context.Background()

	q := &models.Query{Text: "What weight should my chickens reach at 35 days?", ConversationID: "conv3"}
	result, err := e.Ask(ctx, q)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeClarification, result.Type)

	_, err = e.AnswerClarification(ctx, "conv3", map[string]string{"breed": "   "})
	assert.Error(t, err)
}

func TestExpandKnowledgeIngestsFoundDocuments(t *testing.T) {
	e := newTestEngine(t, answerWith("x"))
	e.sources = &fakeSources{searchFunc: func(ctx context.Context, query string) (*models.ExternalSearchResult, error) {
		return &models.ExternalSearchResult{
			Found:            true,
			SourcesSucceeded: 2,
			AllDocuments:     []*models.ExternalDocument{{Title: "Coccidiosis control"}},
		}, nil
	}}
	e.ingester = &fakeIngester{batchFunc: func(ctx context.Context, docs []*models.ExternalDocument, queryContext string) (int, error) {
		assert.Equal(t, "coccidiosis prevention", queryContext)
		return 7, nil
	}}

	report, err := e.ExpandKnowledge(context.Background(), "coccidiosis prevention")
	require.NoError(t, err)
	assert.Equal(t, 7, report.DocumentsIngested)
	assert.Equal(t, 2, report.SourcesSucceeded)
}

func TestExpandKnowledgeNothingFound(t *testing.T) {
	e := newTestEngine(t, answerWith("x"))
	e.sources = &fakeSources{searchFunc: func(ctx context.Context, query string) (*models.ExternalSearchResult, error) {
		return &models.ExternalSearchResult{Found: false, SourcesSucceeded: 1}, nil
	}}
	e.ingester = &fakeIngester{batchFunc: func(ctx context.Context, docs []*models.ExternalDocument, queryContext string) (int, error) {
		t.Fatal("nothing to ingest when no source found documents")
		return 0, nil
	}}

	report, err := e.ExpandKnowledge(context.Background(), "obscure topic")
	require.NoError(t, err)
	assert.Zero(t, report.DocumentsIngested)
}

func TestHealthReportsDownComponent(t *testing.T) {
	e := newTestEngine(t, answerWith("x"))
	e.probes = map[string]HealthProber{
		"perf_store":   func(ctx context.Context) error { return nil },
		"vector_store": func(ctx context.Context) error { return errors.New("unreachable") },
	}

	report := e.Health(context.Background())
	assert.Equal(t, models.StatusOK, report.Components["perf_store"])
	assert.Equal(t, models.StatusDown, report.Components["vector_store"])
}
