// Package hybrid executes a routed query against the performance store, the
// vector store, or both, and synthesizes the final answer text.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plumeline/plumeline/internal/llm"
	"github.com/plumeline/plumeline/internal/router"
	"github.com/plumeline/plumeline/models"
)

// PerfLookup is the performance-store dependency
type PerfLookup interface {
	Lookup(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error)
}

// Retriever is the vector retrieval dependency
type Retriever interface {
	Retrieve(ctx context.Context, queryText string, filters models.SearchFilters, topK int) ([]*models.VectorChunk, error)
}

// Generator is the completion dependency
type Generator interface {
	Generate(ctx context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error)
}

// Engine dispatches a routing decision to the matching retrieval path
type Engine struct {
	perf      PerfLookup
	retriever Retriever
	generator Generator
	log       *zap.Logger
}

// NewEngine wires the engine
func NewEngine(perf PerfLookup, retriever Retriever, generator Generator, log *zap.Logger) *Engine {
	return &Engine{perf: perf, retriever: retriever, generator: generator, log: log}
}

// Answer executes the decided route and returns a synthesized answer.
// An empty performance lookup on the deterministic route degrades to vector
// retrieval instead of failing the question.
func (e *Engine) Answer(ctx context.Context, query *models.Query, decision router.Decision) (*models.SynthesizedAnswer, error) {
	switch decision.Route {
	case models.RoutePerfStore:
		return e.answerPerfStore(ctx, query, decision)
	case models.RouteHybrid:
		return e.answerHybrid(ctx, query, decision)
	default:
		return e.answerVector(ctx, query, decision)
	}
}

func (e *Engine) answerPerfStore(ctx context.Context, query *models.Query, decision router.Decision) (*models.SynthesizedAnswer, error) {
	result, err := e.perf.Lookup(ctx, perfQueryFromFilters(decision.Filters))
	if err != nil {
		if errors.Is(err, models.ErrPerfStoreEmpty) {
			e.log.Info("performance lookup empty, degrading to vector retrieval",
				zap.String("query_id", query.ID))
			return e.answerVector(ctx, query, decision)
		}
		return nil, err
	}

	// Light vector context so the answer can frame the numbers
	chunks, retErr := e.retriever.Retrieve(ctx, query.Text, decision.Filters, 3)
	if retErr != nil {
		e.log.Warn("context retrieval failed, answering from numbers alone", zap.Error(retErr))
		chunks = nil
	}

	text, err := e.synthesize(ctx, query, perfPrompt, result, chunks)
	if err != nil {
		text = renderPerfTable(result, query.Language)
	}

	return &models.SynthesizedAnswer{
		Text:        text,
		Confidence:  result.Confidence,
		Sources:     chunkSources(chunks),
		Coherence:   models.CoherenceUnknown,
		Route:       models.RoutePerfStore,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (e *Engine) answerVector(ctx context.Context, query *models.Query, decision router.Decision) (*models.SynthesizedAnswer, error) {
	chunks, err := e.retriever.Retrieve(ctx, query.Text, decision.Filters, 0)
	if err != nil {
		return nil, err
	}

	// Performance-flavored questions get a loose numeric enrichment; failure
	// here is silent because the documents already carry the answer.
	var perf *models.PerfResult
	if decision.Concepts[router.ConceptPerformance] > 0.3 {
		loose := perfQueryFromFilters(decision.Filters)
		loose.Metrics = nil
		if p, perfErr := e.perf.Lookup(ctx, loose); perfErr == nil {
			perf = p
		}
	}

	text, err := e.synthesize(ctx, query, vectorPrompt, perf, chunks)
	if err != nil {
		if len(chunks) == 0 {
			return nil, fmt.Errorf("no knowledge found and synthesis failed: %w", err)
		}
		text = chunks[0].Content
	}

	return &models.SynthesizedAnswer{
		Text:        text,
		Confidence:  ragConfidence(chunks),
		Sources:     chunkSources(chunks),
		Coherence:   models.CoherenceUnknown,
		Route:       models.RouteVector,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (e *Engine) answerHybrid(ctx context.Context, query *models.Query, decision router.Decision) (*models.SynthesizedAnswer, error) {
	var (
		perf   *models.PerfResult
		chunks []*models.VectorChunk
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := e.perf.Lookup(gctx, perfQueryFromFilters(decision.Filters))
		if err != nil {
			if errors.Is(err, models.ErrPerfStoreEmpty) {
				return nil
			}
			return err
		}
		perf = p
		return nil
	})
	g.Go(func() error {
		c, err := e.retriever.Retrieve(gctx, query.Text, decision.Filters, 0)
		if err != nil {
			return err
		}
		chunks = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prompt := enrichmentPrompt
	if decision.Concepts[router.ConceptComparison] > 0.5 {
		prompt = comparisonPrompt
	}

	text, err := e.synthesize(ctx, query, prompt, perf, chunks)
	if err != nil {
		switch {
		case perf != nil:
			text = renderPerfTable(perf, query.Language)
		case len(chunks) > 0:
			text = chunks[0].Content
		default:
			return nil, err
		}
	}

	perfConf := 0.0
	if perf != nil {
		perfConf = perf.Confidence
	}
	return &models.SynthesizedAnswer{
		Text:        text,
		Confidence:  0.6*perfConf + 0.4*ragConfidence(chunks),
		Sources:     chunkSources(chunks),
		Coherence:   models.CoherenceUnknown,
		Route:       models.RouteHybrid,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

const (
	perfPrompt = `You are a poultry production advisor. Answer the question using the
official performance figures below as the authoritative numbers. Use the
context excerpts only to frame them. Answer in the language of the question.`

	vectorPrompt = `You are a poultry production advisor. Answer the question from the
knowledge excerpts below. If official figures are provided, cite them where
relevant. Answer in the language of the question.`

	enrichmentPrompt = `You are a poultry production advisor. Combine the official
performance figures with the knowledge excerpts into one coherent answer.
Numbers come from the figures; explanations come from the excerpts. Answer in
the language of the question.`

	comparisonPrompt = `You are a poultry production advisor. The user is comparing
scenarios or lines. Contrast the official performance figures side by side,
using the knowledge excerpts for context. Answer in the language of the
question.`
)

func (e *Engine) synthesize(ctx context.Context, query *models.Query, system string, perf *models.PerfResult, chunks []*models.VectorChunk) (string, error) {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query.Text)
	sb.WriteString("\n")

	if perf != nil && len(perf.Rows) > 0 {
		sb.WriteString("\nOfficial performance figures:\n")
		sb.WriteString(renderPerfTable(perf, query.Language))
		sb.WriteString("\n")
	}
	if len(chunks) > 0 {
		sb.WriteString("\nKnowledge excerpts:\n")
		for i, chunk := range chunks {
			if i >= 8 {
				break
			}
			fmt.Fprintf(&sb, "[%d] %s\n", i+1, strings.TrimSpace(chunk.Content))
		}
	}

	resp, err := e.generator.Generate(ctx, &llm.GenerationRequest{
		SystemPrompt: system,
		Prompt:       sb.String(),
		MaxTokens:    1200,
		Temperature:  0.2,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// renderPerfTable is the deterministic fallback rendering when no provider
// is reachable: the numbers are still correct, just unadorned.
func renderPerfTable(result *models.PerfResult, language string) string {
	var sb strings.Builder
	for _, row := range result.Rows {
		fmt.Fprintf(&sb, "%s, %s, %s %d: %s = %.4g %s\n",
			row.Line, row.Sex, dayWord(language), row.AgeDays, row.Metric, row.Value, row.Unit)
	}
	return strings.TrimSpace(sb.String())
}

func dayWord(language string) string {
	if language == "fr" {
		return "jour"
	}
	return "day"
}

func perfQueryFromFilters(f models.SearchFilters) models.PerfQuery {
	q := models.PerfQuery{
		Species: f.Species,
		Line:    f.Line,
		Sex:     f.Sex,
		Metrics: f.Metrics,
	}
	if f.AgeDays != nil {
		age := *f.AgeDays
		q.AgeDays = &age
	}
	return q
}

// ragConfidence is the mean similarity of the top three chunks
func ragConfidence(chunks []*models.VectorChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	n := len(chunks)
	if n > 3 {
		n = 3
	}
	sum := 0.0
	for _, chunk := range chunks[:n] {
		sum += float64(chunk.Score)
	}
	conf := sum / float64(n)
	if conf > 1 {
		conf = 1
	}
	return conf
}

func chunkSources(chunks []*models.VectorChunk) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, chunk := range chunks {
		label := chunk.Metadata.Title
		if label == "" {
			label = chunk.Metadata.Source
		}
		if chunk.Metadata.URL != "" {
			label = label + " (" + chunk.Metadata.URL + ")"
		}
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		sources = append(sources, label)
	}
	sort.Strings(sources)
	return sources
}
