package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plumeline/plumeline/internal/llm"
	"github.com/plumeline/plumeline/internal/orchestrator"
	"github.com/plumeline/plumeline/internal/router"
	"github.com/plumeline/plumeline/models"
)

// AnswerEngine answers one routed question; the hybrid engine satisfies it
type AnswerEngine interface {
	Answer(ctx context.Context, query *models.Query, decision router.Decision) (*models.SynthesizedAnswer, error)
}

// Generator is the completion dependency for synthesis
type Generator interface {
	Generate(ctx context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error)
}

// Agent answers questions adaptively: simple questions go straight through the
// retrieval engine, dependency-bearing calculations go through the
// orchestrator, everything else is decomposed into concurrent sub-questions.
type Agent struct {
	router    *router.ConceptRouter
	engine    AnswerEngine
	executor  *orchestrator.Executor
	generator Generator
	log       *zap.Logger
}

// New wires the agent
func New(conceptRouter *router.ConceptRouter, engine AnswerEngine, executor *orchestrator.Executor, generator Generator, log *zap.Logger) *Agent {
	return &Agent{
		router:    conceptRouter,
		engine:    engine,
		executor:  executor,
		generator: generator,
		log:       log,
	}
}

// Answer classifies the question and picks the execution strategy. Any failure
// of the adaptive paths falls back to the single-shot engine so a question is
// never left unanswered by a decomposition problem.
func (a *Agent) Answer(ctx context.Context, query *models.Query, intent models.Intent, e *models.ExtractedEntities, decision router.Decision) (*models.SynthesizedAnswer, error) {
	complexity := Classify(query.Text, intent, e)

	if plan := orchestrator.SelectPlan(query.Text, e); plan != orchestrator.PlanDefault {
		if answer, err := a.answerOrchestrated(ctx, query, plan, e, complexity); err == nil {
			return answer, nil
		} else {
			a.log.Warn("orchestrated execution failed, falling back",
				zap.String("plan", plan), zap.Error(err))
		}
	}

	if complexity != models.ComplexitySimple {
		subs := Decompose(query, complexity, intent, e)
		if len(subs) > 1 {
			if answer, err := a.answerDecomposed(ctx, query, complexity, subs); err == nil {
				return answer, nil
			} else {
				a.log.Warn("decomposed execution failed, falling back",
					zap.String("complexity", string(complexity)), zap.Error(err))
			}
		}
	}

	answer, err := a.engine.Answer(ctx, query, decision)
	if err != nil {
		return nil, err
	}
	answer.Complexity = complexity
	return answer, nil
}

// answerOrchestrated runs a decomposition plan through the serial executor and
// narrates the final result.
func (a *Agent) answerOrchestrated(ctx context.Context, query *models.Query, plan string, e *models.ExtractedEntities, complexity models.Complexity) (*models.SynthesizedAnswer, error) {
	steps, err := orchestrator.Decompose(plan, e)
	if err != nil {
		return nil, err
	}

	result := a.executor.Execute(ctx, steps)
	if !result.Success || result.FinalResult == nil {
		return nil, fmt.Errorf("orchestration incomplete: %s", result.Error)
	}

	text, err := a.narrate(ctx, query, result)
	if err != nil {
		text = renderStepResult(result.FinalResult)
	}

	confidence := 0.9
	if result.StepsExecuted < len(steps) {
		confidence = 0.6
	}
	return &models.SynthesizedAnswer{
		Text:        text,
		Confidence:  confidence,
		Coherence:   models.CoherenceUnknown,
		Complexity:  complexity,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// answerDecomposed runs the sub-questions concurrently and synthesizes one
// answer. One failed sub-question fails the decomposition, which then falls
// back to the single-shot path.
func (a *Agent) answerDecomposed(ctx context.Context, query *models.Query, complexity models.Complexity, subs []models.SubQuery) (*models.SynthesizedAnswer, error) {
	answers := make([]*models.SynthesizedAnswer, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			subQuery := &models.Query{
				ID:       fmt.Sprintf("%s/%d", query.ID, sub.Priority),
				Text:     sub.Text,
				Language: query.Language,
				History:  query.History,
			}
			decision := a.router.Route(sub.Text, sub.Intent, nil)
			if decision.Route == models.RouteClarify {
				decision.Route = models.RouteVector
			}
			answer, err := a.engine.Answer(gctx, subQuery, decision)
			if err != nil {
				return fmt.Errorf("sub-question %q: %w", sub.Label, err)
			}
			answers[i] = answer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	text, err := a.synthesizeSubAnswers(ctx, query, complexity, subs, answers)
	if err != nil {
		text = concatSubAnswers(subs, answers)
	}

	confidence := 1.0
	sources := make([]string, 0)
	seen := make(map[string]bool)
	for _, answer := range answers {
		if answer.Confidence < confidence {
			confidence = answer.Confidence
		}
		for _, src := range answer.Sources {
			if !seen[src] {
				seen[src] = true
				sources = append(sources, src)
			}
		}
	}
	sort.Strings(sources)

	return &models.SynthesizedAnswer{
		Text:        text,
		Confidence:  confidence,
		Sources:     sources,
		Coherence:   models.CoherenceUnknown,
		Complexity:  complexity,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

var synthesisPrompts = map[models.Complexity]string{
	models.ComplexityMultiMetric: `Combine the per-metric answers below into one answer
covering every metric the user asked for. Keep every number. Answer in the
language of the question.`,
	models.ComplexityComparative: `The user asked for a comparison. Contrast the two
answers below side by side and state which option is better for what. Answer
in the language of the question.`,
	models.ComplexityConditional: `The user asked a what-if question. Present the
baseline first, the hypothetical outcome second, and the difference between
them. Answer in the language of the question.`,
	models.ComplexitySequential: `The user asked for a sequence. Present the answers
below as ordered steps. Answer in the language of the question.`,
	models.ComplexityDiagnostic: `The user is triaging a health problem. Present the
likely causes, how to tell them apart, and the immediate actions, in that
order. Recommend a veterinarian for confirmation. Answer in the language of
the question.`,
}

func (a *Agent) synthesizeSubAnswers(ctx context.Context, query *models.Query, complexity models.Complexity, subs []models.SubQuery, answers []*models.SynthesizedAnswer) (string, error) {
	system, ok := synthesisPrompts[complexity]
	if !ok {
		system = synthesisPrompts[models.ComplexityMultiMetric]
	}

	var sb strings.Builder
	sb.WriteString("Original question: ")
	sb.WriteString(query.Text)
	sb.WriteString("\n\n")
	for i, sub := range subs {
		fmt.Fprintf(&sb, "Sub-question (%s): %s\nAnswer: %s\n\n", sub.Label, sub.Text, answers[i].Text)
	}

	resp, err := a.generator.Generate(ctx, &llm.GenerationRequest{
		SystemPrompt: system,
		Prompt:       sb.String(),
		MaxTokens:    1500,
		Temperature:  0.2,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (a *Agent) narrate(ctx context.Context, query *models.Query, result *models.OrchestrationResult) (string, error) {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query.Text)
	sb.WriteString("\n\nCalculation steps:\n")

	numbers := make([]int, 0, len(result.Results))
	for n := range result.Results {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		fmt.Fprintf(&sb, "Step %d: %s\n", n, renderStepResult(result.Results[n]))
	}

	resp, err := a.generator.Generate(ctx, &llm.GenerationRequest{
		SystemPrompt: `Narrate the calculation below as a clear answer to the user's
question. Keep every number exactly as computed. Answer in the language of the
question.`,
		Prompt:      sb.String(),
		MaxTokens:   1000,
		Temperature: 0.1,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// renderStepResult is the deterministic fallback narration
func renderStepResult(r *models.StepResult) string {
	var parts []string
	if r.Summary != "" {
		parts = append(parts, r.Summary)
	}
	metrics := make([]string, 0, len(r.Metrics))
	for metric := range r.Metrics {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)
	for _, metric := range metrics {
		v := r.Metrics[metric]
		parts = append(parts, fmt.Sprintf("%s = %.4g %s", metric, v.Value, v.Unit))
	}
	totals := make([]string, 0, len(r.Totals))
	for total := range r.Totals {
		totals = append(totals, total)
	}
	sort.Strings(totals)
	for _, total := range totals {
		parts = append(parts, fmt.Sprintf("total %s = %.6g", total, r.Totals[total]))
	}
	return strings.Join(parts, "; ")
}

func concatSubAnswers(subs []models.SubQuery, answers []*models.SynthesizedAnswer) string {
	var sb strings.Builder
	for i, sub := range subs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%s: %s", sub.Label, answers[i].Text)
	}
	return sb.String()
}
