// Package app wires the components into the four public operations: ask,
// answer a clarification, expand knowledge and look up performance data.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plumeline/plumeline/config"
	"github.com/plumeline/plumeline/internal/enhancer"
	"github.com/plumeline/plumeline/internal/i18n"
	"github.com/plumeline/plumeline/internal/intent"
	"github.com/plumeline/plumeline/internal/router"
	"github.com/plumeline/plumeline/models"
	"github.com/plumeline/plumeline/storage"
)

// Answerer is the adaptive answering layer; the agent satisfies it
type Answerer interface {
	Answer(ctx context.Context, query *models.Query, queryIntent models.Intent, e *models.ExtractedEntities, decision router.Decision) (*models.SynthesizedAnswer, error)
}

// PerfClient is the performance-store surface the engine exposes
type PerfClient interface {
	Lookup(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error)
	Catalog(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// SourceSearcher fans a topic out to the external academic sources
type SourceSearcher interface {
	Search(ctx context.Context, query string) (*models.ExternalSearchResult, error)
}

// Ingester persists external documents into the vector store
type Ingester interface {
	IngestBatch(ctx context.Context, docs []*models.ExternalDocument, queryContext string) (int, error)
}

// HealthProber is one probeable backend
type HealthProber func(ctx context.Context) error

// Engine is the query orchestration facade
type Engine struct {
	cfg       *config.Config
	gate      *intent.DomainGate
	extractor *intent.Extractor
	clarifier *intent.Clarifier
	router    *router.ConceptRouter
	answerer  Answerer
	enhancer  *enhancer.Enhancer
	perf      PerfClient
	sources   SourceSearcher
	ingester  Ingester
	audit     *storage.AuditStore
	probes    map[string]HealthProber
	log       *zap.Logger
}

// EngineDeps carries the wired components into the engine
type EngineDeps struct {
	Gate      *intent.DomainGate
	Extractor *intent.Extractor
	Clarifier *intent.Clarifier
	Router    *router.ConceptRouter
	Answerer  Answerer
	Enhancer  *enhancer.Enhancer
	Perf      PerfClient
	Sources   SourceSearcher
	Ingester  Ingester
	Audit     *storage.AuditStore
	Probes    map[string]HealthProber
}

// NewEngine assembles the engine from its dependencies
func NewEngine(cfg *config.Config, deps EngineDeps, log *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		gate:      deps.Gate,
		extractor: deps.Extractor,
		clarifier: deps.Clarifier,
		router:    deps.Router,
		answerer:  deps.Answerer,
		enhancer:  deps.Enhancer,
		perf:      deps.Perf,
		sources:   deps.Sources,
		ingester:  deps.Ingester,
		audit:     deps.Audit,
		probes:    deps.Probes,
		log:       log,
	}
}

// Ask runs the full pipeline: gate, extraction, clarification check, routing,
// answering, enhancement. The result is always exactly one of answer,
// clarification or rejection.
func (e *Engine) Ask(ctx context.Context, query *models.Query) (*models.AskResult, error) {
	e.prepare(query)

	verdict := e.gate.Evaluate(ctx, query.Text, query.Language)
	if !verdict.Accepted {
		return &models.AskResult{
			Type:      models.OutcomeRejection,
			Rejection: e.gate.Rejection(verdict, query.Language),
		}, nil
	}

	queryIntent, entities := e.extractor.Extract(ctx, query)

	if clarification := e.clarifier.Check(ctx, query, queryIntent, entities); clarification != nil {
		e.savePending(ctx, query, entities, clarification)
		return &models.AskResult{Type: models.OutcomeClarification, Clarification: clarification}, nil
	}

	decision := e.router.Route(query.Text, queryIntent, entities)
	if decision.Route == models.RouteClarify {
		clarification := e.catalogClarification(ctx, query.Language)
		e.savePending(ctx, query, entities, clarification)
		return &models.AskResult{Type: models.OutcomeClarification, Clarification: clarification}, nil
	}

	answer, err := e.answerer.Answer(ctx, query, queryIntent, entities, decision)
	if err != nil {
		return nil, err
	}
	answer = e.enhancer.Enhance(ctx, query, entities, answer)
	if answer.Route == "" {
		answer.Route = decision.Route
	}

	e.saveTurn(ctx, query, answer)
	return &models.AskResult{Type: models.OutcomeAnswer, Answer: answer}, nil
}

// AnswerClarification resumes a clarified question. The user's answers are
// appended to the original question text and the pipeline reruns, so the
// extractor sees one complete statement.
func (e *Engine) AnswerClarification(ctx context.Context, conversationID string, answers map[string]string) (*models.AskResult, error) {
	pending, err := e.audit.TakePendingClarification(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	var parts []string
	for _, field := range pending.MissingFields {
		if answer, ok := answers[field]; ok && strings.TrimSpace(answer) != "" {
			parts = append(parts, strings.TrimSpace(answer))
		}
	}
	for field, answer := range answers {
		if !contains(pending.MissingFields, field) && strings.TrimSpace(answer) != "" {
			parts = append(parts, strings.TrimSpace(answer))
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no usable clarification answers provided")
	}

	resumed := &models.Query{
		ID:             uuid.NewString(),
		Text:           strings.TrimRight(pending.Query.Text, "?. ") + ". " + strings.Join(parts, ". "),
		Language:       pending.Query.Language,
		ConversationID: conversationID,
		TenantID:       pending.Query.TenantID,
		History:        pending.Query.History,
		Timestamp:      time.Now().UTC(),
	}
	return e.Ask(ctx, resumed)
}

// ExpandKnowledge searches the external sources for a topic and ingests what
// they return. Partial source failures reduce the haul, they never fail the
// expansion.
func (e *Engine) ExpandKnowledge(ctx context.Context, topic string) (*models.ExpansionReport, error) {
	result, err := e.sources.Search(ctx, topic)
	if err != nil {
		return nil, err
	}

	report := &models.ExpansionReport{SourcesSucceeded: result.SourcesSucceeded}
	if result.Found {
		ingested, err := e.ingester.IngestBatch(ctx, result.AllDocuments, topic)
		if err != nil {
			return nil, err
		}
		report.DocumentsIngested = ingested
	}

	if e.audit != nil {
		if err := e.audit.RecordExpansion(ctx, topic, report); err != nil {
			e.log.Warn("failed to record expansion run", zap.Error(err))
		}
	}
	return report, nil
}

// PerfLookup exposes the deterministic performance lookup directly
func (e *Engine) PerfLookup(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
	return e.perf.Lookup(ctx, q)
}

// Health probes every registered backend with a short per-probe deadline
func (e *Engine) Health(ctx context.Context) *models.HealthReport {
	report := &models.HealthReport{Components: make(map[string]models.ComponentStatus, len(e.probes))}
	for name, probe := range e.probes {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := probe(probeCtx); err != nil {
			report.Components[name] = models.StatusDown
			e.log.Warn("health probe failed", zap.String("component", name), zap.Error(err))
		} else {
			report.Components[name] = models.StatusOK
		}
		cancel()
	}
	return report
}

// prepare fills query defaults: id, timestamp, language and stored history
func (e *Engine) prepare(query *models.Query) {
	if query.ID == "" {
		query.ID = uuid.NewString()
	}
	if query.Timestamp.IsZero() {
		query.Timestamp = time.Now().UTC()
	}
	if query.Language == "" || !i18n.Supported(query.Language) {
		query.Language = e.cfg.App.DefaultLanguage
	}
	if len(query.History) == 0 && query.ConversationID != "" && e.audit != nil {
		if turns, err := e.audit.History(context.Background(), query.ConversationID, 5); err == nil {
			query.History = turns
		}
	}
}

// catalogClarification builds the breed question, listing the lines actually
// present in the performance store when the catalog is reachable.
func (e *Engine) catalogClarification(ctx context.Context, language string) *models.ClarificationRequest {
	question := i18n.T(language, i18n.ClarifyBreed)
	if lines, err := e.perf.Catalog(ctx); err == nil && len(lines) > 0 {
		question = i18n.T(language, i18n.ClarifyCatalog, strings.Join(lines, ", "))
	}
	return &models.ClarificationRequest{
		Questions:     []string{question},
		MissingFields: []string{"breed"},
		Language:      language,
	}
}

func (e *Engine) savePending(ctx context.Context, query *models.Query, entities *models.ExtractedEntities, clarification *models.ClarificationRequest) {
	if e.audit == nil || query.ConversationID == "" {
		return
	}
	err := e.audit.SavePendingClarification(ctx, &storage.PendingClarification{
		ConversationID: query.ConversationID,
		Query:          query,
		Entities:       entities,
		MissingFields:  clarification.MissingFields,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		e.log.Warn("failed to save pending clarification", zap.Error(err))
	}
}

func (e *Engine) saveTurn(ctx context.Context, query *models.Query, answer *models.SynthesizedAnswer) {
	if e.audit == nil || query.ConversationID == "" {
		return
	}
	if err := e.audit.SaveTurn(ctx, query.ConversationID, query.Text, answer.Text); err != nil {
		e.log.Warn("failed to save conversation turn", zap.Error(err))
	}
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
