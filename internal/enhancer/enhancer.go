// Package enhancer post-processes a synthesized answer: it polishes the
// wording, attaches warnings for unstated assumptions, proposes optional
// follow-up clarifications and checks answer/question coherence.
package enhancer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plumeline/plumeline/internal/i18n"
	"github.com/plumeline/plumeline/internal/llm"
	"github.com/plumeline/plumeline/models"
)

// Generator is the completion dependency
type Generator interface {
	Generate(ctx context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error)
}

// Enhancer refines answers. When no provider is reachable it degrades to a
// deterministic pass that still attaches warnings and a coherence verdict.
type Enhancer struct {
	generator Generator
	log       *zap.Logger
}

// New wires the enhancer
func New(generator Generator, log *zap.Logger) *Enhancer {
	return &Enhancer{generator: generator, log: log}
}

type enhanceResponse struct {
	EnhancedAnswer         string   `json:"enhanced_answer"`
	OptionalClarifications []string `json:"optional_clarifications"`
	Warnings               []string `json:"warnings"`
	ConfidenceImpact       float64  `json:"confidence_impact"`
	CoherenceCheck         string   `json:"coherence_check"`
	CoherenceNotes         string   `json:"coherence_notes"`
}

const enhanceSystemPrompt = `You review an assistant's draft answer to a poultry
production question. Return strict JSON with these keys:
  enhanced_answer: the polished answer, same language and same facts as the draft
  optional_clarifications: up to 3 optional follow-up questions, may be empty
  warnings: up to 2 short caveats about assumptions in the answer, may be empty
  confidence_impact: a number between -0.2 and 0.1 adjusting the confidence
  coherence_check: one of "good", "partial", "poor"
  coherence_notes: one sentence explaining the coherence verdict
Never invent numbers that are not in the draft. Return JSON only.`

// Enhance refines the answer in place and returns it. The draft text is never
// lost: a provider failure or an invalid payload falls back to rule-based
// enhancement of the original draft.
func (e *Enhancer) Enhance(ctx context.Context, query *models.Query, entities *models.ExtractedEntities, answer *models.SynthesizedAnswer) *models.SynthesizedAnswer {
	prompt := fmt.Sprintf("Question (%s): %s\n\nDraft answer:\n%s", query.Language, query.Text, answer.Text)

	resp, err := e.generator.Generate(ctx, &llm.GenerationRequest{
		SystemPrompt: enhanceSystemPrompt,
		Prompt:       prompt,
		MaxTokens:    1500,
		Temperature:  0.1,
	})
	if err != nil {
		e.log.Warn("enhancement generation failed, applying rule-based pass", zap.Error(err))
		return e.fallback(query, entities, answer)
	}

	var parsed enhanceResponse
	if err := llm.DecodeJSON(resp.Text, &parsed); err != nil || strings.TrimSpace(parsed.EnhancedAnswer) == "" {
		e.log.Warn("enhancement payload invalid, applying rule-based pass", zap.Error(err))
		return e.fallback(query, entities, answer)
	}

	answer.Text = strings.TrimSpace(parsed.EnhancedAnswer)
	answer.OptionalClarifications = clampList(parsed.OptionalClarifications, 3)
	answer.Warnings = clampList(parsed.Warnings, 2)
	answer.Confidence = clampConfidence(answer.Confidence + clampImpact(parsed.ConfidenceImpact))
	answer.Coherence = parseCoherence(parsed.CoherenceCheck)
	// Any verdict below good must leave a visible trace on the answer
	if answer.Coherence != models.CoherenceGood {
		note := parsed.CoherenceNotes
		if note == "" {
			note = "the answer may not fully address the question"
		}
		answer.Warnings = append(answer.Warnings, i18n.T(query.Language, i18n.WarnCoherence, note))
	}
	answer.GeneratedAt = time.Now().UTC()
	return answer
}

// fallback attaches warnings for the critical entities the user never stated
// and derives coherence from lexical overlap with the question.
func (e *Enhancer) fallback(query *models.Query, entities *models.ExtractedEntities, answer *models.SynthesizedAnswer) *models.SynthesizedAnswer {
	if entities != nil {
		for _, field := range entities.MissingCriticalFields() {
			if len(answer.Warnings) >= 2 {
				break
			}
			if id, ok := i18n.WarnIDForField(field); ok {
				answer.Warnings = append(answer.Warnings, i18n.T(query.Language, id))
			}
		}
	}
	answer.Coherence = coherenceByOverlap(query.Text, answer.Text)
	if answer.Coherence != models.CoherenceGood {
		answer.Warnings = append(answer.Warnings, i18n.T(query.Language, i18n.WarnCoherence, "low overlap with the question"))
	}
	return answer
}

// coherenceByOverlap counts content words the question and answer share
func coherenceByOverlap(question, answer string) models.Coherence {
	questionWords := contentWords(question)
	answerWords := contentWords(answer)

	overlap := 0
	for word := range questionWords {
		if answerWords[word] {
			overlap++
		}
	}
	switch {
	case overlap >= 3:
		return models.CoherenceGood
	case overlap >= 1:
		return models.CoherencePartial
	}
	return models.CoherencePoor
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "for": true,
	"of": true, "at": true, "in": true, "on": true, "to": true, "and": true,
	"what": true, "how": true, "le": true, "la": true, "les": true, "de": true,
	"des": true, "du": true, "un": true, "une": true, "est": true, "pour": true,
	"quel": true, "quelle": true, "et": true,
}

func contentWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.Trim(word, ".,;:!?()'\"")
		if len(word) < 3 || stopWords[word] {
			continue
		}
		words[word] = true
	}
	return words
}

func parseCoherence(s string) models.Coherence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good":
		return models.CoherenceGood
	case "partial":
		return models.CoherencePartial
	case "poor":
		return models.CoherencePoor
	}
	return models.CoherenceUnknown
}

func clampList(items []string, max int) []string {
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == max {
			break
		}
	}
	return out
}

func clampImpact(impact float64) float64 {
	if impact < -0.2 {
		return -0.2
	}
	if impact > 0.1 {
		return 0.1
	}
	return impact
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
