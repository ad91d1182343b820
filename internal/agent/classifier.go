// Package agent is the adaptive layer above retrieval: it classifies question
// complexity, decomposes complex questions into sub-questions, runs them and
// synthesizes one answer.
package agent

import (
	"regexp"
	"strings"

	"github.com/plumeline/plumeline/models"
)

var (
	multiMetricRe   = regexp.MustCompile(`(?i)(weight|poids|fcr|conversion|water|eau|feed|aliment|gain|mortality|mortalité).*\b(and|et)\b.*(weight|poids|fcr|conversion|water|eau|feed|aliment|gain|mortality|mortalité)`)
	conditionalRe   = regexp.MustCompile(`(?i)\b(if|si)\b.*\b(then|alors|what|que[l]?)\b`)
	comparativeCues = []string{"compare", "comparer", "versus", " vs ", "difference between", "différence entre", "better than", "meilleur que"}
	sequentialCues  = []string{"then", "ensuite", "after that", "après cela", "followed by", "puis ", "step by step", "étape par étape"}
)

// Classify decides how a question should be executed. The checks run in
// priority order; the first match wins.
func Classify(query string, intent models.Intent, e *models.ExtractedEntities) models.Complexity {
	lower := strings.ToLower(query)

	if intent == models.IntentDiagnosisTriage || (e != nil && len(e.Symptoms) > 0) {
		return models.ComplexityDiagnostic
	}
	if containsAny(lower, comparativeCues...) {
		return models.ComplexityComparative
	}
	if conditionalRe.MatchString(lower) {
		return models.ComplexityConditional
	}
	if containsAny(lower, sequentialCues...) {
		return models.ComplexitySequential
	}
	if multiMetricRe.MatchString(lower) || (e != nil && e.Count() >= 4 && len(e.Metrics) > 1) {
		return models.ComplexityMultiMetric
	}
	return models.ComplexitySimple
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
