package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/plumeline/plumeline/models"
)

var (
	versusRe     = regexp.MustCompile(`(?i)(.+?)\s+(?:versus|vs\.?|compared to|par rapport à)\s+(.+)`)
	sequentialRe = regexp.MustCompile(`(?i)\s*(?:\bthen\b|\bensuite\b|\bpuis\b|\bafter that\b|\baprès cela\b)\s*`)
)

// Decompose splits a complex question into independent sub-questions. Each
// sub-question is answerable on its own; the synthesis step reunites them.
func Decompose(query *models.Query, complexity models.Complexity, intent models.Intent, e *models.ExtractedEntities) []models.SubQuery {
	switch complexity {
	case models.ComplexityMultiMetric:
		return decomposeMultiMetric(query, intent, e)
	case models.ComplexityComparative:
		return decomposeComparative(query, intent)
	case models.ComplexityConditional:
		return decomposeConditional(query, intent)
	case models.ComplexitySequential:
		return decomposeSequential(query, intent)
	case models.ComplexityDiagnostic:
		return decomposeDiagnostic(query, e)
	}
	return nil
}

// decomposeMultiMetric asks one question per metric, carrying the shared
// subject (line, sex, age) into each.
func decomposeMultiMetric(query *models.Query, intent models.Intent, e *models.ExtractedEntities) []models.SubQuery {
	if e == nil || len(e.Metrics) < 2 {
		return nil
	}
	subject := subjectPhrase(e, query.Language)
	subs := make([]models.SubQuery, 0, len(e.Metrics))
	for i, metric := range e.Metrics {
		var text string
		if query.Language == "fr" {
			text = fmt.Sprintf("Quel est %s pour %s ?", metric, subject)
		} else {
			text = fmt.Sprintf("What is the %s for %s?", metric, subject)
		}
		subs = append(subs, models.SubQuery{Text: text, Intent: intent, Priority: i + 1, Label: metric})
	}
	return subs
}

func decomposeComparative(query *models.Query, intent models.Intent) []models.SubQuery {
	m := versusRe.FindStringSubmatch(query.Text)
	if m == nil {
		return nil
	}
	left := strings.TrimSpace(m[1])
	right := strings.TrimSpace(m[2])
	right = strings.TrimRight(right, "?.! ")
	return []models.SubQuery{
		{Text: left + "?", Intent: intent, Priority: 1, Label: left},
		{Text: right + "?", Intent: intent, Priority: 2, Label: right},
	}
}

// decomposeConditional answers the baseline first, the hypothetical second
func decomposeConditional(query *models.Query, intent models.Intent) []models.SubQuery {
	return []models.SubQuery{
		{Text: query.Text, Intent: intent, Priority: 1, Label: "baseline"},
		{Text: hypotheticalPrefix(query.Language) + query.Text, Intent: intent, Priority: 2, Label: "hypothetical"},
	}
}

func decomposeSequential(query *models.Query, intent models.Intent) []models.SubQuery {
	parts := sequentialRe.Split(query.Text, -1)
	if len(parts) < 2 {
		return nil
	}
	subs := make([]models.SubQuery, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasSuffix(part, "?") {
			part += "?"
		}
		subs = append(subs, models.SubQuery{Text: part, Intent: intent, Priority: i + 1, Label: fmt.Sprintf("step %d", i+1)})
	}
	return subs
}

// decomposeDiagnostic splits a triage question into causes, differentials and
// immediate actions.
func decomposeDiagnostic(query *models.Query, e *models.ExtractedEntities) []models.SubQuery {
	symptoms := "the reported symptoms"
	if e != nil && len(e.Symptoms) > 0 {
		symptoms = strings.Join(e.Symptoms, ", ")
	}
	if query.Language == "fr" {
		return []models.SubQuery{
			{Text: "Quelles sont les causes possibles de " + symptoms + " chez les volailles ?", Intent: models.IntentDiagnosisTriage, Priority: 1, Label: "causes"},
			{Text: "Comment distinguer les maladies provoquant " + symptoms + " ?", Intent: models.IntentDiagnosisTriage, Priority: 2, Label: "differential"},
			{Text: "Quelles mesures immédiates prendre face à " + symptoms + " ?", Intent: models.IntentProtocolQuery, Priority: 3, Label: "actions"},
		}
	}
	return []models.SubQuery{
		{Text: "What are the possible causes of " + symptoms + " in poultry?", Intent: models.IntentDiagnosisTriage, Priority: 1, Label: "causes"},
		{Text: "How to differentiate diseases causing " + symptoms + "?", Intent: models.IntentDiagnosisTriage, Priority: 2, Label: "differential"},
		{Text: "What immediate actions should be taken for " + symptoms + "?", Intent: models.IntentProtocolQuery, Priority: 3, Label: "actions"},
	}
}

func subjectPhrase(e *models.ExtractedEntities, language string) string {
	var parts []string
	if e.Breed != nil && !e.IsGenericBreed() {
		parts = append(parts, strings.ReplaceAll(*e.Breed, "_", " "))
	} else if language == "fr" {
		parts = append(parts, "poulets de chair")
	} else {
		parts = append(parts, "broilers")
	}
	if e.Sex != nil {
		parts = append(parts, string(*e.Sex))
	}
	if e.AgeDays != nil {
		if language == "fr" {
			parts = append(parts, fmt.Sprintf("à %d jours", *e.AgeDays))
		} else {
			parts = append(parts, fmt.Sprintf("at %d days", *e.AgeDays))
		}
	}
	return strings.Join(parts, " ")
}

func hypotheticalPrefix(language string) string {
	if language == "fr" {
		return "Dans le scénario hypothétique décrit : "
	}
	return "In the hypothetical scenario described: "
}
