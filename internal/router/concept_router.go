// Package router maps a classified question onto a retrieval route:
// deterministic performance lookup, vector search, a hybrid of both, or a
// clarification request. Routing is pure keyword scoring and runs identically
// for identical inputs.
package router

import (
	"strings"

	"github.com/plumeline/plumeline/models"
)

// Concept categories scored by the router
const (
	ConceptPerformance     = "performance"
	ConceptNutrition       = "nutrition"
	ConceptHealth          = "health"
	ConceptManagement      = "management"
	ConceptSpeciesSpecific = "species_specific"
	ConceptLineSpecific    = "line_specific"
	ConceptQuantitative    = "quantitative"
	ConceptComparison      = "comparison"
)

var conceptKeywords = map[string][]string{
	ConceptPerformance: {
		"weight", "poids", "gain", "fcr", "conversion", "performance",
		"target", "objectif", "standard", "intake", "consommation",
	},
	ConceptNutrition: {
		"feed", "aliment", "protein", "protéine", "energy", "énergie",
		"ration", "amino", "lysine", "diet", "régime",
	},
	ConceptHealth: {
		"disease", "maladie", "vaccine", "vaccin", "symptom", "symptôme",
		"mortality", "mortalité", "treatment", "traitement", "infection", "sick", "malade",
	},
	ConceptManagement: {
		"ventilation", "lighting", "lumière", "density", "densité",
		"temperature", "température", "litter", "litière", "housing", "logement",
	},
	ConceptSpeciesSpecific: {
		"broiler", "poulet de chair", "layer", "pondeuse", "turkey", "dinde",
		"breeder", "reproducteur", "chicken", "poulet",
	},
	ConceptLineSpecific: {
		"ross", "cobb", "hubbard", "lohmann", "isa", "hy-line", "hyline", "308", "500", "708",
	},
	ConceptQuantitative: {
		"how much", "how many", "combien", "what is the", "quel est", "quelle est",
		"days", "jours", "grams", "grammes", "kg", "%", "value", "valeur",
	},
	ConceptComparison: {
		"compare", "comparer", "versus", "vs", "difference", "différence",
		"better", "meilleur", "against", "par rapport",
	},
}

// Decision is the routing outcome with its supporting scores
type Decision struct {
	Route      models.QueryRoute
	Filters    models.SearchFilters
	Concepts   map[string]float64
	Confidence float64
}

// ConceptRouter decides the retrieval route for a classified query
type ConceptRouter struct{}

// NewConceptRouter creates a router
func NewConceptRouter() *ConceptRouter {
	return &ConceptRouter{}
}

// Route scores the concept categories and applies the decision rules in order
func (r *ConceptRouter) Route(query string, intent models.Intent, e *models.ExtractedEntities) Decision {
	scores := r.scoreConcepts(query, e)
	filters := ExtractFilters(e)

	d := Decision{Filters: filters, Concepts: scores, Confidence: 0.8}

	switch {
	case scores[ConceptQuantitative] > 0.6 && scores[ConceptPerformance] > 0.4:
		d.Route = models.RoutePerfStore
	case scores[ConceptSpeciesSpecific] > 0.5 && scores[ConceptLineSpecific] > 0.3 && scores[ConceptPerformance] > 0.3:
		d.Route = models.RoutePerfStore
	case scores[ConceptComparison] > 0.5 && scores[ConceptQuantitative] > 0.4:
		d.Route = models.RouteHybrid
	case scores[ConceptPerformance] > 0.3 || scores[ConceptNutrition] > 0.3 || scores[ConceptHealth] > 0.3:
		d.Route = models.RouteVector
	case maxScore(scores) < 0.3:
		d.Route = models.RouteClarify
		d.Confidence = maxScore(scores)
	default:
		d.Route = models.RouteVector
		d.Confidence = 0.4
	}

	return d
}

// scoreConcepts gives each category 0.25 per matched keyword, capped at 1.
// Entities count toward the categories they clearly signal, so a routed filter
// cannot disagree with the score that produced it.
func (r *ConceptRouter) scoreConcepts(query string, e *models.ExtractedEntities) map[string]float64 {
	lower := strings.ToLower(query)
	scores := make(map[string]float64, len(conceptKeywords))

	for concept, keywords := range conceptKeywords {
		matched := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				matched++
			}
		}
		score := float64(matched) * 0.25
		if score > 1 {
			score = 1
		}
		scores[concept] = score
	}

	if e != nil {
		if e.Breed != nil && !e.IsGenericBreed() {
			bump(scores, ConceptLineSpecific, 0.35)
			bump(scores, ConceptSpeciesSpecific, 0.6)
		}
		if e.AgeDays != nil || e.TargetWeightG != nil || e.FCR != nil {
			bump(scores, ConceptQuantitative, 0.3)
		}
		if len(e.Metrics) > 0 {
			bump(scores, ConceptPerformance, 0.2)
		}
		if len(e.Symptoms) > 0 {
			bump(scores, ConceptHealth, 0.3)
		}
	}

	return scores
}

// ExtractFilters converts entities into the structured retrieval filters
func ExtractFilters(e *models.ExtractedEntities) models.SearchFilters {
	f := models.SearchFilters{}
	if e == nil {
		return f
	}
	if e.Breed != nil && !e.IsGenericBreed() {
		f.Line = *e.Breed
		f.Species = speciesForLine(*e.Breed)
	} else if e.BreedType != nil {
		f.Species = "broiler"
	}
	if e.Sex != nil {
		f.Sex = string(*e.Sex)
	}
	if e.AgeDays != nil {
		age := *e.AgeDays
		f.AgeDays = &age
	}
	f.Metrics = append(f.Metrics, e.Metrics...)
	return f
}

// speciesForLine maps a commercial line to its species segment
func speciesForLine(line string) string {
	switch {
	case strings.HasPrefix(line, "ross"), strings.HasPrefix(line, "cobb"), strings.HasPrefix(line, "hubbard"):
		return "broiler"
	case strings.HasPrefix(line, "isa"), strings.HasPrefix(line, "lohmann"), strings.HasPrefix(line, "hyline"):
		return "layer"
	}
	return ""
}

func bump(scores map[string]float64, concept string, delta float64) {
	scores[concept] += delta
	if scores[concept] > 1 {
		scores[concept] = 1
	}
}

func maxScore(scores map[string]float64) float64 {
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	return max
}
