// Package i18n holds the per-language catalogs for every user-visible string:
// clarification templates, warnings, rejection reasons and disclaimers.
// Internal error messages never reach the user verbatim.
package i18n

import "fmt"

// Message ids shared across components
const (
	ClarifyBreed     = "clarify.breed"
	ClarifyAge       = "clarify.age"
	ClarifySex       = "clarify.sex"
	ClarifyHousing   = "clarify.housing"
	ClarifyFlockSize = "clarify.flock_size"
	ClarifySymptoms  = "clarify.symptoms"
	ClarifyCatalog   = "clarify.catalog"

	WarnMissingBreed = "warn.missing.breed"
	WarnMissingAge   = "warn.missing.age"
	WarnMissingSex   = "warn.missing.sex"
	WarnCoherence    = "warn.coherence"

	RejectNonAgricultural = "reject.non_agricultural"
	AnswerApology         = "answer.apology"
)

var catalogs = map[string]map[string]string{
	"en": {
		ClarifyBreed:     "Which breed or strain are you raising (for example Ross 308, Cobb 500)?",
		ClarifyAge:       "How old are the birds, in days?",
		ClarifySex:       "Are the birds male, female or mixed (as hatched)?",
		ClarifyHousing:   "What housing system are they in (floor, cage, free range)?",
		ClarifyFlockSize: "How many birds are in the flock?",
		ClarifySymptoms:  "What symptoms are you observing, and since when?",
		ClarifyCatalog:   "I can look up performance data for: %s. Which line does your question concern?",

		WarnMissingBreed: "No specific strain was given; figures shown are typical values and may not match your birds.",
		WarnMissingAge:   "No age was given; the answer assumes a standard growout timeline.",
		WarnMissingSex:   "Sex was not specified; mixed (as hatched) figures were used.",
		WarnCoherence:    "The answer may not fully match your question (%s); please verify the details.",

		RejectNonAgricultural: "This assistant only answers poultry production questions.",
		AnswerApology:         "I could not retrieve reliable data for this question. Could you rephrase it or add details about the breed and age?",
	},
	"fr": {
		ClarifyBreed:     "Quelle souche élevez-vous (par exemple Ross 308, Cobb 500) ?",
		ClarifyAge:       "Quel est l'âge des oiseaux, en jours ?",
		ClarifySex:       "S'agit-il de mâles, de femelles ou d'un élevage mixte (non sexé) ?",
		ClarifyHousing:   "Quel est le type de logement (au sol, en cage, plein air) ?",
		ClarifyFlockSize: "Combien d'oiseaux compte le lot ?",
		ClarifySymptoms:  "Quels symptômes observez-vous, et depuis quand ?",
		ClarifyCatalog:   "Je peux consulter les données de performance pour : %s. Quelle souche concerne votre question ?",

		WarnMissingBreed: "Aucune souche précise n'a été indiquée ; les chiffres présentés sont des valeurs typiques.",
		WarnMissingAge:   "Aucun âge n'a été indiqué ; la réponse suppose une durée d'élevage standard.",
		WarnMissingSex:   "Le sexe n'a pas été précisé ; les valeurs mixtes (non sexé) ont été utilisées.",
		WarnCoherence:    "La réponse peut ne pas correspondre exactement à votre question (%s) ; vérifiez les détails.",

		RejectNonAgricultural: "Cet assistant répond uniquement aux questions d'élevage avicole.",
		AnswerApology:         "Je n'ai pas pu trouver de données fiables pour cette question. Pouvez-vous la reformuler ou préciser la souche et l'âge ?",
	},
}

// T resolves a message id in the given language, falling back to English.
// Unknown ids return the id itself so missing catalog entries are visible.
func T(lang, id string, args ...any) string {
	cat, ok := catalogs[lang]
	if !ok {
		cat = catalogs["en"]
	}
	msg, ok := cat[id]
	if !ok {
		msg, ok = catalogs["en"][id]
		if !ok {
			return id
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// Supported reports whether a language has its own catalog
func Supported(lang string) bool {
	_, ok := catalogs[lang]
	return ok
}

// ClarifyIDForField maps a missing entity field to its clarification template
func ClarifyIDForField(field string) string {
	switch field {
	case "breed":
		return ClarifyBreed
	case "age":
		return ClarifyAge
	case "sex":
		return ClarifySex
	case "housing":
		return ClarifyHousing
	case "flock_size":
		return ClarifyFlockSize
	case "symptoms":
		return ClarifySymptoms
	}
	return ClarifyBreed
}

// WarnIDForField maps a missing entity field to its warning template
func WarnIDForField(field string) (string, bool) {
	switch field {
	case "breed":
		return WarnMissingBreed, true
	case "age":
		return WarnMissingAge, true
	case "sex":
		return WarnMissingSex, true
	}
	return "", false
}
