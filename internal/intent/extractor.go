// Package intent performs entity extraction, intent classification,
// clarification and domain gating over raw poultry questions.
package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/plumeline/plumeline/internal/llm"
	"github.com/plumeline/plumeline/models"
)

// criticalConfidence is the tier-1 confidence under which the extractor
// consults the completion provider for a second opinion.
const criticalConfidence = 0.6

// breedAliases maps every known alias to its normalized strain identifier
var breedAliases = map[string]string{
	"ross 308":        "ross_308",
	"ross308":         "ross_308",
	"ross-308":        "ross_308",
	"ross 708":        "ross_708",
	"cobb 500":        "cobb_500",
	"cobb500":         "cobb_500",
	"cobb 700":        "cobb_700",
	"hubbard flex":    "hubbard_flex",
	"hubbard classic": "hubbard_classic",
	"hubbard ja87":    "hubbard_ja87",
	"isa brown":       "isa_brown",
	"lohmann brown":   "lohmann_brown",
	"lohmann lsl":     "lohmann_lsl",
	"hy-line brown":   "hyline_brown",
	"hyline brown":    "hyline_brown",
}

// genericBreedTerms are bare species words with no strain information
var genericBreedTerms = []string{
	"poulets de chair", "poulet de chair", "poulets", "poulet",
	"chickens", "chicken", "poultry", "volailles", "volaille",
	"broilers", "broiler", "birds", "bird", "oiseaux", "poules", "poule",
	"hens", "hen", "pondeuses", "pondeuse", "layers", "layer",
}

// sexTerms is ordered: longer and more specific terms first, because "female"
// contains "male" and the first match wins.
var sexTerms = []struct {
	term string
	sex  models.Sex
}{
	{"as hatched", models.SexAsHatched},
	{"as-hatched", models.SexAsHatched},
	{"straight run", models.SexAsHatched},
	{"non sexés", models.SexAsHatched},
	{"non sexé", models.SexAsHatched},
	{"femelles", models.SexFemale},
	{"femelle", models.SexFemale},
	{"females", models.SexFemale},
	{"female", models.SexFemale},
	{"mixte", models.SexMixed},
	{"mixed", models.SexMixed},
	{"mâles", models.SexMale},
	{"mâle", models.SexMale},
	{"males", models.SexMale},
	{"male", models.SexMale},
	{"coqs", models.SexMale},
}

var feedBaseTerms = map[string]string{
	"corn": "corn", "maïs": "corn", "mais": "corn",
	"wheat": "wheat", "blé": "wheat", "ble": "wheat",
	"soy": "soy", "soja": "soy", "sorghum": "sorghum", "sorgho": "sorghum",
}

var housingTerms = map[string]string{
	"floor": "floor", "au sol": "floor", "sol": "floor",
	"cage": "cage", "cages": "cage",
	"free range": "free_range", "plein air": "free_range",
	"tunnel": "tunnel", "aviary": "aviary", "volière": "aviary",
}

var symptomTerms = []string{
	"diarrhea", "diarrhée", "lameness", "boiterie", "boitent",
	"coughing", "toux", "sneezing", "éternuements", "picage",
	"feather pecking", "prostration", "ne grossissent pas",
	"ne mangent pas", "not eating", "not growing", "huddling",
	"pasty vent", "mortalité élevée", "high mortality",
}

var metricTerms = map[string][]string{
	"weight":       {"weight", "poids", "body weight", "poids vif", "grams", "grammes"},
	"feed_intake":  {"feed", "aliment", "feed intake", "consommation d'aliment", "cumulative feed"},
	"fcr":          {"fcr", "feed conversion", "indice de consommation", "conversion alimentaire"},
	"water_intake": {"water", "eau", "water intake", "consommation d'eau"},
	"gain":         {"gain", "daily gain", "gmq", "adg"},
	"mortality":    {"mortality", "mortalité", "livability", "viabilité"},
}

// lineNumbers are the numeric parts of commercial line names; they are never
// read as a flock size.
var lineNumbers = map[int]bool{308: true, 500: true, 700: true, 708: true}

var (
	ageDaysRe     = regexp.MustCompile(`(?i)(\d+)\s*(?:days?|jours?|j\b|d\b)`)
	ageWeeksRe    = regexp.MustCompile(`(?i)(\d+)\s*(?:weeks?|semaines?|sem\b|wk\b)`)
	weightRe      = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(kg|g)\b`)
	percentRe     = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
	temperatureRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*°?\s*c\b`)
	densityRe     = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:birds?|sujets)?\s*/\s*m[²2]`)
	fcrRe         = regexp.MustCompile(`(?i)(?:fcr|indice de consommation|ic)\s*(?:of|de|:)?\s*(\d+(?:[.,]\d+)?)`)
	flockRe       = regexp.MustCompile(`\b(\d{3,7})\b`)
	mortalityCue  = regexp.MustCompile(`(?i)mortalit|losses|pertes`)
)

// Extractor is the two-tier entity extractor. Tier 1 is deterministic pattern
// matching; tier 2 consults the completion provider only when a critical field
// stayed below the confidence floor.
type Extractor struct {
	llm *llm.Manager
	log *zap.Logger
}

// NewExtractor creates an extractor; llm may be nil for a provider-free setup
func NewExtractor(manager *llm.Manager, log *zap.Logger) *Extractor {
	return &Extractor{llm: manager, log: log}
}

// Extract produces the intent and typed entities for a query. Fields named in
// the current query always override those inherited from history.
func (ex *Extractor) Extract(ctx context.Context, q *models.Query) (models.Intent, *models.ExtractedEntities) {
	entities := extractTier1(q.Text)

	// Inherit from the most recent turn, at reduced confidence
	if len(q.History) > 0 {
		prior := extractTier1(q.History[len(q.History)-1].Question)
		mergeInherited(entities, prior)
	}

	intent := classifyIntent(q.Text, entities)

	if ex.llm != nil && needsTier2(intent, entities) {
		if refined, err := ex.extractTier2(ctx, q, entities); err == nil {
			mergeRefined(entities, refined)
		} else if ex.log != nil {
			ex.log.Debug("tier-2 extraction skipped", zap.Error(err))
		}
		intent = classifyIntent(q.Text, entities)
	}

	return intent, entities
}

// extractTier1 runs the deterministic dictionary and regex pass
func extractTier1(text string) *models.ExtractedEntities {
	e := &models.ExtractedEntities{}
	lower := strings.ToLower(text)

	// Breed: named strains first, bare species terms otherwise
	for alias, norm := range breedAliases {
		if strings.Contains(lower, alias) {
			breed, bt := norm, models.BreedTypeSpecific
			e.Breed = &breed
			e.BreedType = &bt
			e.SetConfidence("breed", 0.95)
			break
		}
	}
	if e.Breed == nil {
		for _, term := range genericBreedTerms {
			if strings.Contains(lower, term) {
				bt := models.BreedTypeGeneric
				e.BreedType = &bt
				e.SetConfidence("breed_type", 0.9)
				break
			}
		}
	}

	for _, st := range sexTerms {
		if strings.Contains(lower, st.term) {
			s := st.sex
			e.Sex = &s
			e.SetConfidence("sex", 0.9)
			break
		}
	}

	if m := ageDaysRe.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			e.AgeDays = &v
			e.SetConfidence("age", 0.9)
		}
	} else if m := ageWeeksRe.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			days := v * 7
			e.AgeDays = &days
			e.SetConfidence("age", 0.85)
		}
	}

	if m := weightRe.FindStringSubmatch(lower); m != nil {
		if v, err := parseDecimal(m[1]); err == nil {
			if strings.EqualFold(m[2], "kg") {
				v *= 1000
			}
			e.TargetWeightG = &v
			e.SetConfidence("target_weight", 0.85)
		}
	}

	if mortalityCue.MatchString(lower) {
		if m := percentRe.FindStringSubmatch(lower); m != nil {
			if v, err := parseDecimal(m[1]); err == nil {
				e.MortalityPct = &v
				e.SetConfidence("mortality", 0.9)
			}
		}
	}

	if m := temperatureRe.FindStringSubmatch(lower); m != nil {
		if v, err := parseDecimal(m[1]); err == nil && v < 60 {
			e.TemperatureC = &v
			e.SetConfidence("temperature", 0.8)
		}
	}

	if m := densityRe.FindStringSubmatch(lower); m != nil {
		if v, err := parseDecimal(m[1]); err == nil {
			e.DensityPerM2 = &v
			e.SetConfidence("density", 0.85)
		}
	}

	if m := fcrRe.FindStringSubmatch(lower); m != nil {
		if v, err := parseDecimal(m[1]); err == nil && v < 10 {
			e.FCR = &v
			e.SetConfidence("fcr", 0.85)
		}
	}

	// Flock size: a large standalone number that was not already consumed as
	// a line number, weight or percentage.
	for _, m := range flockRe.FindAllString(lower, -1) {
		v, err := strconv.Atoi(m)
		if err != nil || v < 200 || lineNumbers[v] {
			continue
		}
		if e.TargetWeightG != nil && float64(v) == *e.TargetWeightG {
			continue
		}
		e.FlockSize = &v
		e.SetConfidence("flock_size", 0.8)
		break
	}

	for _, term := range symptomTerms {
		if strings.Contains(lower, term) {
			e.Symptoms = append(e.Symptoms, term)
		}
	}
	if len(e.Symptoms) > 0 {
		e.SetConfidence("symptoms", 0.85)
	}

	for term, base := range feedBaseTerms {
		if strings.Contains(lower, term) {
			b := base
			e.FeedBase = &b
			e.SetConfidence("feed_base", 0.8)
			break
		}
	}

	for term, housing := range housingTerms {
		if strings.Contains(lower, term) {
			h := housing
			e.HousingType = &h
			e.SetConfidence("housing", 0.8)
			break
		}
	}

	for metric, terms := range metricTerms {
		for _, term := range terms {
			if strings.Contains(lower, term) {
				e.Metrics = appendUnique(e.Metrics, metric)
				break
			}
		}
	}

	return e
}

// classifyIntent scores the query against per-intent keyword lists
func classifyIntent(text string, e *models.ExtractedEntities) models.Intent {
	lower := strings.ToLower(text)

	scores := map[models.Intent]int{}
	score := func(intent models.Intent, keywords ...string) {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				scores[intent]++
			}
		}
	}

	score(models.IntentMetricQuery, "weight", "poids", "fcr", "gain", "target", "objectif",
		"performance", "combien", "how much", "consommation", "intake", "standard")
	score(models.IntentEnvironmentSetting, "temperature", "température", "ventilation",
		"lighting", "lumière", "humidity", "humidité", "density", "densité", "brooding", "démarrage")
	score(models.IntentProtocolQuery, "vaccin", "vaccine", "protocol", "protocole",
		"program", "programme", "biosecurity", "biosécurité", "treatment", "traitement", "antibiotic", "antibiotique")
	score(models.IntentDiagnosisTriage, "symptom", "symptôme", "disease", "maladie",
		"sick", "malade", "why", "pourquoi", "cause", "diagnos")
	score(models.IntentEconomicsCost, "cost", "coût", "price", "prix", "margin", "marge",
		"profit", "rentab", "economic", "économique")

	if len(e.Symptoms) > 0 {
		scores[models.IntentDiagnosisTriage] += 2
	}
	if len(e.Metrics) > 0 {
		scores[models.IntentMetricQuery]++
	}
	if e.TemperatureC != nil || e.DensityPerM2 != nil {
		scores[models.IntentEnvironmentSetting]++
	}

	best, bestScore := models.IntentGeneralPoultry, 0
	for intent, s := range scores {
		if s > bestScore {
			best, bestScore = intent, s
		}
	}
	return best
}

// needsTier2 reports whether a critical field is missing or weakly extracted
func needsTier2(intent models.Intent, e *models.ExtractedEntities) bool {
	if intent != models.IntentMetricQuery && intent != models.IntentDiagnosisTriage {
		return false
	}
	if e.Breed == nil && !e.IsGenericBreed() {
		return true
	}
	return e.FieldConfidence("breed") < criticalConfidence && e.FieldConfidence("age") < criticalConfidence
}

// tier2Response is the strict JSON schema requested from the provider
type tier2Response struct {
	Breed        string   `json:"breed"`
	Sex          string   `json:"sex"`
	AgeDays      int      `json:"age_days"`
	FlockSize    int      `json:"flock_size"`
	MortalityPct float64  `json:"mortality_pct"`
	Symptoms     []string `json:"symptoms"`
	Confidence   float64  `json:"confidence"`
}

func (ex *Extractor) extractTier2(ctx context.Context, q *models.Query, current *models.ExtractedEntities) (*tier2Response, error) {
	prompt := `Extract poultry husbandry entities from the question below.
Respond with a single JSON object and nothing else:
{"breed": "<normalized strain id like ross_308, or empty>",
 "sex": "<male|female|mixed|as_hatched or empty>",
 "age_days": <int, 0 if absent>,
 "flock_size": <int, 0 if absent>,
 "mortality_pct": <float, 0 if absent>,
 "symptoms": [<strings>],
 "confidence": <float 0..1>}

Question (` + q.Language + `): ` + q.Text

	resp, err := ex.llm.Generate(ctx, &llm.GenerationRequest{
		SystemPrompt: "You extract structured data. Output strict JSON only.",
		Prompt:       prompt,
		Temperature:  0.0,
	})
	if err != nil {
		return nil, err
	}

	var out tier2Response
	if err := llm.DecodeJSON(resp.Text, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// mergeInherited copies fields from a prior turn that the current query left
// unset. Inherited fields carry half their original confidence.
func mergeInherited(dst, prior *models.ExtractedEntities) {
	if dst.Breed == nil && prior.Breed != nil {
		dst.Breed = prior.Breed
		dst.BreedType = prior.BreedType
		dst.SetConfidence("breed", prior.FieldConfidence("breed")*0.5)
	}
	if dst.Sex == nil && prior.Sex != nil {
		dst.Sex = prior.Sex
		dst.SetConfidence("sex", prior.FieldConfidence("sex")*0.5)
	}
	if dst.AgeDays == nil && prior.AgeDays != nil {
		dst.AgeDays = prior.AgeDays
		dst.SetConfidence("age", prior.FieldConfidence("age")*0.5)
	}
	if dst.FlockSize == nil && prior.FlockSize != nil {
		dst.FlockSize = prior.FlockSize
		dst.SetConfidence("flock_size", prior.FieldConfidence("flock_size")*0.5)
	}
}

// mergeRefined merges a tier-2 result without overriding confident tier-1 fields
func mergeRefined(dst *models.ExtractedEntities, r *tier2Response) {
	conf := r.Confidence
	if conf <= 0 || conf > 1 {
		conf = 0.7
	}
	if r.Breed != "" && dst.FieldConfidence("breed") < criticalConfidence {
		breed := r.Breed
		bt := models.BreedTypeGeneric
		if _, known := knownStrain(breed); known {
			bt = models.BreedTypeSpecific
		}
		dst.Breed = &breed
		dst.BreedType = &bt
		dst.SetConfidence("breed", conf)
	}
	if r.Sex != "" && dst.Sex == nil {
		s := models.Sex(r.Sex)
		dst.Sex = &s
		dst.SetConfidence("sex", conf)
	}
	if r.AgeDays > 0 && dst.AgeDays == nil {
		age := r.AgeDays
		dst.AgeDays = &age
		dst.SetConfidence("age", conf)
	}
	if r.FlockSize > 0 && dst.FlockSize == nil {
		fs := r.FlockSize
		dst.FlockSize = &fs
		dst.SetConfidence("flock_size", conf)
	}
	if r.MortalityPct > 0 && dst.MortalityPct == nil {
		m := r.MortalityPct
		dst.MortalityPct = &m
		dst.SetConfidence("mortality", conf)
	}
	for _, s := range r.Symptoms {
		dst.Symptoms = appendUnique(dst.Symptoms, s)
	}
}

// knownStrain reports whether an identifier names a known commercial line
func knownStrain(id string) (string, bool) {
	for _, norm := range breedAliases {
		if norm == id {
			return norm, true
		}
	}
	return "", false
}

func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
