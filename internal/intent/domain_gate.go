package intent

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/plumeline/plumeline/internal/i18n"
	"github.com/plumeline/plumeline/models"
)

// GateConfig holds the domain gate threshold
type GateConfig struct {
	Threshold float64
}

// RejectionSink persists gate rejections for later auditing
type RejectionSink interface {
	RecordRejection(ctx context.Context, query, language string, confidence float64, reason string) error
}

// GateVerdict is the outcome of the domain gate
type GateVerdict struct {
	Accepted   bool
	Confidence float64
	Reason     string
}

// DomainGate rejects off-domain queries with a weighted keyword score.
// The threshold is read through a getter so config hot reload takes effect
// without restarting.
type DomainGate struct {
	threshold func() float64
	sink      RejectionSink
	log       *zap.Logger
}

// agriTerms is the per-language whitelist of poultry-domain vocabulary
var agriTerms = map[string][]string{
	"en": {
		"chicken", "chickens", "poultry", "broiler", "broilers", "layer", "layers",
		"hen", "hens", "flock", "hatchery", "brooding", "feed", "fcr", "vaccine",
		"coccidiosis", "litter", "barn", "weight", "mortality", "strain", "breed",
		"ross", "cobb", "hubbard", "lohmann", "eggs", "egg", "farm", "bird", "birds",
		"growout", "ventilation", "drinker", "feeder",
	},
	"fr": {
		"poulet", "poulets", "volaille", "volailles", "poule", "poules", "pondeuse",
		"pondeuses", "lot", "couvoir", "demarrage", "aliment", "indice", "vaccin",
		"coccidiose", "litiere", "batiment", "poids", "mortalite", "souche",
		"ross", "cobb", "hubbard", "lohmann", "oeuf", "oeufs", "elevage", "oiseau",
		"oiseaux", "ventilation", "abreuvoir", "mangeoire", "aviculture",
	},
}

// nonAgriTerms is the blacklist of clearly off-domain vocabulary
var nonAgriTerms = map[string][]string{
	"en": {
		"bitcoin", "crypto", "stock", "forex", "football", "soccer", "basketball",
		"makeup", "cosmetics", "perfume", "movie", "celebrity", "smartphone",
		"videogame", "lottery", "casino",
	},
	"fr": {
		"bitcoin", "crypto", "bourse", "forex", "football", "basket", "maquillage",
		"cosmetique", "parfum", "film", "celebrite", "smartphone", "jeu video",
		"loterie", "casino",
	},
}

var nonWordRe = regexp.MustCompile(`[^a-z0-9\s]+`)

var diacriticReplacer = strings.NewReplacer(
	"à", "a", "â", "a", "ä", "a", "é", "e", "è", "e", "ê", "e", "ë", "e",
	"î", "i", "ï", "i", "ô", "o", "ö", "o", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "œ", "oe",
)

// NewDomainGate creates the gate; sink may be nil
func NewDomainGate(cfg GateConfig, sink RejectionSink, log *zap.Logger) *DomainGate {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = 15
	}
	return &DomainGate{
		threshold: func() float64 { return threshold },
		sink:      sink,
		log:       log,
	}
}

// SetThresholdFunc replaces the threshold getter, used for config hot reload
func (g *DomainGate) SetThresholdFunc(fn func() float64) {
	if fn != nil {
		g.threshold = fn
	}
}

// Evaluate scores the query against the domain vocabulary and decides
func (g *DomainGate) Evaluate(ctx context.Context, query, language string) GateVerdict {
	normalized := normalize(query)
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return g.reject(ctx, query, language, 0, "empty_query")
	}

	agriHits := countHits(normalized, termsFor(agriTerms, language))
	nonAgriHits := countHits(normalized, termsFor(nonAgriTerms, language))

	agriRatio := float64(agriHits) / float64(len(words))
	confidence := min2(100, agriRatio*100+float64(agriHits)*15) - min2(75, float64(nonAgriHits)*25)

	switch {
	case nonAgriHits > 0 && agriHits == 0:
		return g.reject(ctx, query, language, confidence, "non_agricultural")
	case agriHits > 0:
		return GateVerdict{Accepted: true, Confidence: confidence}
	case confidence >= g.threshold():
		return GateVerdict{Accepted: true, Confidence: confidence}
	}
	return g.reject(ctx, query, language, confidence, "non_agricultural")
}

func (g *DomainGate) reject(ctx context.Context, query, language string, confidence float64, reason string) GateVerdict {
	if g.log != nil {
		g.log.Warn("domain gate rejection",
			zap.String("query", query),
			zap.String("language", language),
			zap.Float64("confidence", confidence),
			zap.String("reason", reason))
	}
	if g.sink != nil {
		if err := g.sink.RecordRejection(ctx, query, language, confidence, reason); err != nil && g.log != nil {
			g.log.Warn("failed to persist rejection", zap.Error(err))
		}
	}
	return GateVerdict{Accepted: false, Confidence: confidence, Reason: reason}
}

// Rejection builds the localized user-facing rejection record
func (g *DomainGate) Rejection(v GateVerdict, language string) *models.DomainRejection {
	return &models.DomainRejection{
		Reason:     v.Reason,
		Confidence: v.Confidence,
		Message:    i18n.T(language, i18n.RejectNonAgricultural),
	}
}

// termsFor returns the vocabulary for a language, merged with English so
// anglicisms in non-English queries still count.
func termsFor(table map[string][]string, language string) []string {
	if language == "en" {
		return table["en"]
	}
	terms, ok := table[language]
	if !ok {
		return table["en"]
	}
	return append(terms, table["en"]...)
}

func countHits(normalized string, terms []string) int {
	hits := 0
	padded := " " + normalized + " "
	for _, term := range terms {
		if strings.Contains(padded, " "+term+" ") {
			hits++
		}
	}
	return hits
}

// normalize lowercases, strips diacritics and non-word characters
func normalize(s string) string {
	s = strings.ToLower(s)
	s = diacriticReplacer.Replace(s)
	s = nonWordRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
