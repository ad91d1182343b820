// Data structures for user queries: language, conversation context, extracted
// entities and parsed intent. The typed entity record is what drives routing,
// clarification and the performance-store filters downstream.

package models

import (
	"time"
)

// Intent represents the classified intent of a poultry question
type Intent string

const (
	IntentMetricQuery        Intent = "metric_query"
	IntentEnvironmentSetting Intent = "environment_setting"
	IntentProtocolQuery      Intent = "protocol_query"
	IntentDiagnosisTriage    Intent = "diagnosis_triage"
	IntentEconomicsCost      Intent = "economics_cost"
	IntentGeneralPoultry     Intent = "general_poultry"
)

// QueryRoute is the retrieval route chosen for a query
type QueryRoute string

const (
	RoutePerfStore QueryRoute = "perf_store"
	RouteVector    QueryRoute = "vector"
	RouteHybrid    QueryRoute = "hybrid"
	RouteClarify   QueryRoute = "clarify"
)

// BreedType distinguishes a named strain from a bare species term
type BreedType string

const (
	BreedTypeSpecific BreedType = "specific"
	BreedTypeGeneric  BreedType = "generic"
)

// Sex of the birds referenced by the query
type Sex string

const (
	SexMale      Sex = "male"
	SexFemale    Sex = "female"
	SexMixed     Sex = "mixed"
	SexAsHatched Sex = "as_hatched"
)

// ConversationTurn is one prior (question, answer) pair
type ConversationTurn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

// Query represents a user question with conversational context
type Query struct {
	ID             string             `json:"id"`
	Text           string             `json:"text"`
	Language       string             `json:"language"`
	ConversationID string             `json:"conversation_id,omitempty"`
	TenantID       string             `json:"tenant_id,omitempty"`
	History        []ConversationTurn `json:"history,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// ExtractedEntities is the typed record produced by the intent extractor.
// Optional fields are pointers; absence means the user never said it.
// Confidence carries a [0,1] score per populated field, keyed by field name.
type ExtractedEntities struct {
	Breed            *string    `json:"breed,omitempty"`
	BreedType        *BreedType `json:"breed_type,omitempty"`
	Sex              *Sex       `json:"sex,omitempty"`
	AgeDays          *int       `json:"age_days,omitempty"`
	FlockSize        *int       `json:"flock_size,omitempty"`
	TemperatureC     *float64   `json:"temperature_c,omitempty"`
	DensityPerM2     *float64   `json:"density_per_m2,omitempty"`
	TargetWeightG    *float64   `json:"target_weight_g,omitempty"`
	FCR              *float64   `json:"fcr,omitempty"`
	MortalityPct     *float64   `json:"mortality_pct,omitempty"`
	Symptoms         []string   `json:"symptoms,omitempty"`
	HousingType      *string    `json:"housing_type,omitempty"`
	FeedBase         *string    `json:"feed_base,omitempty"`
	AntibioticRegime *string    `json:"antibiotic_regime,omitempty"`
	Metrics          []string   `json:"metrics,omitempty"`

	Confidence map[string]float64 `json:"confidence,omitempty"`
}

// SetConfidence records the confidence for a named field
func (e *ExtractedEntities) SetConfidence(field string, score float64) {
	if e.Confidence == nil {
		e.Confidence = make(map[string]float64)
	}
	e.Confidence[field] = score
}

// FieldConfidence returns the recorded confidence for a field, zero if unset
func (e *ExtractedEntities) FieldConfidence(field string) float64 {
	return e.Confidence[field]
}

// IsGenericBreed reports whether the user said "chicken/poultry" without a strain
func (e *ExtractedEntities) IsGenericBreed() bool {
	return e.BreedType != nil && *e.BreedType == BreedTypeGeneric
}

// Count returns the number of populated entity fields
func (e *ExtractedEntities) Count() int {
	n := 0
	if e.Breed != nil {
		n++
	}
	if e.Sex != nil {
		n++
	}
	if e.AgeDays != nil {
		n++
	}
	if e.FlockSize != nil {
		n++
	}
	if e.TemperatureC != nil {
		n++
	}
	if e.DensityPerM2 != nil {
		n++
	}
	if e.TargetWeightG != nil {
		n++
	}
	if e.FCR != nil {
		n++
	}
	if e.MortalityPct != nil {
		n++
	}
	if len(e.Symptoms) > 0 {
		n++
	}
	if e.HousingType != nil {
		n++
	}
	if e.FeedBase != nil {
		n++
	}
	if e.AntibioticRegime != nil {
		n++
	}
	if len(e.Metrics) > 0 {
		n++
	}
	return n
}

// MissingCriticalFields lists the critical fields a metric query still needs
func (e *ExtractedEntities) MissingCriticalFields() []string {
	var missing []string
	if e.Breed == nil || e.IsGenericBreed() {
		missing = append(missing, "breed")
	}
	if e.AgeDays == nil {
		missing = append(missing, "age")
	}
	if e.Sex == nil {
		missing = append(missing, "sex")
	}
	return missing
}

// SearchFilters are the structured filters derived from entities for retrieval
type SearchFilters struct {
	Species string   `json:"species,omitempty"`
	Line    string   `json:"line,omitempty"`
	Sex     string   `json:"sex,omitempty"`
	AgeDays *int     `json:"age_days,omitempty"`
	Metrics []string `json:"metrics,omitempty"`
}

// ClarificationRequest is an ordered list of clarifying questions, localized
type ClarificationRequest struct {
	Questions     []string `json:"questions"`
	MissingFields []string `json:"missing_fields"`
	Language      string   `json:"language"`
}

// DomainRejection is returned when the domain gate refuses a query
type DomainRejection struct {
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}
