// Data structures for synthesized answers and the public ask outcome.

package models

import "time"

// Coherence is the post-hoc verdict of answer vs. question consistency
type Coherence string

const (
	CoherenceGood    Coherence = "good"
	CoherencePartial Coherence = "partial"
	CoherencePoor    Coherence = "poor"
	CoherenceUnknown Coherence = "unknown"
)

// SynthesizedAnswer is the final answer returned to the API layer
type SynthesizedAnswer struct {
	Text                   string     `json:"text"`
	Confidence             float64    `json:"confidence"`
	Sources                []string   `json:"sources,omitempty"`
	Coherence              Coherence  `json:"coherence"`
	Warnings               []string   `json:"warnings,omitempty"`
	OptionalClarifications []string   `json:"optional_clarifications,omitempty"`
	Route                  QueryRoute `json:"route,omitempty"`
	Complexity             Complexity `json:"complexity,omitempty"`
	GeneratedAt            time.Time  `json:"generated_at"`
}

// AskOutcomeType tags the union returned by the ask operation
type AskOutcomeType string

const (
	OutcomeAnswer        AskOutcomeType = "answer"
	OutcomeClarification AskOutcomeType = "clarification"
	OutcomeRejection     AskOutcomeType = "rejection"
)

// AskResult is the union of the three possible ask outcomes
type AskResult struct {
	Type          AskOutcomeType        `json:"type"`
	Answer        *SynthesizedAnswer    `json:"answer,omitempty"`
	Clarification *ClarificationRequest `json:"clarification,omitempty"`
	Rejection     *DomainRejection      `json:"rejection,omitempty"`
}

// ComponentStatus is one entry of the health report
type ComponentStatus string

const (
	StatusOK       ComponentStatus = "ok"
	StatusDegraded ComponentStatus = "degraded"
	StatusDown     ComponentStatus = "down"
)

// HealthReport maps component name to its current status
type HealthReport struct {
	Components map[string]ComponentStatus `json:"components"`
}

// ExpansionReport summarizes a proactive knowledge expansion run
type ExpansionReport struct {
	DocumentsIngested int `json:"documents_ingested"`
	SourcesSucceeded  int `json:"sources_succeeded"`
}
