// Data structures for multi-step orchestration: the decomposition DAG, the
// per-step-type parameter structs and the aggregate result.

package models

import (
	"time"
)

// StepType is the closed set of node types in a decomposition DAG
type StepType string

const (
	StepBasePerformance     StepType = "base_performance"
	StepFlockCalcMortality  StepType = "flock_calculation_with_mortality"
	StepBaseScenario        StepType = "base_scenario"
	StepModifiedScenario    StepType = "modified_scenario"
	StepScenarioComparison  StepType = "scenario_comparison"
	StepMetricCalculation   StepType = "metric_calculation"
	StepAggregateResults    StepType = "aggregate_results"
	StepSingleOptimization  StepType = "single_optimization"
	StepMultiObjCompromise  StepType = "multi_objective_compromise"
)

// StepParams is the tagged union of per-step-type parameters
type StepParams interface {
	stepParams()
}

// PerformanceParams parameterizes base_performance, base_scenario,
// modified_scenario and metric_calculation steps.
type PerformanceParams struct {
	Species string
	Line    string
	Sex     string
	AgeDays int
	Metrics []string
	// Modifications apply on top of the base lookup for modified scenarios,
	// keyed by entity name ("age_days", "temperature_c", ...).
	Modifications map[string]float64
}

func (PerformanceParams) stepParams() {}

// FlockParams parameterizes flock_calculation_with_mortality
type FlockParams struct {
	FlockSize    int
	MortalityPct float64
}

func (FlockParams) stepParams() {}

// ComparisonParams parameterizes scenario_comparison
type ComparisonParams struct {
	Labels []string
}

func (ComparisonParams) stepParams() {}

// AggregateParams parameterizes aggregate_results and multi_objective_compromise
type AggregateParams struct {
	Objectives []string
}

func (AggregateParams) stepParams() {}

// OptimizationParams parameterizes single_optimization
type OptimizationParams struct {
	Objective string
	Line      string
	Sex       string
}

func (OptimizationParams) stepParams() {}

// QueryStep is one node of the decomposition DAG. Dependencies always reference
// strictly smaller step numbers, which keeps the graph acyclic by construction.
type QueryStep struct {
	Number      int        `json:"step_number"`
	Description string     `json:"description"`
	Type        StepType   `json:"step_type"`
	Params      StepParams `json:"-"`
	DependsOn   []int      `json:"dependencies,omitempty"`
}

// StepResult is the output of one executed step
type StepResult struct {
	StepNumber     int                    `json:"step_number"`
	Metrics        map[string]MetricValue `json:"metrics,omitempty"`
	Totals         map[string]float64     `json:"totals,omitempty"`
	SurvivingBirds float64                `json:"surviving_birds,omitempty"`
	Comparison     map[string]float64     `json:"comparison,omitempty"`
	Summary        string                 `json:"summary,omitempty"`
}

// OrchestrationResult aggregates a full DAG execution. Partial results are
// preserved on failure.
type OrchestrationResult struct {
	Success       bool                `json:"success"`
	StepsExecuted int                 `json:"steps_executed"`
	Results       map[int]*StepResult `json:"results"`
	FinalResult   *StepResult         `json:"final_result,omitempty"`
	ExecutionTime time.Duration       `json:"execution_time"`
	Error         string              `json:"error,omitempty"`
}

// Complexity classifies how a question should be executed
type Complexity string

const (
	ComplexitySimple      Complexity = "simple"
	ComplexityMultiMetric Complexity = "multi_metric"
	ComplexityComparative Complexity = "comparative"
	ComplexityConditional Complexity = "conditional"
	ComplexitySequential  Complexity = "sequential"
	ComplexityDiagnostic  Complexity = "diagnostic"
)

// SubQuery is one independent sub-question produced by a complexity decomposer
type SubQuery struct {
	Text     string `json:"text"`
	Intent   Intent `json:"intent"`
	Priority int    `json:"priority"`
	Label    string `json:"label,omitempty"`
}
