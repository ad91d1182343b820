// Package orchestrator plans and executes multi-step calculation plans whose
// later steps consume the outputs of earlier ones.
package orchestrator

import (
	"fmt"
	"strings"

	"github.com/plumeline/plumeline/models"
)

// Plan template names
const (
	PlanMortalityAdjusted = "mortality_adjusted"
	PlanScenario          = "scenario"
	PlanAggregation       = "aggregation"
	PlanMultiObjective    = "multi_objective_optimization"
	PlanDefault           = "default"
)

// SelectPlan picks the decomposition template for a question. Dependency-free
// questions never reach the orchestrator, so the default template is a single
// lookup used only as a safety net.
func SelectPlan(query string, e *models.ExtractedEntities) string {
	lower := strings.ToLower(query)

	switch {
	case e != nil && e.FlockSize != nil && (e.MortalityPct != nil || containsAny(lower, "mortality", "mortalité")):
		return PlanMortalityAdjusted
	case containsAny(lower, "if ", "si ", "scenario", "scénario", "instead", "au lieu"):
		return PlanScenario
	case containsAny(lower, "optimal", "optimize", "optimiser", "best compromise", "meilleur compromis"):
		return PlanMultiObjective
	case e != nil && len(e.Metrics) > 1:
		return PlanAggregation
	}
	return PlanDefault
}

// Decompose expands a plan template into concrete steps. Step numbers start
// at 1 and dependencies always point backwards.
func Decompose(plan string, e *models.ExtractedEntities) ([]models.QueryStep, error) {
	base := performanceParams(e)

	switch plan {
	case PlanMortalityAdjusted:
		flock := models.FlockParams{}
		if e != nil && e.FlockSize != nil {
			flock.FlockSize = *e.FlockSize
		}
		if e != nil && e.MortalityPct != nil {
			flock.MortalityPct = *e.MortalityPct
		}
		return []models.QueryStep{
			{Number: 1, Type: models.StepBasePerformance, Description: "look up per-bird performance", Params: base},
			{Number: 2, Type: models.StepFlockCalcMortality, Description: "scale to the surviving flock", Params: flock, DependsOn: []int{1}},
		}, nil

	case PlanScenario:
		modified := base
		modified.Modifications = scenarioModifications(e)
		return []models.QueryStep{
			{Number: 1, Type: models.StepBaseScenario, Description: "current scenario", Params: base},
			{Number: 2, Type: models.StepModifiedScenario, Description: "modified scenario", Params: modified},
			{Number: 3, Type: models.StepScenarioComparison, Description: "compare the scenarios",
				Params: models.ComparisonParams{Labels: []string{"current", "modified"}}, DependsOn: []int{1, 2}},
		}, nil

	case PlanAggregation:
		if e == nil || len(e.Metrics) < 2 {
			return nil, fmt.Errorf("aggregation plan needs at least two metrics")
		}
		var steps []models.QueryStep
		var deps []int
		for i, metric := range e.Metrics {
			p := base
			p.Metrics = []string{metric}
			steps = append(steps, models.QueryStep{
				Number:      i + 1,
				Type:        models.StepMetricCalculation,
				Description: "look up " + metric,
				Params:      p,
			})
			deps = append(deps, i+1)
		}
		steps = append(steps, models.QueryStep{
			Number:      len(deps) + 1,
			Type:        models.StepAggregateResults,
			Description: "aggregate the metrics",
			Params:      models.AggregateParams{Objectives: e.Metrics},
			DependsOn:   deps,
		})
		return steps, nil

	case PlanMultiObjective:
		objectives := []string{"body weight", "feed conversion ratio"}
		if e != nil && len(e.Metrics) > 1 {
			objectives = e.Metrics
		}
		var steps []models.QueryStep
		var deps []int
		for i, objective := range objectives {
			steps = append(steps, models.QueryStep{
				Number:      i + 1,
				Type:        models.StepSingleOptimization,
				Description: "optimize " + objective,
				Params:      models.OptimizationParams{Objective: objective, Line: base.Line, Sex: base.Sex},
			})
			deps = append(deps, i+1)
		}
		steps = append(steps, models.QueryStep{
			Number:      len(deps) + 1,
			Type:        models.StepMultiObjCompromise,
			Description: "find the compromise",
			Params:      models.AggregateParams{Objectives: objectives},
			DependsOn:   deps,
		})
		return steps, nil

	case PlanDefault:
		return []models.QueryStep{
			{Number: 1, Type: models.StepBasePerformance, Description: "look up performance", Params: base},
		}, nil
	}
	return nil, fmt.Errorf("unknown plan %q", plan)
}

func performanceParams(e *models.ExtractedEntities) models.PerformanceParams {
	p := models.PerformanceParams{}
	if e == nil {
		return p
	}
	if e.Breed != nil && !e.IsGenericBreed() {
		p.Line = *e.Breed
	}
	if e.Sex != nil {
		p.Sex = string(*e.Sex)
	}
	if e.AgeDays != nil {
		p.AgeDays = *e.AgeDays
	}
	p.Metrics = append(p.Metrics, e.Metrics...)
	return p
}

// scenarioModifications collects the entity values a "what if" question varies
func scenarioModifications(e *models.ExtractedEntities) map[string]float64 {
	mods := make(map[string]float64)
	if e == nil {
		return mods
	}
	if e.TemperatureC != nil {
		mods["temperature_c"] = *e.TemperatureC
	}
	if e.DensityPerM2 != nil {
		mods["density_per_m2"] = *e.DensityPerM2
	}
	if e.TargetWeightG != nil {
		mods["target_weight_g"] = *e.TargetWeightG
	}
	return mods
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
