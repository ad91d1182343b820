package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plumeline/plumeline/models"
)

// PerfLookup is the performance-store dependency of the executor
type PerfLookup interface {
	Lookup(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error)
}

// Executor runs decomposition plans strictly serially in step order, so every
// step can read the results of all steps before it.
type Executor struct {
	perf PerfLookup
	log  *zap.Logger
}

// NewExecutor wires the executor
func NewExecutor(perf PerfLookup, log *zap.Logger) *Executor {
	return &Executor{perf: perf, log: log}
}

// Execute runs the steps in ascending number order. A step whose dependency
// produced no result is skipped with a log line; a step whose handler fails
// marks the run unsuccessful but later independent steps still execute, so the
// result carries everything that could be computed.
func (x *Executor) Execute(ctx context.Context, steps []models.QueryStep) *models.OrchestrationResult {
	start := time.Now()
	result := &models.OrchestrationResult{
		Success: true,
		Results: make(map[int]*models.StepResult, len(steps)),
	}

	ordered := make([]models.QueryStep, len(steps))
	copy(ordered, steps)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].Number < ordered[b].Number })

	for _, step := range ordered {
		if ctx.Err() != nil {
			result.Success = false
			result.Error = ctx.Err().Error()
			break
		}

		if missing := x.unsatisfied(step, result.Results); missing != 0 {
			x.log.Warn("skipping step with unsatisfied dependency",
				zap.Int("step", step.Number),
				zap.Int("missing", missing),
				zap.String("type", string(step.Type)))
			continue
		}

		stepResult, err := x.run(ctx, step, result.Results)
		if err != nil {
			result.Success = false
			if result.Error == "" {
				result.Error = fmt.Sprintf("step %d (%s): %v", step.Number, step.Type, err)
			}
			x.log.Warn("step failed",
				zap.Int("step", step.Number),
				zap.String("type", string(step.Type)),
				zap.Error(err))
			continue
		}

		result.Results[step.Number] = stepResult
		result.StepsExecuted++
	}

	for _, stepResult := range result.Results {
		if result.FinalResult == nil || stepResult.StepNumber > result.FinalResult.StepNumber {
			result.FinalResult = stepResult
		}
	}

	result.ExecutionTime = time.Since(start)
	return result
}

// unsatisfied returns the first missing dependency number, zero when all are met
func (x *Executor) unsatisfied(step models.QueryStep, results map[int]*models.StepResult) int {
	for _, dep := range step.DependsOn {
		if _, ok := results[dep]; !ok {
			return dep
		}
	}
	return 0
}

func (x *Executor) run(ctx context.Context, step models.QueryStep, prior map[int]*models.StepResult) (*models.StepResult, error) {
	switch step.Type {
	case models.StepBasePerformance, models.StepBaseScenario, models.StepModifiedScenario, models.StepMetricCalculation:
		return x.runPerformance(ctx, step)
	case models.StepFlockCalcMortality:
		return x.runFlock(step, prior)
	case models.StepScenarioComparison:
		return x.runComparison(step, prior)
	case models.StepAggregateResults:
		return x.runAggregate(step, prior)
	case models.StepSingleOptimization:
		return x.runOptimization(ctx, step)
	case models.StepMultiObjCompromise:
		return x.runCompromise(step, prior)
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnknownStepType, step.Type)
}

func (x *Executor) runPerformance(ctx context.Context, step models.QueryStep) (*models.StepResult, error) {
	params, ok := step.Params.(models.PerformanceParams)
	if !ok {
		return nil, fmt.Errorf("step %d: wrong params for %s", step.Number, step.Type)
	}

	q := models.PerfQuery{
		Species: params.Species,
		Line:    params.Line,
		Sex:     params.Sex,
		Metrics: params.Metrics,
	}
	age := params.AgeDays
	if mod, ok := params.Modifications["age_days"]; ok {
		age = int(mod)
	}
	if age > 0 {
		q.AgeDays = &age
	}

	perf, err := x.perf.Lookup(ctx, q)
	if err != nil {
		return nil, err
	}
	return &models.StepResult{
		StepNumber: step.Number,
		Metrics:    perf.ByMetric(),
	}, nil
}

// runFlock scales the per-bird metrics of the dependency step to the birds
// that survive the stated mortality.
func (x *Executor) runFlock(step models.QueryStep, prior map[int]*models.StepResult) (*models.StepResult, error) {
	params, ok := step.Params.(models.FlockParams)
	if !ok {
		return nil, fmt.Errorf("step %d: wrong params for %s", step.Number, step.Type)
	}
	base, err := firstDependency(step, prior)
	if err != nil {
		return nil, err
	}

	surviving := float64(params.FlockSize) * (1 - params.MortalityPct/100)
	totals := make(map[string]float64, len(base.Metrics))
	for metric, v := range base.Metrics {
		totals[metric] = v.Value * surviving
	}

	return &models.StepResult{
		StepNumber:     step.Number,
		SurvivingBirds: surviving,
		Totals:         totals,
		Metrics:        base.Metrics,
		Summary: fmt.Sprintf("%d birds at %.1f%% mortality leaves %.0f birds",
			params.FlockSize, params.MortalityPct, surviving),
	}, nil
}

// runComparison reports, per metric, modified minus base
func (x *Executor) runComparison(step models.QueryStep, prior map[int]*models.StepResult) (*models.StepResult, error) {
	if len(step.DependsOn) < 2 {
		return nil, fmt.Errorf("%w: comparison needs two scenarios", models.ErrDependencyUnsatisfied)
	}
	base := prior[step.DependsOn[0]]
	modified := prior[step.DependsOn[1]]

	comparison := make(map[string]float64)
	for metric, mv := range modified.Metrics {
		if bv, ok := base.Metrics[metric]; ok {
			comparison[metric] = mv.Value - bv.Value
		}
	}

	return &models.StepResult{
		StepNumber: step.Number,
		Comparison: comparison,
		Summary:    comparisonSummary(comparison),
	}, nil
}

func (x *Executor) runAggregate(step models.QueryStep, prior map[int]*models.StepResult) (*models.StepResult, error) {
	merged := make(map[string]models.MetricValue)
	for _, dep := range step.DependsOn {
		for metric, v := range prior[dep].Metrics {
			if _, ok := merged[metric]; !ok {
				merged[metric] = v
			}
		}
	}
	return &models.StepResult{
		StepNumber: step.Number,
		Metrics:    merged,
		Summary:    fmt.Sprintf("aggregated %d metrics across %d steps", len(merged), len(step.DependsOn)),
	}, nil
}

// runOptimization scans the objective over the grow-out window and keeps the
// best age. Weight-like objectives maximize, ratio and mortality objectives
// minimize.
func (x *Executor) runOptimization(ctx context.Context, step models.QueryStep) (*models.StepResult, error) {
	params, ok := step.Params.(models.OptimizationParams)
	if !ok {
		return nil, fmt.Errorf("step %d: wrong params for %s", step.Number, step.Type)
	}

	perf, err := x.perf.Lookup(ctx, models.PerfQuery{
		Line:     params.Line,
		Sex:      params.Sex,
		Metrics:  []string{params.Objective},
		AgeRange: &models.AgeRange{Min: 0, Max: 70},
	})
	if err != nil {
		return nil, err
	}

	minimize := objectiveMinimizes(params.Objective)
	var best *models.PerfRow
	for i := range perf.Rows {
		row := &perf.Rows[i]
		if best == nil ||
			(minimize && row.Value < best.Value) ||
			(!minimize && row.Value > best.Value) {
			best = row
		}
	}
	if best == nil {
		return nil, models.ErrPerfStoreEmpty
	}

	return &models.StepResult{
		StepNumber: step.Number,
		Metrics: map[string]models.MetricValue{
			params.Objective: {Value: best.Value, Unit: best.Unit},
		},
		Totals: map[string]float64{"optimal_age_days": float64(best.AgeDays)},
		Summary: fmt.Sprintf("%s is best at day %d (%.4g %s)",
			params.Objective, best.AgeDays, best.Value, best.Unit),
	}, nil
}

// runCompromise picks the age halfway between the per-objective optima
func (x *Executor) runCompromise(step models.QueryStep, prior map[int]*models.StepResult) (*models.StepResult, error) {
	var ages []float64
	merged := make(map[string]models.MetricValue)
	var parts []string

	for _, dep := range step.DependsOn {
		stepResult := prior[dep]
		if age, ok := stepResult.Totals["optimal_age_days"]; ok {
			ages = append(ages, age)
		}
		for metric, v := range stepResult.Metrics {
			merged[metric] = v
		}
		if stepResult.Summary != "" {
			parts = append(parts, stepResult.Summary)
		}
	}
	if len(ages) == 0 {
		return nil, fmt.Errorf("%w: no optimization results to reconcile", models.ErrDependencyUnsatisfied)
	}

	sum := 0.0
	for _, age := range ages {
		sum += age
	}
	compromiseAge := sum / float64(len(ages))

	return &models.StepResult{
		StepNumber: step.Number,
		Metrics:    merged,
		Totals:     map[string]float64{"compromise_age_days": compromiseAge},
		Summary:    fmt.Sprintf("compromise slaughter age: day %.0f. %s", compromiseAge, strings.Join(parts, "; ")),
	}, nil
}

func firstDependency(step models.QueryStep, prior map[int]*models.StepResult) (*models.StepResult, error) {
	if len(step.DependsOn) == 0 {
		return nil, fmt.Errorf("%w: step %d has no dependency", models.ErrDependencyUnsatisfied, step.Number)
	}
	return prior[step.DependsOn[0]], nil
}

func objectiveMinimizes(objective string) bool {
	lower := strings.ToLower(objective)
	return strings.Contains(lower, "fcr") ||
		strings.Contains(lower, "conversion") ||
		strings.Contains(lower, "mortality") ||
		strings.Contains(lower, "mortalité")
}

func comparisonSummary(comparison map[string]float64) string {
	if len(comparison) == 0 {
		return "no overlapping metrics to compare"
	}
	metrics := make([]string, 0, len(comparison))
	for metric := range comparison {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	var parts []string
	for _, metric := range metrics {
		parts = append(parts, fmt.Sprintf("%s: %+.4g", metric, comparison[metric]))
	}
	return "scenario deltas: " + strings.Join(parts, ", ")
}
