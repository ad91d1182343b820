// Typed request/response structures for the performance store.

package models

// AgeRange is an inclusive range of ages in days
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// PerfQuery is a typed request over the performance tables. Every field is
// optional; a wider query returns more rows.
type PerfQuery struct {
	Species  string    `json:"species,omitempty"`
	Line     string    `json:"line,omitempty"`
	Sex      string    `json:"sex,omitempty"`
	AgeDays  *int      `json:"age_days,omitempty"`
	AgeRange *AgeRange `json:"age_range,omitempty"`
	Metrics  []string  `json:"metrics,omitempty"`
}

// PerfRow is one row of the performance table
type PerfRow struct {
	Line    string  `json:"line"`
	Sex     string  `json:"sex"`
	AgeDays int     `json:"age_days"`
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
}

// PerfResult is the table returned by a performance lookup, with a confidence
// derived from row count and filter specificity.
type PerfResult struct {
	Rows       []PerfRow `json:"rows"`
	Confidence float64   `json:"confidence"`
}

// MetricValue is a numeric metric with its unit
type MetricValue struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// ByMetric collapses the result rows into metric -> value, first row wins
func (r *PerfResult) ByMetric() map[string]MetricValue {
	out := make(map[string]MetricValue, len(r.Rows))
	for _, row := range r.Rows {
		if _, ok := out[row.Metric]; !ok {
			out[row.Metric] = MetricValue{Value: row.Value, Unit: row.Unit}
		}
	}
	return out
}
