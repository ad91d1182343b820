package perfstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumeline/plumeline/models"
)

func TestBuildQueryFullySpecified(t *testing.T) {
	age := 35
	sql, args := BuildQuery(models.PerfQuery{
		Species: "broiler",
		Line:    "ross_308",
		Sex:     "male",
		AgeDays: &age,
		Metrics: []string{"body weight"},
	})

	assert.Contains(t, sql, "s.species = $1")
	assert.Contains(t, sql, "s.strain_name = $2")
	assert.Contains(t, sql, "d.sex = $3")
	assert.Contains(t, sql, "m.age_min = $4")
	assert.Contains(t, sql, "m.metric_name LIKE $5")
	assert.Contains(t, sql, "ORDER BY")

	require.Len(t, args, 6)
	assert.Equal(t, "broiler", args[0])
	assert.Equal(t, "ross_308", args[1])
	assert.Equal(t, "male", args[2])
	assert.Equal(t, 35, args[3])
	assert.Equal(t, "body weight for %", args[4])
	assert.Equal(t, "body weight", args[5])
}

func TestBuildQueryEmptyFieldsWiden(t *testing.T) {
	sql, args := BuildQuery(models.PerfQuery{})

	assert.NotContains(t, sql, "s.species =")
	assert.NotContains(t, sql, "strain_name =")
	assert.NotContains(t, sql, "d.sex =")
	assert.NotContains(t, sql, "age_min")
	assert.Empty(t, args)
}

func TestBuildQueryAgeRange(t *testing.T) {
	sql, args := BuildQuery(models.PerfQuery{
		AgeRange: &models.AgeRange{Min: 28, Max: 42},
	})

	assert.Contains(t, sql, "m.age_min BETWEEN $1 AND $2")
	require.Len(t, args, 2)
	assert.Equal(t, 28, args[0])
	assert.Equal(t, 42, args[1])
}

func TestBuildQueryExactAgeWinsOverRange(t *testing.T) {
	age := 35
	sql, _ := BuildQuery(models.PerfQuery{
		AgeDays:  &age,
		AgeRange: &models.AgeRange{Min: 28, Max: 42},
	})

	assert.Contains(t, sql, "m.age_min = $1")
	assert.NotContains(t, sql, "BETWEEN")
}

func TestConfidenceScale(t *testing.T) {
	assert.InDelta(t, 0.3, Confidence(1), 1e-9)
	assert.InDelta(t, 0.5, Confidence(3), 1e-9)
	assert.InDelta(t, 1.0, Confidence(8), 1e-9)
	assert.InDelta(t, 1.0, Confidence(50), 1e-9)
}
