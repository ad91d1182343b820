package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plumeline/plumeline/models"
)

func TestClassifySimple(t *testing.T) {
	c := Classify("What is the target weight for Ross 308 males at 35 days?",
		models.IntentMetricQuery, nil)
	assert.Equal(t, models.ComplexitySimple, c)
}

func TestClassifyMultiMetric(t *testing.T) {
	c := Classify("Give me the weight and the fcr for Ross 308 at 35 days",
		models.IntentMetricQuery, nil)
	assert.Equal(t, models.ComplexityMultiMetric, c)
}

func TestClassifyMultiMetricFrench(t *testing.T) {
	c := Classify("Donne-moi le poids et la consommation d'eau à 35 jours",
		models.IntentMetricQuery, nil)
	assert.Equal(t, models.ComplexityMultiMetric, c)
}

func TestClassifyComparative(t *testing.T) {
	c := Classify("Compare Ross 308 versus Cobb 500 at 42 days",
		models.IntentMetricQuery, nil)
	assert.Equal(t, models.ComplexityComparative, c)
}

func TestClassifyConditional(t *testing.T) {
	c := Classify("If I raise the temperature to 24C, then what happens to water intake?",
		models.IntentEnvironmentSetting, nil)
	assert.Equal(t, models.ComplexityConditional, c)
}

func TestClassifySequential(t *testing.T) {
	c := Classify("Start the brooding at 33C, then reduce it step by step until 21 days",
		models.IntentProtocolQuery, nil)
	assert.Equal(t, models.ComplexitySequential, c)
}

func TestClassifyDiagnosticByIntent(t *testing.T) {
	c := Classify("Why are my birds losing weight?", models.IntentDiagnosisTriage, nil)
	assert.Equal(t, models.ComplexityDiagnostic, c)
}

func TestClassifyDiagnosticBySymptoms(t *testing.T) {
	e := &models.ExtractedEntities{Symptoms: []string{"diarrhea"}}
	c := Classify("My birds have diarrhea", models.IntentGeneralPoultry, e)
	assert.Equal(t, models.ComplexityDiagnostic, c)
}

func TestClassifyDiagnosticWinsOverComparative(t *testing.T) {
	e := &models.ExtractedEntities{Symptoms: []string{"lameness"}}
	c := Classify("Compare the treatments for lameness", models.IntentDiagnosisTriage, e)
	assert.Equal(t, models.ComplexityDiagnostic, c)
}

func TestDecomposeMultiMetricCarriesSubject(t *testing.T) {
	breed := "ross_308"
	bt := models.BreedTypeSpecific
	age := 35
	e := &models.ExtractedEntities{
		Breed:     &breed,
		BreedType: &bt,
		AgeDays:   &age,
		Metrics:   []string{"weight", "fcr"},
	}
	q := &models.Query{Text: "weight and fcr for Ross 308 at 35 days", Language: "en"}

	subs := Decompose(q, models.ComplexityMultiMetric, models.IntentMetricQuery, e)
	assert.Len(t, subs, 2)
	for _, sub := range subs {
		assert.Contains(t, sub.Text, "ross 308")
		assert.Contains(t, sub.Text, "35 days")
	}
}

func TestDecomposeComparativeSplitsOnVersus(t *testing.T) {
	q := &models.Query{Text: "Weight of Ross 308 at 35 days versus weight of Cobb 500 at 35 days?", Language: "en"}

	subs := Decompose(q, models.ComplexityComparative, models.IntentMetricQuery, nil)
	assert.Len(t, subs, 2)
	assert.Contains(t, subs[0].Text, "Ross 308")
	assert.Contains(t, subs[1].Text, "Cobb 500")
}

func TestDecomposeDiagnosticProducesThreeAngles(t *testing.T) {
	e := &models.ExtractedEntities{Symptoms: []string{"diarrhea", "lameness"}}
	q := &models.Query{Text: "My birds have diarrhea and lameness, what should I do?", Language: "en"}

	subs := Decompose(q, models.ComplexityDiagnostic, models.IntentDiagnosisTriage, e)
	assert.Len(t, subs, 3)
	labels := []string{subs[0].Label, subs[1].Label, subs[2].Label}
	assert.Equal(t, []string{"causes", "differential", "actions"}, labels)
}

func TestDecomposeSimpleYieldsNothing(t *testing.T) {
	q := &models.Query{Text: "Target weight at 35 days?", Language: "en"}
	assert.Nil(t, Decompose(q, models.ComplexitySimple, models.IntentMetricQuery, nil))
}
