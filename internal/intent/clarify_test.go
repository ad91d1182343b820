package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plumeline/plumeline/models"
)

func newTestClarifier() *Clarifier {
	// No provider: only the rule-based tiers can fire
	return NewClarifier(ClarifierConfig{MaxQuestions: 3}, nil, zap.NewNop())
}

func genericEntities() *models.ExtractedEntities {
	bt := models.BreedTypeGeneric
	return &models.ExtractedEntities{BreedType: &bt}
}

func TestGenericBreedAlwaysClarifies(t *testing.T) {
	c := newTestClarifier()
	q := &models.Query{Text: "How much should my chickens weigh?", Language: "en"}

	req := c.Check(context.Background(), q, models.IntentMetricQuery, genericEntities())
	require.NotNil(t, req)
	assert.Contains(t, req.MissingFields, "breed")
	assert.Contains(t, req.MissingFields, "age")
	assert.LessOrEqual(t, len(req.Questions), 3)
	assert.Equal(t, "en", req.Language)
}

func TestGenericBreedClarifiesInFrench(t *testing.T) {
	c := newTestClarifier()
	q := &models.Query{Text: "Combien doivent peser mes poulets ?", Language: "fr"}

	req := c.Check(context.Background(), q, models.IntentMetricQuery, genericEntities())
	require.NotNil(t, req)
	for _, question := range req.Questions {
		assert.NotEmpty(t, question)
	}
	assert.Contains(t, req.Questions[0], "souche")
}

func TestSpecificBreedWithAgeIsClear(t *testing.T) {
	c := newTestClarifier()
	breed := "ross_308"
	bt := models.BreedTypeSpecific
	age := 35
	e := &models.ExtractedEntities{Breed: &breed, BreedType: &bt, AgeDays: &age}

	req := c.Check(context.Background(),
		&models.Query{Text: "Target weight for Ross 308 at 35 days?", Language: "en"},
		models.IntentMetricQuery, e)
	assert.Nil(t, req)
}

func TestGrowthMetricMissingAgeClarifies(t *testing.T) {
	c := newTestClarifier()
	breed := "ross_308"
	bt := models.BreedTypeSpecific
	e := &models.ExtractedEntities{Breed: &breed, BreedType: &bt, Metrics: []string{"weight"}}

	req := c.Check(context.Background(),
		&models.Query{Text: "What weight should Ross 308 reach?", Language: "en"},
		models.IntentMetricQuery, e)
	require.NotNil(t, req)
	assert.Equal(t, []string{"age"}, req.MissingFields)
}

func TestNoProviderNoRuleMatchIsClear(t *testing.T) {
	c := newTestClarifier()

	req := c.Check(context.Background(),
		&models.Query{Text: "General ventilation advice please", Language: "en"},
		models.IntentEnvironmentSetting, &models.ExtractedEntities{})
	assert.Nil(t, req)
}

func TestMaxQuestionsClamped(t *testing.T) {
	c := NewClarifier(ClarifierConfig{MaxQuestions: 2}, nil, zap.NewNop())
	q := &models.Query{Text: "My chickens are sick", Language: "en"}
	bt := models.BreedTypeGeneric
	e := &models.ExtractedEntities{BreedType: &bt, Symptoms: []string{"diarrhea"}}

	req := c.Check(context.Background(), q, models.IntentDiagnosisTriage, e)
	require.NotNil(t, req)
	assert.LessOrEqual(t, len(req.Questions), 2)
}
