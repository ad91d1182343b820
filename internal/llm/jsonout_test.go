package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumeline/plumeline/models"
)

type samplePayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func TestDecodeJSONPlain(t *testing.T) {
	var out samplePayload
	err := DecodeJSON(`{"intent": "metric_query", "confidence": 0.9}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "metric_query", out.Intent)
	assert.InDelta(t, 0.9, out.Confidence, 1e-9)
}

func TestDecodeJSONStripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"intent\": \"metric_query\", \"confidence\": 0.8}\n```"
	var out samplePayload
	err := DecodeJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "metric_query", out.Intent)
}

func TestDecodeJSONRepairsTrailingComma(t *testing.T) {
	var out samplePayload
	err := DecodeJSON(`{"intent": "metric_query", "confidence": 0.8,}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "metric_query", out.Intent)
}

func TestDecodeJSONProseIsParseError(t *testing.T) {
	var out samplePayload
	err := DecodeJSON("I could not produce JSON for that question.", &out)
	assert.ErrorIs(t, err, models.ErrParse)
}
