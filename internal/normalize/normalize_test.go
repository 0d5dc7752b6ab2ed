package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wellFormed = `{"fields":[{"field":"Name","value":"John","confidence":90}],"explanation":"ok","formatting_changes":[],"overall_confidence":90}`

func TestNormalize_PlainJSON(t *testing.T) {
	res := Normalize(wellFormed, 1.5)

	require.Len(t, res.Fields, 1)
	assert.Equal(t, "Name", res.Fields[0].Field)
	assert.Equal(t, "John", res.Fields[0].Value)
	assert.Equal(t, 90.0, res.Fields[0].Confidence)
	assert.Equal(t, "ok", res.Explanation)
	assert.Empty(t, res.Changes)
	assert.Equal(t, 90.0, res.Confidence)
	assert.Equal(t, 1.5, res.ElapsedSeconds)
}

func TestNormalize_JSONWrappedInProseAndFences(t *testing.T) {
	raw := "Here is the analysis you asked for:\n```json\n" + wellFormed + "\n```\nLet me know if you need anything else."

	res := Normalize(raw, 0.2)
	require.Len(t, res.Fields, 1)
	assert.Equal(t, "John", res.Fields[0].Value)
	assert.Equal(t, 90.0, res.Confidence)
}

func TestNormalize_NonJSONFallsBack(t *testing.T) {
	res := Normalize("hello world", 0.1)

	assert.Empty(t, res.Fields)
	assert.Equal(t, "hello world", res.Explanation)
	assert.Empty(t, res.Changes)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestNormalize_UnbalancedBracesFallsBack(t *testing.T) {
	res := Normalize(`something {"fields": [ broken`, 0)

	assert.Empty(t, res.Fields)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestNormalize_BracesInsideStringsDoNotConfuseScanner(t *testing.T) {
	raw := `note: {"fields":[{"field":"Desc","value":"a } b { c","confidence":80}],"explanation":"x"}`

	res := Normalize(raw, 0)
	require.Len(t, res.Fields, 1)
	assert.Equal(t, "a } b { c", res.Fields[0].Value)
}

func TestNormalize_ClampsConfidence(t *testing.T) {
	raw := `{"fields":[{"field":"A","value":"1","confidence":150},{"field":"B","value":"2","confidence":-10}]}`

	res := Normalize(raw, 0)
	require.Len(t, res.Fields, 2)
	assert.Equal(t, 100.0, res.Fields[0].Confidence)
	assert.Equal(t, 0.0, res.Fields[1].Confidence)
	assert.Equal(t, 50.0, res.Confidence)
}

func TestNormalize_FieldDefaults(t *testing.T) {
	raw := `{"fields":[{}]}`

	res := Normalize(raw, 0)
	require.Len(t, res.Fields, 1)
	assert.Equal(t, "Unknown", res.Fields[0].Field)
	assert.Equal(t, "", res.Fields[0].Value)
	assert.Equal(t, 0.0, res.Fields[0].Confidence)
}

func TestNormalize_NumericValueIsStringified(t *testing.T) {
	raw := `{"fields":[{"field":"Amount","value":1250.5,"confidence":95}]}`

	res := Normalize(raw, 0)
	require.Len(t, res.Fields, 1)
	assert.Equal(t, "1250.5", res.Fields[0].Value)
}

func TestNormalize_ChangeDefaults(t *testing.T) {
	raw := `{"fields":[],"formatting_changes":[{"message":"standardized dates"},{"type":"correction"}]}`

	res := Normalize(raw, 0)
	require.Len(t, res.Changes, 2)
	assert.Equal(t, "formatting", res.Changes[0].Type)
	assert.Equal(t, "standardized dates", res.Changes[0].Message)
	assert.Equal(t, "correction", res.Changes[1].Type)
	assert.Equal(t, "", res.Changes[1].Message)
}

func TestNormalize_OverallConfidenceFallback(t *testing.T) {
	raw := `{"fields":[],"overall_confidence":72}`

	res := Normalize(raw, 0)
	assert.Equal(t, 72.0, res.Confidence)
}

func TestNormalize_MeanConfidenceRoundedTwoDecimals(t *testing.T) {
	raw := `{"fields":[{"field":"A","value":"x","confidence":90},{"field":"B","value":"y","confidence":85},{"field":"C","value":"z","confidence":80.5}]}`

	res := Normalize(raw, 0)
	assert.Equal(t, 85.17, res.Confidence)
}

func TestNormalize_ExplanationDefault(t *testing.T) {
	raw := `{"fields":[{"field":"A","value":"x","confidence":50}]}`

	res := Normalize(raw, 0)
	assert.Equal(t, DefaultExplanation, res.Explanation)
}

func TestNormalize_ConfidenceAsString(t *testing.T) {
	raw := `{"fields":[{"field":"A","value":"x","confidence":"88"}]}`

	res := Normalize(raw, 0)
	require.Len(t, res.Fields, 1)
	assert.Equal(t, 88.0, res.Fields[0].Confidence)
}
