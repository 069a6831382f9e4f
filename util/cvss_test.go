package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateCVSSScore(t *testing.T) {
	assert.InDelta(t, 9.8,
		CalculateCVSSScore("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"), 0.01)
	assert.InDelta(t, 5.3,
		CalculateCVSSScore("CVSS:3.0/AV:N/AC:L/PR:N/UI:N/S:U/C:L/I:N/A:N"), 0.01)

	assert.Zero(t, CalculateCVSSScore(""))
	assert.Zero(t, CalculateCVSSScore("not-a-vector"))
	assert.Zero(t, CalculateCVSSScore("CVSS:3.1/garbage"))
}

func TestAddCVSSScoresToContent(t *testing.T) {
	content := map[string]interface{}{
		"id": "GHSA-test",
		"severity": []interface{}{
			map[string]interface{}{
				"type":  "CVSS_V3",
				"score": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
			},
			map[string]interface{}{
				"type":  "CVSS_V3",
				"score": "CVSS:3.0/AV:N/AC:L/PR:N/UI:N/S:U/C:L/I:N/A:N",
			},
		},
	}

	AddCVSSScoresToContent(content)

	dbSpecific, ok := content["database_specific"].(map[string]interface{})
	require.True(t, ok)

	scores, ok := dbSpecific["cvss_base_scores"].([]float64)
	require.True(t, ok)
	assert.Len(t, scores, 2)
	assert.InDelta(t, 9.8, dbSpecific["cvss_base_score"].(float64), 0.01)
	assert.Equal(t, "CRITICAL", dbSpecific["severity_rating"])
}

func TestAddCVSSScoresToContentFloorsScoreless(t *testing.T) {
	content := map[string]interface{}{"id": "GHSA-no-severity"}

	AddCVSSScoresToContent(content)

	dbSpecific, ok := content["database_specific"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 0.1, dbSpecific["cvss_base_score"])
	assert.Equal(t, "LOW", dbSpecific["severity_rating"])
}

func TestGetSeverityRating(t *testing.T) {
	assert.Equal(t, "NONE", GetSeverityRating(0))
	assert.Equal(t, "LOW", GetSeverityRating(3.9))
	assert.Equal(t, "MEDIUM", GetSeverityRating(4.0))
	assert.Equal(t, "HIGH", GetSeverityRating(7.0))
	assert.Equal(t, "CRITICAL", GetSeverityRating(9.0))
}
