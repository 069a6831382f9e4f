package osv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/osv-scanner/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffectedVersionsPrefersExplicitList(t *testing.T) {
	affected := models.Affected{
		Package:  models.Package{Ecosystem: "npm", Name: "lodash"},
		Versions: []string{"4.17.20", "4.17.21"},
		Ranges: []models.Range{{
			Type:   models.RangeSemVer,
			Events: []models.Event{{Introduced: "0"}, {Fixed: "4.17.21"}},
		}},
	}

	assert.Equal(t, []string{"4.17.20", "4.17.21"}, affectedVersions(affected))
}

func TestAffectedVersionsFromRangeBoundaries(t *testing.T) {
	affected := models.Affected{
		Package: models.Package{Ecosystem: "PyPI", Name: "flask"},
		Ranges: []models.Range{{
			Type:   models.RangeEcosystem,
			Events: []models.Event{{Introduced: "1.0.0"}, {Fixed: "2.0.0"}},
		}},
	}

	// The introduced boundary is affected; the fixed boundary is not.
	assert.Equal(t, []string{"1.0.0"}, affectedVersions(affected))
}

func TestAffectedVersionsEmptyWhenNothingKnown(t *testing.T) {
	affected := models.Affected{
		Package: models.Package{Ecosystem: "npm", Name: "leftpad"},
	}

	assert.Empty(t, affectedVersions(affected))
}

func TestParseAdvisory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "GHSA-test.json")
	doc := `{
		"id": "GHSA-test-1234",
		"modified": "2024-05-01T00:00:00Z",
		"affected": [
			{
				"package": {"ecosystem": "npm", "name": "lodash"},
				"versions": ["4.17.20"]
			}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	vuln, content, err := parseAdvisory(path)
	require.NoError(t, err)
	assert.Equal(t, "GHSA-test-1234", vuln.ID)
	require.Len(t, vuln.Affected, 1)
	assert.Equal(t, []string{"4.17.20"}, vuln.Affected[0].Versions)
	assert.Equal(t, "GHSA-test-1234", content["id"])
}

func TestParseAdvisoryRejectsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"summary": "no id"}`), 0o600))

	_, _, err := parseAdvisory(path)
	assert.Error(t, err)
}

func TestParseAdvisoryRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not-json"), 0o600))

	_, _, err := parseAdvisory(path)
	assert.Error(t, err)
}
