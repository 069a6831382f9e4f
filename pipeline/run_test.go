package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ortelius/vuln2rev-mapper/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimalOutputPath(t *testing.T) {
	assert.Equal(t, "/data/cve_affected_versions_minimal.json",
		MinimalOutputPath("/data/cve_affected_versions.json"))
	assert.Equal(t, "records_minimal.json", MinimalOutputPath("records.json"))
}

func TestLoadMinimalRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.json")
	content := `{
		"lodash": {
			"ecosystem": "npm",
			"minimal_versions": ["4.17.20"],
			"total_vulnerabilities": 3,
			"covered_by_minimal_set": 3
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	records, err := LoadMinimalRecords(path)
	require.NoError(t, err)
	require.Contains(t, records, "lodash")
	assert.Equal(t, []string{"4.17.20"}, records["lodash"].MinimalVersions)
	assert.Equal(t, 3, records["lodash"].TotalVulnerabilities)
}

func TestLoadMinimalRecordsMissingFile(t *testing.T) {
	_, err := LoadMinimalRecords(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestWriteJSONAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "records.json")

	records := map[string]*model.MinimalVersionRecord{
		"flask": {Ecosystem: "PyPI", MinimalVersions: []string{"2.0.1"}},
	}
	require.NoError(t, writeJSON(path, records))

	// No temp file should survive the rename.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	back, err := LoadMinimalRecords(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"2.0.1"}, back["flask"].MinimalVersions)
}
