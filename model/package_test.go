package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageRecordUnmarshalMixedMapping(t *testing.T) {
	raw := `{
		"ecosystem": "npm",
		"purl": "pkg:npm/lodash",
		"GHSA-jf85-cpcp-j695": ["4.17.20", "4.17.19"],
		"CVE-2021-23337": ["4.17.20"]
	}`

	var rec PackageRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	assert.Equal(t, "npm", rec.Ecosystem)
	assert.Equal(t, "pkg:npm/lodash", rec.Purl)
	assert.Equal(t, []string{"4.17.20", "4.17.19"}, rec.VulnerabilityVersions["GHSA-jf85-cpcp-j695"])
	assert.Equal(t, []string{"CVE-2021-23337", "GHSA-jf85-cpcp-j695"}, rec.VulnerabilityIDs())
}

func TestPackageRecordIgnoresUnknownScalarKeys(t *testing.T) {
	raw := `{"ecosystem": "PyPI", "last_synced": "2024-01-01", "CVE-2024-0001": ["1.0"]}`

	var rec PackageRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	assert.Len(t, rec.VulnerabilityVersions, 1)
	assert.Contains(t, rec.VulnerabilityVersions, "CVE-2024-0001")
}

func TestPackageRecordRoundTrip(t *testing.T) {
	rec := NewPackageRecord("flask")
	rec.Ecosystem = "PyPI"
	rec.Purl = "pkg:pypi/flask"
	rec.AddVulnerabilityVersion("CVE-2023-30861", "2.2.0")

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var back PackageRecord
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, rec.Ecosystem, back.Ecosystem)
	assert.Equal(t, rec.Purl, back.Purl)
	assert.Equal(t, rec.VulnerabilityVersions, back.VulnerabilityVersions)
}

func TestPackageRecordSetPopulatesNames(t *testing.T) {
	raw := `{
		"lodash": {"ecosystem": "npm", "CVE-1": ["1.0"]},
		"flask": {"ecosystem": "PyPI", "CVE-2": ["2.0"]}
	}`

	var set PackageRecordSet
	require.NoError(t, json.Unmarshal([]byte(raw), &set))

	assert.Equal(t, "lodash", set["lodash"].Name)
	assert.Equal(t, "flask", set["flask"].Name)
	assert.Equal(t, []string{"flask", "lodash"}, set.SortedNames())
}

func TestAddVulnerabilityVersionDeduplicates(t *testing.T) {
	rec := NewPackageRecord("x")
	rec.AddVulnerabilityVersion("CVE-1", "1.0")
	rec.AddVulnerabilityVersion("CVE-1", "1.0")
	rec.AddVulnerabilityVersion("CVE-1", "2.0")

	assert.Equal(t, []string{"1.0", "2.0"}, rec.VulnerabilityVersions["CVE-1"])
}
