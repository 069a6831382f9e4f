// Package model - PackageRecord defines the vulnerable-package records exchanged
// between the OSV graph, the hitting-set solver, and the revision builder.
package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// PackageRecord holds one package's vulnerability exposure: for every known
// vulnerability id, the list of affected versions. The on-disk form is the
// legacy mixed mapping where "ecosystem" and "purl" sit beside the
// vulnerability-id keys, so marshaling is custom.
type PackageRecord struct {
	Name                  string              `json:"-"`
	Ecosystem             string              `json:"ecosystem,omitempty"`
	Purl                  string              `json:"purl,omitempty"`
	VulnerabilityVersions map[string][]string `json:"-"`
}

// NewPackageRecord creates an empty record for a package name.
func NewPackageRecord(name string) *PackageRecord {
	return &PackageRecord{
		Name:                  name,
		VulnerabilityVersions: make(map[string][]string),
	}
}

// AddVulnerabilityVersion records one affected version for a vulnerability,
// deduplicating repeats.
func (p *PackageRecord) AddVulnerabilityVersion(vulnID, version string) {
	if p.VulnerabilityVersions == nil {
		p.VulnerabilityVersions = make(map[string][]string)
	}
	for _, v := range p.VulnerabilityVersions[vulnID] {
		if v == version {
			return
		}
	}
	p.VulnerabilityVersions[vulnID] = append(p.VulnerabilityVersions[vulnID], version)
}

// VulnerabilityIDs returns the vulnerability ids in sorted order so callers
// iterate deterministically.
func (p *PackageRecord) VulnerabilityIDs() []string {
	ids := make([]string, 0, len(p.VulnerabilityVersions))
	for id := range p.VulnerabilityVersions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnmarshalJSON reads the legacy mixed mapping: fixed scalar keys plus one
// array-valued key per vulnerability id.
func (p *PackageRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.VulnerabilityVersions = make(map[string][]string)

	for key, value := range raw {
		switch key {
		case "ecosystem":
			if err := json.Unmarshal(value, &p.Ecosystem); err != nil {
				return fmt.Errorf("package record field %q: %w", key, err)
			}
		case "purl":
			if err := json.Unmarshal(value, &p.Purl); err != nil {
				return fmt.Errorf("package record field %q: %w", key, err)
			}
		default:
			var versions []string
			if err := json.Unmarshal(value, &versions); err != nil {
				// Scalar keys we don't know about are ignored rather than
				// mistaken for vulnerability entries.
				continue
			}
			p.VulnerabilityVersions[key] = versions
		}
	}

	return nil
}

// MarshalJSON writes the same mixed mapping back out.
func (p PackageRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.VulnerabilityVersions)+2)
	if p.Ecosystem != "" {
		out["ecosystem"] = p.Ecosystem
	}
	if p.Purl != "" {
		out["purl"] = p.Purl
	}
	for id, versions := range p.VulnerabilityVersions {
		out[id] = versions
	}
	return json.Marshal(out)
}

// MinimalVersionRecord is the solver output for one package: the smallest
// version set that covers its vulnerabilities, plus bookkeeping about what
// could not be covered.
type MinimalVersionRecord struct {
	Ecosystem                string   `json:"ecosystem,omitempty"`
	Purl                     string   `json:"purl,omitempty"`
	MinimalVersions          []string `json:"minimal_versions"`
	TotalVulnerabilities     int      `json:"total_vulnerabilities"`
	CoveredByMinimalSet      int      `json:"covered_by_minimal_set"`
	UncoveredVulnerabilities []string `json:"uncovered_vulnerabilities,omitempty"`
	RejectedVersions         []string `json:"rejected_versions,omitempty"`
}

// PackageRecordSet is the file-level mapping of package name to record.
type PackageRecordSet map[string]*PackageRecord

// UnmarshalJSON populates each record's Name from its mapping key.
func (s *PackageRecordSet) UnmarshalJSON(data []byte) error {
	var raw map[string]*PackageRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for name, rec := range raw {
		if rec == nil {
			rec = NewPackageRecord(name)
			raw[name] = rec
		}
		rec.Name = name
	}
	*s = raw
	return nil
}

// SortedNames returns the package names in sorted order.
func (s PackageRecordSet) SortedNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
