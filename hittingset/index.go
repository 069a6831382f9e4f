package hittingset

import (
	"sort"

	"github.com/ortelius/vuln2rev-mapper/model"
	"github.com/ortelius/vuln2rev-mapper/util"
	"go.uber.org/zap"
)

// CandidateSet is the solver-ready view of one package's vulnerability data:
// ordered vulnerability ids, their deduplicated affected-version lists, a
// recency score per distinct version, and the version strings rejected for
// being package-URLs instead of versions.
type CandidateSet struct {
	VulnIDs       []string
	CoverageLists [][]string
	Recency       map[string]float64
	Rejected      []string
}

// BuildCandidates inverts a package record into the two views the solver
// needs. Version strings shaped like purls ("pkg:...") are filtered into
// Rejected rather than passed downstream.
func BuildCandidates(rec *model.PackageRecord) CandidateSet {
	cs := CandidateSet{Recency: make(map[string]float64)}
	rejected := make(map[string]bool)
	distinct := make(map[string]bool)

	for _, vulnID := range rec.VulnerabilityIDs() {
		seen := make(map[string]bool)
		var list []string
		for _, v := range rec.VulnerabilityVersions[vulnID] {
			if util.IsPurlShaped(v) {
				rejected[v] = true
				continue
			}
			if seen[v] {
				continue
			}
			seen[v] = true
			distinct[v] = true
			list = append(list, v)
		}
		cs.VulnIDs = append(cs.VulnIDs, vulnID)
		cs.CoverageLists = append(cs.CoverageLists, list)
	}

	for v := range rejected {
		cs.Rejected = append(cs.Rejected, v)
	}
	sort.Strings(cs.Rejected)

	cs.Recency = rankVersions(distinct, rec.Ecosystem)

	return cs
}

// rankVersions scores each distinct version by its rank in the ecosystem's
// version ordering: higher score = newer. Versions the ecosystem parser
// rejects compare lexicographically against everything, which keeps the
// ordering total and the tie-break deterministic.
func rankVersions(distinct map[string]bool, ecosystem string) map[string]float64 {
	versions := make([]string, 0, len(distinct))
	for v := range distinct {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	cmp := util.CompareForEcosystem(ecosystem)
	sort.SliceStable(versions, func(i, j int) bool {
		c, err := cmp(versions[i], versions[j])
		if err != nil {
			c, _ = util.CompareLexical(versions[i], versions[j])
		}
		return c < 0
	})

	scores := make(map[string]float64, len(versions))
	for i, v := range versions {
		scores[v] = float64(i)
	}
	return scores
}

// SolvePackage runs the full index+solve for one package and shapes the
// output record. A package with zero vulnerabilities yields an empty
// selection with total 0, not an error.
func SolvePackage(rec *model.PackageRecord, logger *zap.Logger) model.MinimalVersionRecord {
	cs := BuildCandidates(rec)
	res := Solve(cs.CoverageLists, cs.Recency)

	out := model.MinimalVersionRecord{
		Ecosystem:            rec.Ecosystem,
		Purl:                 rec.Purl,
		MinimalVersions:      res.Selected,
		TotalVulnerabilities: len(cs.VulnIDs),
		CoveredByMinimalSet:  res.Covered,
		RejectedVersions:     cs.Rejected,
	}
	if out.MinimalVersions == nil {
		out.MinimalVersions = []string{}
	}

	for _, idx := range res.Uncovered {
		out.UncoveredVulnerabilities = append(out.UncoveredVulnerabilities, cs.VulnIDs[idx])
	}

	if len(out.UncoveredVulnerabilities) > 0 && logger != nil {
		logger.Sugar().Warnf("package %s: %d of %d vulnerabilities have no coverable version",
			rec.Name, len(out.UncoveredVulnerabilities), out.TotalVulnerabilities)
	}

	return out
}
