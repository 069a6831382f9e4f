// Package coverage implements the resolvers for minimal version coverage.
package coverage

import (
	"context"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/ortelius/vuln2rev-mapper/database"
	"github.com/ortelius/vuln2rev-mapper/hittingset"
	"github.com/ortelius/vuln2rev-mapper/model"
)

// ResolvePackageCoverage solves the minimal version set for one package
// straight from the graph.
func ResolvePackageCoverage(db database.DBConnection, name string) (map[string]interface{}, error) {
	rec, err := fetchPackageRecord(db, name)
	if err != nil || rec == nil {
		return nil, err
	}

	solved := hittingset.SolvePackage(rec, database.InitLogger())

	return map[string]interface{}{
		"package":                   name,
		"ecosystem":                 solved.Ecosystem,
		"purl":                      solved.Purl,
		"minimal_versions":          solved.MinimalVersions,
		"total_vulnerabilities":     solved.TotalVulnerabilities,
		"covered_by_minimal_set":    solved.CoveredByMinimalSet,
		"uncovered_vulnerabilities": solved.UncoveredVulnerabilities,
		"rejected_versions":         solved.RejectedVersions,
	}, nil
}

// ResolveVulnerablePackages lists packages ordered by vulnerability count.
func ResolveVulnerablePackages(db database.DBConnection, limit int) ([]map[string]interface{}, error) {
	ctx := context.Background()

	query := `
		FOR p IN package
			LET vulnCount = LENGTH(
				FOR e IN vuln2package
					FILTER e._to == p._id
					RETURN 1
			)
			FILTER vulnCount > 0
			SORT vulnCount DESC
			LIMIT @limit
			RETURN {
				name: p.name,
				ecosystem: p.ecosystem,
				purl: p.purl,
				vulnerability_count: vulnCount
			}
	`
	cursor, err := db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"limit": limit},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var packages []map[string]interface{}
	for cursor.HasMore() {
		var row map[string]interface{}
		if _, err := cursor.ReadDocument(ctx, &row); err != nil {
			continue
		}
		packages = append(packages, row)
	}

	return packages, nil
}

func fetchPackageRecord(db database.DBConnection, name string) (*model.PackageRecord, error) {
	ctx := context.Background()

	query := `
		FOR p IN package
			FILTER p.name == @name
			LIMIT 1
			LET vulns = (
				FOR e IN vuln2package
					FILTER e._to == p._id
					LET v = DOCUMENT(e._from)
					FILTER v != null
					RETURN { id: v.id, versions: e.versions }
			)
			RETURN { ecosystem: p.ecosystem, purl: p.purl, vulns: vulns }
	`
	cursor, err := db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"name": name},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return nil, nil
	}

	var row struct {
		Ecosystem string `json:"ecosystem"`
		Purl      string `json:"purl"`
		Vulns     []struct {
			ID       string   `json:"id"`
			Versions []string `json:"versions"`
		} `json:"vulns"`
	}
	if _, err := cursor.ReadDocument(ctx, &row); err != nil {
		return nil, err
	}

	rec := model.NewPackageRecord(name)
	rec.Ecosystem = row.Ecosystem
	rec.Purl = row.Purl
	for _, v := range row.Vulns {
		for _, version := range v.Versions {
			rec.AddVulnerabilityVersion(v.ID, version)
		}
	}

	return rec, nil
}
