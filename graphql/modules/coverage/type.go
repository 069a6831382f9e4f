// Package coverage defines the GraphQL types for minimal version coverage.
package coverage

import (
	"github.com/graphql-go/graphql"
)

// MinimalCoverageType represents the solver output for one package: the
// smallest version set covering its vulnerabilities.
var MinimalCoverageType = graphql.NewObject(graphql.ObjectConfig{
	Name: "MinimalCoverage",
	Fields: graphql.Fields{
		"package":                   &graphql.Field{Type: graphql.String},
		"ecosystem":                 &graphql.Field{Type: graphql.String},
		"purl":                      &graphql.Field{Type: graphql.String},
		"minimal_versions":          &graphql.Field{Type: graphql.NewList(graphql.String)},
		"total_vulnerabilities":     &graphql.Field{Type: graphql.Int},
		"covered_by_minimal_set":    &graphql.Field{Type: graphql.Int},
		"uncovered_vulnerabilities": &graphql.Field{Type: graphql.NewList(graphql.String)},
		"rejected_versions":         &graphql.Field{Type: graphql.NewList(graphql.String)},
	},
})

// VulnerablePackageType represents a package with its vulnerability exposure
// counts.
var VulnerablePackageType = graphql.NewObject(graphql.ObjectConfig{
	Name: "VulnerablePackage",
	Fields: graphql.Fields{
		"name":                &graphql.Field{Type: graphql.String},
		"ecosystem":           &graphql.Field{Type: graphql.String},
		"purl":                &graphql.Field{Type: graphql.String},
		"vulnerability_count": &graphql.Field{Type: graphql.Int},
	},
})
