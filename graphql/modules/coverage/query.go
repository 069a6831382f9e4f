// Package coverage defines the GraphQL queries for minimal version coverage.
package coverage

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/vuln2rev-mapper/database"
)

// GetQueryFields returns the coverage queries to be mounted in the root
// schema.
func GetQueryFields(db database.DBConnection) graphql.Fields {
	return graphql.Fields{
		"packageCoverage": &graphql.Field{
			Type: MinimalCoverageType,
			Args: graphql.FieldConfigArgument{
				"name": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				name := p.Args["name"].(string)
				return ResolvePackageCoverage(db, name)
			},
		},
		"vulnerablePackages": &graphql.Field{
			Type: graphql.NewList(VulnerablePackageType),
			Args: graphql.FieldConfigArgument{
				"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				limit := p.Args["limit"].(int)
				return ResolveVulnerablePackages(db, limit)
			},
		},
	}
}
