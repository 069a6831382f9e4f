// Package revisions defines the GraphQL queries for revision snapshots.
package revisions

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/vuln2rev-mapper/database"
)

// GetQueryFields returns the revision queries to be mounted in the root
// schema.
func GetQueryFields(db database.DBConnection, revisionType *graphql.Object) graphql.Fields {
	return graphql.Fields{
		"revision": &graphql.Field{
			Type: revisionType,
			Args: graphql.FieldConfigArgument{
				"repo_name": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"version":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				repoName := p.Args["repo_name"].(string)
				version := p.Args["version"].(string)
				return ResolveRevision(db, repoName, version)
			},
		},
		"repositoryRevisions": &graphql.Field{
			Type: graphql.NewList(revisionType),
			Args: graphql.FieldConfigArgument{
				"repo_name": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				repoName := p.Args["repo_name"].(string)
				return ResolveRepositoryRevisions(db, repoName)
			},
		},
		"packageRevisions": &graphql.Field{
			Type: graphql.NewList(revisionType),
			Args: graphql.FieldConfigArgument{
				"package": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				packageName := p.Args["package"].(string)
				return ResolvePackageRevisions(db, packageName)
			},
		},
	}
}
